// Package tenantctx carries the resolved actor through a request context.
// Every store consults it when scoping reads; the mutation pipeline installs
// it after token resolution.
package tenantctx

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Actor is the resolved identity behind a request.
type Actor struct {
	PersonID snowflake.ID
	GroupID  snowflake.ID
	Role     string
}

type actorKey struct{}

// WithActor returns a context carrying the actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor installed by the pipeline, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}
