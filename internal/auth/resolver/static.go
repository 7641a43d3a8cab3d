package resolver

import (
	"context"

	"github.com/shohq/ontology/internal/auth/domain"
	"github.com/shohq/ontology/pkg/apperrors"
	"github.com/shohq/ontology/pkg/tenantctx"
)

// Static resolves tokens from a fixed map. Test and tooling use only.
type Static struct {
	Actors map[string]tenantctx.Actor
}

var _ domain.Resolver = (*Static)(nil)

func (s *Static) Resolve(_ context.Context, token string) (tenantctx.Actor, error) {
	actor, ok := s.Actors[token]
	if !ok {
		return tenantctx.Actor{}, apperrors.Authentication("invalid token")
	}
	return actor, nil
}
