package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// WithTx returns a copy of the service scoped to the given transaction.
	WithTx(tx *gorm.DB) Service

	Connect(ctx context.Context, req ConnectRequest) (*Connection, error)
	// Invalidate ends a relationship at the given instant (zero means now).
	// Already-ended edges conflict.
	Invalidate(ctx context.Context, id snowflake.ID, at time.Time) (*Connection, error)
	// Query returns the edges valid at req.AsOf (zero means now). A past
	// AsOf reconstructs the graph as it stood then.
	Query(ctx context.Context, req QueryRequest) ([]Connection, error)
	// Reorder rewrites the sibling order under a parent. orderedChildIDs
	// must be exactly the set of currently connected children; the parent's
	// sequence list, each child's sequence property and each edge's
	// sequence metadata are updated together or not at all.
	Reorder(ctx context.Context, parentID snowflake.ID, relationshipType string, orderedChildIDs []snowflake.ID) error
}

type ConnectRequest struct {
	FromThingID      snowflake.ID
	ToThingID        snowflake.ID
	RelationshipType string
	Metadata         map[string]any
	CreatedBy        snowflake.ID
}

type QueryRequest struct {
	FromThingID      snowflake.ID
	ToThingID        snowflake.ID
	RelationshipType string
	AsOf             time.Time
}
