package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type QueryFilter struct {
	GroupID          snowflake.ID
	FromThingID      snowflake.ID
	ToThingID        snowflake.ID
	RelationshipType string
	AsOf             time.Time
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, conn Connection) error
	Get(ctx context.Context, id snowflake.ID) (*Connection, error)
	GetForUpdate(ctx context.Context, id snowflake.ID) (*Connection, error)
	// Query returns edges valid at filter.AsOf, ordered by valid_from then id.
	Query(ctx context.Context, filter QueryFilter) ([]Connection, error)
	UpdateValidTo(ctx context.Context, id snowflake.ID, validTo time.Time) error
	UpdateMetadata(ctx context.Context, id snowflake.ID, metadata map[string]any) error
}
