package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	GroupID  snowflake.ID
	Type     string
	Status   string
	Cursor   *ListCursor
	Limit    int
	OrderAsc bool
}

type ListCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, thing Thing) error
	Get(ctx context.Context, id snowflake.ID) (*Thing, error)
	GetForUpdate(ctx context.Context, id snowflake.ID) (*Thing, error)
	List(ctx context.Context, filter ListFilter) ([]*Thing, error)
	// CountActiveByType counts non-archived things of a type in a group.
	// Callers hold the group row lock so the count cannot race a concurrent
	// create in the same group.
	CountActiveByType(ctx context.Context, groupID snowflake.ID, thingType string) (int64, error)
	NameExists(ctx context.Context, groupID snowflake.ID, thingType, name string) (bool, error)
	// Update persists the record iff the stored version still equals
	// expectedVersion. Returns false when another writer got there first.
	Update(ctx context.Context, thing Thing, expectedVersion int64) (bool, error)
}
