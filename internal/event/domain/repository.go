package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	GroupID  snowflake.ID
	ActorID  snowflake.ID
	TargetID snowflake.ID
	Type     string
	SinceTs  *time.Time
	Cursor   *ListCursor
	Limit    int
}

type ListCursor struct {
	ID        snowflake.ID
	Timestamp time.Time
}

// Repository deliberately has no Update or Delete. Events are inserted and
// read, nothing else.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, event Event) error
	List(ctx context.Context, filter ListFilter) ([]*Event, error)
}
