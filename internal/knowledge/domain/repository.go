package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, chunk Chunk) error
	ListByThing(ctx context.Context, thingID snowflake.ID) ([]Chunk, error)
	ListByLabel(ctx context.Context, groupID snowflake.ID, label string) ([]Chunk, error)
	DeleteByThing(ctx context.Context, thingID snowflake.ID) error
}
