package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// WithTx returns a copy of the service scoped to the given transaction.
	WithTx(tx *gorm.DB) Service

	// Put stores freshly indexed chunks for a thing, replacing any earlier
	// index. Chunks are derived data; unlike things and events they may be
	// rewritten wholesale.
	Put(ctx context.Context, thingID snowflake.ID, chunks []ChunkInput) ([]Chunk, error)
	ListByThing(ctx context.Context, thingID snowflake.ID) ([]Chunk, error)
	ListByLabel(ctx context.Context, label string) ([]Chunk, error)
}

type ChunkInput struct {
	Text      string
	Embedding []float64
	Labels    []string
}
