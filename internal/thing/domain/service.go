package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shohq/ontology/pkg/db/pagination"
	"gorm.io/gorm"
)

type Service interface {
	// WithTx returns a copy of the service scoped to the given transaction.
	// The mutation pipeline uses this to fold entity writes into its atomic
	// unit.
	WithTx(tx *gorm.DB) Service

	Create(ctx context.Context, req CreateThingRequest) (*Thing, error)
	Get(ctx context.Context, id snowflake.ID) (*Thing, error)
	List(ctx context.Context, req ListThingsRequest) (*ListThingsResponse, error)
	// Patch merges a property delta. A nil value in the delta removes the
	// key. expectedVersion zero skips the optimistic-concurrency check.
	Patch(ctx context.Context, id snowflake.ID, delta map[string]any, expectedVersion int64) (*Thing, error)
	// Archive is idempotent: archiving an archived thing succeeds without
	// change.
	Archive(ctx context.Context, id snowflake.ID) (*Thing, error)
	SetStatus(ctx context.Context, id snowflake.ID, status string) (*Thing, error)
}

type CreateThingRequest struct {
	GroupID    snowflake.ID
	Type       string
	Name       string
	Properties map[string]any
	Tags       []string
	Status     string
	CreatedBy  snowflake.ID
}

type ListThingsRequest struct {
	pagination.Pagination
	GroupID  snowflake.ID
	Type     string
	Status   string
	OrderAsc bool
}

type ListThingsResponse struct {
	pagination.PageInfo
	Things []Thing `json:"things"`
}
