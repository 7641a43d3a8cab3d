package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// WithTx returns a copy of the service scoped to the given transaction.
	WithTx(tx *gorm.DB) Service

	Create(ctx context.Context, req CreatePersonRequest) (*Person, error)
	Get(ctx context.Context, id snowflake.ID) (*Person, error)
	UpdateRole(ctx context.Context, id snowflake.ID, role string) (*Person, error)
	Deactivate(ctx context.Context, id snowflake.ID) (*Person, error)
	ListByGroup(ctx context.Context, groupID snowflake.ID) ([]Person, error)
}

type CreatePersonRequest struct {
	GroupID    snowflake.ID
	Role       string
	Properties map[string]any
}
