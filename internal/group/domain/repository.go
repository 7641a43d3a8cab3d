package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, group Group) error
	Get(ctx context.Context, id snowflake.ID) (*Group, error)
	// GetForUpdate locks the group row for the duration of the surrounding
	// transaction. Quota checks take this lock so concurrent creates in the
	// same group serialize instead of both passing the count check.
	GetForUpdate(ctx context.Context, id snowflake.ID) (*Group, error)
	Update(ctx context.Context, group Group) error
	ListChildren(ctx context.Context, parentID snowflake.ID) ([]Group, error)
}
