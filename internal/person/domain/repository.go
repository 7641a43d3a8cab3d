package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, person Person) error
	Get(ctx context.Context, id snowflake.ID) (*Person, error)
	Update(ctx context.Context, person Person) error
	ListByGroup(ctx context.Context, groupID snowflake.ID) ([]Person, error)
}
