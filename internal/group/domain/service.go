package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// MaxDepth bounds the tenant hierarchy. Parent assignments that would push a
// group past this depth are rejected at write time, never discovered at query
// time.
const MaxDepth = 16

type Service interface {
	// WithTx returns a copy of the service scoped to the given transaction.
	WithTx(tx *gorm.DB) Service

	Create(ctx context.Context, req CreateGroupRequest) (*Group, error)
	Get(ctx context.Context, id snowflake.ID) (*Group, error)
	SetParent(ctx context.Context, id snowflake.ID, parentID *snowflake.ID) (*Group, error)
	SetQuota(ctx context.Context, id snowflake.ID, thingType string, max int) (*Group, error)
	Suspend(ctx context.Context, id snowflake.ID) (*Group, error)
	// IsDescendant walks candidate's ancestor chain looking for ancestor.
	// Used by the authorization guard for features that opt into
	// hierarchical access.
	IsDescendant(ctx context.Context, ancestor, candidate snowflake.ID) (bool, error)
}

type CreateGroupRequest struct {
	Name          string
	ParentGroupID *snowflake.ID
	Settings      map[string]any
}
