// Package domain contains persistence models for the group service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// Group represents a tenant. Groups may nest under a parent, forming a
// forest; the ancestor chain is validated acyclic at write time.
type Group struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	ParentGroupID *snowflake.ID     `gorm:"column:parent_group_id;index" json:"parent_group_id,omitempty"`
	Name          string            `gorm:"type:text;not null" json:"name"`
	Settings      datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"settings"`
	Status        string            `gorm:"type:text;not null;default:'active'" json:"status"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Group) TableName() string { return "groups" }

// QuotaForType reads the per-type thing cap from settings. The second return
// is false when the group carries no explicit quota for the type.
func (g Group) QuotaForType(thingType string) (int, bool) {
	raw, ok := g.Settings["quotas"]
	if !ok {
		return 0, false
	}
	quotas, ok := raw.(map[string]any)
	if !ok {
		return 0, false
	}
	v, ok := quotas[thingType]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}
