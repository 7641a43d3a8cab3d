// Package domain contains the polymorphic entity model. A Thing's type is an
// open string namespace: new types need a validator registration, never a
// schema change.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PropertySequence is the property key carrying ordering state: on a parent
// it holds the ordered child id list, on a child its own position. The
// relationship graph keeps both in step with the edges' sequence metadata.
const PropertySequence = "sequence"

const (
	StatusDraft     = "draft"
	StatusActive    = "active"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// Thing is the generic, group-scoped entity record. GroupID is immutable
// after creation and rows are never physically deleted; archive is the only
// removal.
type Thing struct {
	ID             snowflake.ID                 `gorm:"primaryKey" json:"id"`
	GroupID        snowflake.ID                 `gorm:"column:group_id;not null;index:idx_things_group_type,priority:1" json:"group_id"`
	Type           string                       `gorm:"type:text;not null;index:idx_things_group_type,priority:2" json:"type"`
	Name           string                       `gorm:"type:text;not null" json:"name"`
	Slug           string                       `gorm:"type:text;not null" json:"slug"`
	Properties     datatypes.JSONMap            `gorm:"type:jsonb;not null;default:'{}'" json:"properties"`
	Tags           datatypes.JSONSlice[string]  `gorm:"type:jsonb" json:"tags"`
	Status         string                       `gorm:"type:text;not null;default:'draft'" json:"status"`
	ColorOverrides datatypes.JSONMap            `gorm:"column:color_overrides;type:jsonb" json:"color_overrides,omitempty"`
	Version        int64                        `gorm:"not null;default:1" json:"version"`
	CreatedBy      snowflake.ID                 `gorm:"column:created_by;not null" json:"created_by"`
	CreatedAt      time.Time                    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time                    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Thing) TableName() string { return "things" }

func ValidStatus(status string) bool {
	switch status {
	case StatusDraft, StatusActive, StatusPublished, StatusArchived:
		return true
	default:
		return false
	}
}
