// Package domain contains the temporal relationship model. Connections are
// append-only edges: ending a relationship sets valid_to, never deletes the
// row, so the graph can be reconstructed as of any past instant.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// RelationshipContains is the default parent/child containment edge and the
// one whose ordering the sequence invariant protects.
const RelationshipContains = "contains"

// MetadataSequenceKey orders a containment edge among its siblings. It must
// agree with the parent's properties.sequence list and the child's own
// properties.sequence value at all times.
const MetadataSequenceKey = "sequence"

// Connection is a typed, directed edge between two things of the same group.
type Connection struct {
	ID               snowflake.ID      `gorm:"primaryKey" json:"id"`
	GroupID          snowflake.ID      `gorm:"column:group_id;not null;index" json:"group_id"`
	FromThingID      snowflake.ID      `gorm:"column:from_thing_id;not null;index" json:"from_thing_id"`
	ToThingID        snowflake.ID      `gorm:"column:to_thing_id;not null;index" json:"to_thing_id"`
	RelationshipType string            `gorm:"column:relationship_type;type:text;not null" json:"relationship_type"`
	Metadata         datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	ValidFrom        time.Time         `gorm:"column:valid_from;not null" json:"valid_from"`
	ValidTo          *time.Time        `gorm:"column:valid_to" json:"valid_to,omitempty"`
	CreatedBy        snowflake.ID      `gorm:"column:created_by;not null" json:"created_by"`
	CreatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Connection) TableName() string { return "connections" }

// ValidAt reports whether the edge holds at the given instant.
func (c Connection) ValidAt(t time.Time) bool {
	if t.Before(c.ValidFrom) {
		return false
	}
	return c.ValidTo == nil || t.Before(*c.ValidTo)
}
