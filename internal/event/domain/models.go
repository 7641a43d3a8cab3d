// Package domain contains the append-only event model. The repository
// interface has no update or delete: immutability is structural, not a
// convention.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Event is one immutable record of a state change. Every successful mutation
// appends at least one; the log is the audit trail and the activity-feed
// source.
type Event struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	Type      string            `gorm:"type:text;not null;index" json:"type"`
	ActorID   snowflake.ID      `gorm:"column:actor_id;not null;index" json:"actor_id"`
	TargetID  snowflake.ID      `gorm:"column:target_id;not null;index" json:"target_id"`
	GroupID   snowflake.ID      `gorm:"column:group_id;not null;index" json:"group_id"`
	Timestamp time.Time         `gorm:"not null;index" json:"timestamp"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
}

// TableName sets the database table name.
func (Event) TableName() string { return "events" }

// Draft is an event prepared inside a mutation, before the pipeline stamps
// actor, group and time.
type Draft struct {
	Type     string
	TargetID snowflake.ID
	Metadata map[string]any
}
