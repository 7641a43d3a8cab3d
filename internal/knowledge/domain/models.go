// Package domain contains the knowledge-chunk model. Chunks arrive from an
// external indexer; the core stores them and answers lookups by thing or
// label, it never computes embeddings.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Chunk is one indexed fragment of a thing's content.
type Chunk struct {
	ID        snowflake.ID                 `gorm:"primaryKey" json:"id"`
	ThingID   snowflake.ID                 `gorm:"column:thing_id;not null;index" json:"thing_id"`
	GroupID   snowflake.ID                 `gorm:"column:group_id;not null;index" json:"group_id"`
	Text      string                       `gorm:"type:text;not null" json:"text"`
	Embedding datatypes.JSONSlice[float64] `gorm:"type:jsonb" json:"embedding"`
	Labels    datatypes.JSONSlice[string]  `gorm:"type:jsonb" json:"labels"`
	CreatedAt time.Time                    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Chunk) TableName() string { return "knowledge_chunks" }
