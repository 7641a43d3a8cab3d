// Package domain defines token resolution. Token issuance lives in an
// external auth service; the core only maps an opaque token to an actor.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shohq/ontology/pkg/tenantctx"
)

// AccessToken stores the hashed credential behind an opaque actor token.
type AccessToken struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TokenHash string       `gorm:"column:token_hash;type:text;not null;uniqueIndex:ux_access_tokens_hash" json:"-"`
	PersonID  snowflake.ID `gorm:"column:person_id;not null;index" json:"person_id"`
	ExpiresAt time.Time    `gorm:"column:expires_at;not null" json:"expires_at"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (AccessToken) TableName() string { return "access_tokens" }

// Resolver maps an opaque token to the actor behind it. Invalid, expired and
// deactivated credentials all surface as an authentication failure.
type Resolver interface {
	Resolve(ctx context.Context, token string) (tenantctx.Actor, error)
}
