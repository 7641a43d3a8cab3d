// Package domain contains persistence models for the person service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	RolePlatformOwner = "platform_owner"
	RoleOrgOwner      = "org_owner"
	RoleOrgUser       = "org_user"
	RoleCustomer      = "customer"
)

const (
	StatusActive      = "active"
	StatusDeactivated = "deactivated"
)

// Person represents an actor. People are never hard-deleted; removal is a
// status change so the audit trail keeps a resolvable actor.
type Person struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	GroupID    snowflake.ID      `gorm:"column:group_id;not null;index" json:"group_id"`
	Role       string            `gorm:"type:text;not null" json:"role"`
	Properties datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"properties"`
	Status     string            `gorm:"type:text;not null;default:'active'" json:"status"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Person) TableName() string { return "persons" }

func ValidRole(role string) bool {
	switch role {
	case RolePlatformOwner, RoleOrgOwner, RoleOrgUser, RoleCustomer:
		return true
	default:
		return false
	}
}
