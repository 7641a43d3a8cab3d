package seed

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/shohq/ontology/internal/auth/domain"
	groupdomain "github.com/shohq/ontology/internal/group/domain"
	persondomain "github.com/shohq/ontology/internal/person/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	rootGroupName = "platform"

	// BootstrapTokenEnv names the env var holding the initial operator
	// token. When unset no token is seeded.
	BootstrapTokenEnv = "ONTOLOGY_BOOTSTRAP_TOKEN"

	bootstrapTokenTTL = 90 * 24 * time.Hour
)

// EnsureRootGroup seeds the platform group and its operator so a fresh
// install is usable without manual inserts. Idempotent across restarts.
func EnsureRootGroup(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		group, err := ensureRootGroupTx(ctx, tx, node)
		if err != nil {
			return err
		}
		owner, err := ensureRootOwnerTx(ctx, tx, node, group.ID)
		if err != nil {
			return err
		}
		return ensureBootstrapTokenTx(ctx, tx, node, owner.ID)
	})
}

func ensureRootGroupTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (*groupdomain.Group, error) {
	var group groupdomain.Group
	err := tx.WithContext(ctx).
		Where("name = ? AND parent_group_id IS NULL", rootGroupName).
		First(&group).Error
	if err == nil {
		return &group, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	group = groupdomain.Group{
		ID:        node.Generate(),
		Name:      rootGroupName,
		Settings:  datatypes.JSONMap{},
		Status:    groupdomain.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&group).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

func ensureRootOwnerTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, groupID snowflake.ID) (*persondomain.Person, error) {
	var person persondomain.Person
	err := tx.WithContext(ctx).
		Where("group_id = ? AND role = ?", groupID, persondomain.RolePlatformOwner).
		First(&person).Error
	if err == nil {
		return &person, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	person = persondomain.Person{
		ID:         node.Generate(),
		GroupID:    groupID,
		Role:       persondomain.RolePlatformOwner,
		Properties: datatypes.JSONMap{"name": "Platform Operator"},
		Status:     persondomain.StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := tx.WithContext(ctx).Create(&person).Error; err != nil {
		return nil, err
	}
	return &person, nil
}

func ensureBootstrapTokenTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, personID snowflake.ID) error {
	raw := strings.TrimSpace(os.Getenv(BootstrapTokenEnv))
	if raw == "" {
		return nil
	}

	hash := authdomain.HashToken(raw)
	var existing authdomain.AccessToken
	err := tx.WithContext(ctx).Where("token_hash = ?", hash).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := time.Now().UTC()
	token := authdomain.AccessToken{
		ID:        node.Generate(),
		TokenHash: hash,
		PersonID:  personID,
		ExpiresAt: now.Add(bootstrapTokenTTL),
		CreatedAt: now,
	}
	return tx.WithContext(ctx).Create(&token).Error
}
