package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shohq/ontology/internal/group/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, group domain.Group) error {
	return r.db.WithContext(ctx).Create(&group).Error
}

func (r *repository) Get(ctx context.Context, id snowflake.ID) (*domain.Group, error) {
	var group domain.Group
	err := r.db.WithContext(ctx).First(&group, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &group, nil
}

func (r *repository) GetForUpdate(ctx context.Context, id snowflake.ID) (*domain.Group, error) {
	var group domain.Group
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&group, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &group, nil
}

func (r *repository) Update(ctx context.Context, group domain.Group) error {
	return r.db.WithContext(ctx).
		Model(&domain.Group{}).
		Where("id = ?", group.ID).
		Updates(map[string]any{
			"parent_group_id": group.ParentGroupID,
			"name":            group.Name,
			"settings":        group.Settings,
			"status":          group.Status,
			"updated_at":      group.UpdatedAt,
		}).Error
}

func (r *repository) ListChildren(ctx context.Context, parentID snowflake.ID) ([]domain.Group, error) {
	var groups []domain.Group
	err := r.db.WithContext(ctx).
		Where("parent_group_id = ?", parentID).
		Order("created_at asc").
		Find(&groups).Error
	if err != nil {
		return nil, err
	}
	return groups, nil
}
