package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shohq/ontology/internal/thing/domain"
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

func (r *repository) Insert(ctx context.Context, thing domain.Thing) error {
	return r.db.WithContext(ctx).Create(&thing).Error
}

func (r *repository) Get(ctx context.Context, id snowflake.ID) (*domain.Thing, error) {
	var thing domain.Thing
	err := r.db.WithContext(ctx).First(&thing, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &thing, nil
}

func (r *repository) GetForUpdate(ctx context.Context, id snowflake.ID) (*domain.Thing, error) {
	var thing domain.Thing
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&thing, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &thing, nil
}

func (r *repository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Thing, error) {
	var things []*domain.Thing
	stmt := r.db.WithContext(ctx).Model(&domain.Thing{})

	if filter.GroupID != 0 {
		stmt = stmt.Where("group_id = ?", filter.GroupID)
	}
	if filter.Type != "" {
		stmt = stmt.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}

	if filter.OrderAsc {
		if filter.Cursor != nil {
			stmt = stmt.Where("(created_at > ?) OR (created_at = ? AND id > ?)",
				filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.ID)
		}
		stmt = stmt.Order("created_at asc, id asc")
	} else {
		if filter.Cursor != nil {
			stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
				filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.ID)
		}
		stmt = stmt.Order("created_at desc, id desc")
	}

	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&things).Error; err != nil {
		return nil, err
	}
	return things, nil
}

func (r *repository) CountActiveByType(ctx context.Context, groupID snowflake.ID, thingType string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Thing{}).
		Where("group_id = ? AND type = ? AND status <> ?", groupID, thingType, domain.StatusArchived).
		Count(&count).Error
	return count, err
}

func (r *repository) NameExists(ctx context.Context, groupID snowflake.ID, thingType, name string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Thing{}).
		Where("group_id = ? AND type = ? AND name = ? AND status <> ?", groupID, thingType, name, domain.StatusArchived).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) Update(ctx context.Context, thing domain.Thing, expectedVersion int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Thing{}).
		Where("id = ? AND version = ?", thing.ID, expectedVersion).
		Updates(map[string]any{
			"name":            thing.Name,
			"slug":            thing.Slug,
			"properties":      thing.Properties,
			"tags":            thing.Tags,
			"status":          thing.Status,
			"color_overrides": thing.ColorOverrides,
			"version":         thing.Version,
			"updated_at":      thing.UpdatedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
