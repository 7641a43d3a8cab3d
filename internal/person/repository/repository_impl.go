package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shohq/ontology/internal/person/domain"
	"gorm.io/gorm"
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

func (r *repository) Insert(ctx context.Context, person domain.Person) error {
	return r.db.WithContext(ctx).Create(&person).Error
}

func (r *repository) Get(ctx context.Context, id snowflake.ID) (*domain.Person, error) {
	var person domain.Person
	err := r.db.WithContext(ctx).First(&person, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &person, nil
}

func (r *repository) Update(ctx context.Context, person domain.Person) error {
	return r.db.WithContext(ctx).
		Model(&domain.Person{}).
		Where("id = ?", person.ID).
		Updates(map[string]any{
			"role":       person.Role,
			"properties": person.Properties,
			"status":     person.Status,
			"updated_at": person.UpdatedAt,
		}).Error
}

func (r *repository) ListByGroup(ctx context.Context, groupID snowflake.ID) ([]domain.Person, error) {
	var persons []domain.Person
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at asc").
		Find(&persons).Error
	if err != nil {
		return nil, err
	}
	return persons, nil
}
