package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shohq/ontology/internal/connection/domain"
	"gorm.io/datatypes"
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

func (r *repository) Insert(ctx context.Context, conn domain.Connection) error {
	return r.db.WithContext(ctx).Create(&conn).Error
}

func (r *repository) Get(ctx context.Context, id snowflake.ID) (*domain.Connection, error) {
	var conn domain.Connection
	err := r.db.WithContext(ctx).First(&conn, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func (r *repository) GetForUpdate(ctx context.Context, id snowflake.ID) (*domain.Connection, error) {
	var conn domain.Connection
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&conn, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func (r *repository) Query(ctx context.Context, filter domain.QueryFilter) ([]domain.Connection, error) {
	var conns []domain.Connection
	stmt := r.db.WithContext(ctx).Model(&domain.Connection{})

	if filter.GroupID != 0 {
		stmt = stmt.Where("group_id = ?", filter.GroupID)
	}
	if filter.FromThingID != 0 {
		stmt = stmt.Where("from_thing_id = ?", filter.FromThingID)
	}
	if filter.ToThingID != 0 {
		stmt = stmt.Where("to_thing_id = ?", filter.ToThingID)
	}
	if filter.RelationshipType != "" {
		stmt = stmt.Where("relationship_type = ?", filter.RelationshipType)
	}

	stmt = stmt.Where("valid_from <= ? AND (valid_to IS NULL OR valid_to > ?)", filter.AsOf, filter.AsOf)

	err := stmt.Order("valid_from asc, id asc").Find(&conns).Error
	if err != nil {
		return nil, err
	}
	return conns, nil
}

func (r *repository) UpdateValidTo(ctx context.Context, id snowflake.ID, validTo time.Time) error {
	return r.db.WithContext(ctx).
		Model(&domain.Connection{}).
		Where("id = ?", id).
		Update("valid_to", validTo).Error
}

func (r *repository) UpdateMetadata(ctx context.Context, id snowflake.ID, metadata map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&domain.Connection{}).
		Where("id = ?", id).
		Update("metadata", datatypes.JSONMap(metadata)).Error
}
