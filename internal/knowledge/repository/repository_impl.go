package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shohq/ontology/internal/knowledge/domain"
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

func (r *repository) Insert(ctx context.Context, chunk domain.Chunk) error {
	return r.db.WithContext(ctx).Create(&chunk).Error
}

func (r *repository) ListByThing(ctx context.Context, thingID snowflake.ID) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	err := r.db.WithContext(ctx).
		Where("thing_id = ?", thingID).
		Order("created_at asc, id asc").
		Find(&chunks).Error
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *repository) ListByLabel(ctx context.Context, groupID snowflake.ID, label string) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	stmt := r.db.WithContext(ctx).Model(&domain.Chunk{})
	if groupID != 0 {
		stmt = stmt.Where("group_id = ?", groupID)
	}
	// JSON containment differs per dialect; a portable scan-and-filter
	// keeps the storage layer dialect-agnostic at the cost of a wider read.
	err := stmt.Order("created_at asc, id asc").Find(&chunks).Error
	if err != nil {
		return nil, err
	}
	filtered := chunks[:0]
	for _, chunk := range chunks {
		for _, l := range chunk.Labels {
			if l == label {
				filtered = append(filtered, chunk)
				break
			}
		}
	}
	return filtered, nil
}

func (r *repository) DeleteByThing(ctx context.Context, thingID snowflake.ID) error {
	return r.db.WithContext(ctx).
		Where("thing_id = ?", thingID).
		Delete(&domain.Chunk{}).Error
}
