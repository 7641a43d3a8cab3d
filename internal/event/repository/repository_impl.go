package repository

import (
	"context"

	"github.com/shohq/ontology/internal/event/domain"
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

func (r *repository) Insert(ctx context.Context, event domain.Event) error {
	return r.db.WithContext(ctx).Create(&event).Error
}

func (r *repository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Event, error) {
	var events []*domain.Event
	stmt := r.db.WithContext(ctx).Model(&domain.Event{})

	if filter.GroupID != 0 {
		stmt = stmt.Where("group_id = ?", filter.GroupID)
	}
	if filter.ActorID != 0 {
		stmt = stmt.Where("actor_id = ?", filter.ActorID)
	}
	if filter.TargetID != 0 {
		stmt = stmt.Where("target_id = ?", filter.TargetID)
	}
	if filter.Type != "" {
		stmt = stmt.Where("type = ?", filter.Type)
	}
	if filter.SinceTs != nil {
		stmt = stmt.Where("timestamp >= ?", filter.SinceTs.UTC())
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(timestamp < ?) OR (timestamp = ? AND id < ?)",
			filter.Cursor.Timestamp,
			filter.Cursor.Timestamp,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("timestamp desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
