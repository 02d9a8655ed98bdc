package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pictopercept/internal/models"
)

// SummaryRepository persists one summary row per finished session.
type SummaryRepository struct {
	db *gorm.DB
}

func NewSummaryRepository(db *gorm.DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// Save inserts the summary; a second save for the same session is a no-op.
func (r *SummaryRepository) Save(ctx context.Context, summary *models.SessionSummary) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "session_id"}}, DoNothing: true}).
		Create(summary).Error
}
