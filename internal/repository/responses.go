package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pictopercept/internal/models"
)

// ResponseRepository persists response rows with gorm.
type ResponseRepository struct {
	db *gorm.DB
}

func NewResponseRepository(db *gorm.DB) *ResponseRepository {
	return &ResponseRepository{db: db}
}

var onRecordKeyConflict = clause.OnConflict{
	Columns:   []clause.Column{{Name: "record_key"}},
	DoNothing: true,
}

// Save inserts a response unless a row with the same record key exists.
func (r *ResponseRepository) Save(ctx context.Context, response *models.Response) error {
	return r.db.WithContext(ctx).Clauses(onRecordKeyConflict).Create(response).Error
}

// SaveTx inserts all responses in a single transaction.
func (r *ResponseRepository) SaveTx(ctx context.Context, responses []models.Response) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range responses {
			if err := tx.Clauses(onRecordKeyConflict).Create(&responses[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
