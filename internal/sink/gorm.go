package sink

import (
	"context"

	"gorm.io/gorm"

	"pictopercept/internal/models"
	"pictopercept/internal/repository"
)

// GormSink stores responses in the relational database behind gorm.
type GormSink struct {
	responses *repository.ResponseRepository
	summaries *repository.SummaryRepository
}

func NewGormSink(db *gorm.DB) *GormSink {
	return &GormSink{
		responses: repository.NewResponseRepository(db),
		summaries: repository.NewSummaryRepository(db),
	}
}

func (s *GormSink) Write(ctx context.Context, record models.ResponseRecord) error {
	row := models.NewResponse(record)
	return s.responses.Save(ctx, &row)
}

func (s *GormSink) WriteBatch(ctx context.Context, records []models.ResponseRecord) error {
	rows := make([]models.Response, len(records))
	for i, r := range records {
		rows[i] = models.NewResponse(r)
	}
	return s.responses.SaveTx(ctx, rows)
}

func (s *GormSink) WriteSummary(ctx context.Context, summary models.SessionSummary) error {
	return s.summaries.Save(ctx, &summary)
}
