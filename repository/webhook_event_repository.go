package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dodomiyake/zenhaven/models"
)

// WebhookEventRepository appends verified webhook events for audit. Rows are
// never read back to decide whether to process an event.
type WebhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Record inserts the event; a redelivered event id is silently ignored.
func (r *WebhookEventRepository) Record(ctx context.Context, event *models.WebhookEvent) error {
	rec := models.WebhookEventRecord{
		ID:       uuid.New(),
		EventID:  event.ID,
		Type:     event.Type,
		ObjectID: event.ObjectID,
		Payload:  string(event.Payload),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(&rec).Error
}
