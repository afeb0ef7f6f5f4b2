package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/dodomiyake/zenhaven/models"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) SaveLog(ctx context.Context, log *models.NotificationLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// ListBySession returns the delivery attempts for one order, newest first.
func (r *NotificationRepository) ListBySession(ctx context.Context, sessionID string) ([]models.NotificationLog, error) {
	var logs []models.NotificationLog
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(100).
		Find(&logs).Error
	return logs, err
}
