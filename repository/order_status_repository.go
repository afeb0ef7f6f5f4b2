package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dodomiyake/zenhaven/apperrors"
	"github.com/dodomiyake/zenhaven/models"
)

type StatusRepository interface {
	Upsert(ctx context.Context, sessionID string, status models.OrderStatus) error
	Get(ctx context.Context, sessionID string) (models.OrderStatus, error)
}

type GormStatusRepository struct {
	db *gorm.DB
}

func NewGormStatusRepository(db *gorm.DB) *GormStatusRepository {
	return &GormStatusRepository{db: db}
}

func (r *GormStatusRepository) Upsert(ctx context.Context, sessionID string, status models.OrderStatus) error {
	rec := models.OrderStatusRecord{
		SessionID: sessionID,
		Status:    string(status),
		UpdatedAt: time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
	}).Create(&rec).Error
}

func (r *GormStatusRepository) Get(ctx context.Context, sessionID string) (models.OrderStatus, error) {
	var rec models.OrderStatusRecord
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", apperrors.NotFound("session not found", err)
	}
	if err != nil {
		return "", err
	}
	return models.OrderStatus(rec.Status).OrPending(), nil
}

// MirroredStatusStore keeps the gateway authoritative and copies every
// successful write into Postgres. Reads fall back to the mirror only when the
// gateway fails with something other than not-found.
type MirroredStatusStore struct {
	primary *GatewayStatusStore
	mirror  StatusRepository
	logger  *zap.Logger
}

func NewMirroredStatusStore(primary *GatewayStatusStore, mirror StatusRepository, logger *zap.Logger) *MirroredStatusStore {
	return &MirroredStatusStore{primary: primary, mirror: mirror, logger: logger}
}

func (s *MirroredStatusStore) GetStatus(ctx context.Context, sessionID string) (models.OrderStatus, error) {
	status, err := s.primary.GetStatus(ctx, sessionID)
	if err == nil || apperrors.IsNotFound(err) {
		return status, err
	}

	mirrored, mirrorErr := s.mirror.Get(ctx, sessionID)
	if mirrorErr != nil {
		return "", err
	}
	s.logger.Warn("Gateway read failed, using mirrored status",
		zap.String("session_id", sessionID),
		zap.String("status", string(mirrored)),
		zap.Error(err),
	)
	return mirrored, nil
}

func (s *MirroredStatusStore) SetStatus(ctx context.Context, sessionID string, status models.OrderStatus) (*models.CheckoutSession, error) {
	sess, err := s.primary.SetStatus(ctx, sessionID, status)
	if err != nil {
		return nil, err
	}
	if err := s.mirror.Upsert(ctx, sessionID, status); err != nil {
		s.logger.Error("Failed to mirror order status",
			zap.String("session_id", sessionID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
	return sess, nil
}
