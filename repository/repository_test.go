package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/dodomiyake/zenhaven/apperrors"
	"github.com/dodomiyake/zenhaven/models"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

func TestStatusUpsert(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := NewGormStatusRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "order_statuses"`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Upsert(context.Background(), "cs_1", models.StatusShipped))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusGetNotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := NewGormStatusRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "order_statuses"`)).
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "status"}))

	_, err := repo.Get(context.Background(), "cs_missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestStatusGetFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := NewGormStatusRepository(gormDB)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "order_statuses"`)).
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "status", "created_at", "updated_at"}).
			AddRow("cs_1", "delivered", now, now))

	status, err := repo.Get(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, status)
}

func TestWebhookEventRecordIgnoresConflicts(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := NewWebhookEventRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "webhook_events" .* ON CONFLICT \("event_id"\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.Record(context.Background(), &models.WebhookEvent{
		ID: "evt_1", Type: models.EventCheckoutSessionCompleted, ObjectID: "cs_1", Payload: []byte(`{}`),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationSaveLog(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := NewNotificationRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "notification_logs"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()

	log := &models.NotificationLog{SessionID: "cs_1", Recipient: "a@b.co", Status: models.NotificationSent}
	require.NoError(t, repo.SaveLog(context.Background(), log))
	assert.Equal(t, int64(7), log.ID)
}

func TestNotificationListBySession(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := NewNotificationRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "notification_logs"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "status"}).
			AddRow(2, "cs_1", "failed").
			AddRow(1, "cs_1", "sent"))

	logs, err := repo.ListBySession(context.Background(), "cs_1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "failed", logs[0].Status)
}

type fakeGateway struct {
	status   models.OrderStatus
	getErr   error
	setErr   error
	setCalls []models.OrderStatus
}

func (f *fakeGateway) RetrieveSession(_ context.Context, id string, _ ...string) (*models.CheckoutSession, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &models.CheckoutSession{ID: id, Status: f.status}, nil
}

func (f *fakeGateway) UpdateSessionMetadata(_ context.Context, id string, status models.OrderStatus) (*models.CheckoutSession, error) {
	if f.setErr != nil {
		return nil, f.setErr
	}
	f.setCalls = append(f.setCalls, status)
	f.status = status
	return &models.CheckoutSession{ID: id, Status: status}, nil
}

type fakeMirror struct {
	upserts map[string]models.OrderStatus
	err     error
}

func (f *fakeMirror) Upsert(_ context.Context, id string, status models.OrderStatus) error {
	if f.err != nil {
		return f.err
	}
	if f.upserts == nil {
		f.upserts = map[string]models.OrderStatus{}
	}
	f.upserts[id] = status
	return nil
}

func (f *fakeMirror) Get(_ context.Context, id string) (models.OrderStatus, error) {
	if s, ok := f.upserts[id]; ok {
		return s, nil
	}
	return "", apperrors.NotFound("session not found", nil)
}

func TestGatewayStatusStoreDefaultsToPending(t *testing.T) {
	store := NewGatewayStatusStore(&fakeGateway{})

	status, err := store.GetStatus(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, status)
}

func TestMirroredStoreWritesBoth(t *testing.T) {
	gw := &fakeGateway{}
	mirror := &fakeMirror{}
	store := NewMirroredStatusStore(NewGatewayStatusStore(gw), mirror, zap.NewNop())

	_, err := store.SetStatus(context.Background(), "cs_1", models.StatusProcessing)

	require.NoError(t, err)
	assert.Equal(t, []models.OrderStatus{models.StatusProcessing}, gw.setCalls)
	assert.Equal(t, models.StatusProcessing, mirror.upserts["cs_1"])
}

func TestMirroredStoreIgnoresMirrorFailure(t *testing.T) {
	store := NewMirroredStatusStore(NewGatewayStatusStore(&fakeGateway{}), &fakeMirror{err: errors.New("db down")}, zap.NewNop())

	sess, err := store.SetStatus(context.Background(), "cs_1", models.StatusCancelled)

	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, sess.Status)
}

func TestMirroredStoreSkipsMirrorWhenGatewayFails(t *testing.T) {
	mirror := &fakeMirror{}
	gw := &fakeGateway{setErr: apperrors.Gateway("stripe down", nil)}
	store := NewMirroredStatusStore(NewGatewayStatusStore(gw), mirror, zap.NewNop())

	_, err := store.SetStatus(context.Background(), "cs_1", models.StatusCancelled)

	assert.Error(t, err)
	assert.Empty(t, mirror.upserts)
}

func TestMirroredStoreReadFallback(t *testing.T) {
	mirror := &fakeMirror{upserts: map[string]models.OrderStatus{"cs_1": models.StatusDelivered}}
	gw := &fakeGateway{getErr: apperrors.Gateway("stripe down", nil)}
	store := NewMirroredStatusStore(NewGatewayStatusStore(gw), mirror, zap.NewNop())

	status, err := store.GetStatus(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, status)

	gw.getErr = apperrors.NotFound("session not found", nil)
	_, err = store.GetStatus(context.Background(), "cs_1")
	assert.True(t, apperrors.IsNotFound(err))
}

type fakeRedis struct {
	keys map[string]bool
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, _ interface{}, _ time.Duration) *redis.BoolCmd {
	if f.keys[key] {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = true
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.keys, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestRedisDeduperClaimOnce(t *testing.T) {
	d := &RedisNotificationDeduper{client: &fakeRedis{keys: map[string]bool{}}, ttl: time.Hour}
	ctx := context.Background()

	first, err := d.Claim(ctx, "cs_1")
	require.NoError(t, err)
	second, err := d.Claim(ctx, "cs_1")
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)

	require.NoError(t, d.Release(ctx, "cs_1"))
	again, err := d.Claim(ctx, "cs_1")
	require.NoError(t, err)
	assert.True(t, again)
}
