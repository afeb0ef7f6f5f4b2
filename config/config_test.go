package config

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	awspkg "github.com/dodomiyake/zenhaven/pkg/aws"
)

func setRequired(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("BASE_URL", "https://zenhaven.test/")
	t.Setenv("EMAIL_PROVIDER", "log")
}

func TestFromEnvDefaults(t *testing.T) {
	setRequired(t)

	cfg := FromEnv()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "https://zenhaven.test", cfg.BaseURL)
	assert.Equal(t, 300*time.Second, cfg.WebhookTolerance)
	assert.Equal(t, StatusStoreGateway, cfg.OrderStatusStore)
	assert.Equal(t, 1, cfg.EmailSendAttempts)
	assert.False(t, cfg.StrictStatusTransitions)
	assert.False(t, cfg.NotificationDedupe)
	assert.Equal(t, "usd", cfg.Currency)
	assert.Equal(t, "Zenhaven <orders@resend.dev>", cfg.EmailFrom)
}

func TestValidateReportsMissingRequired(t *testing.T) {
	cfg := &Config{OrderStatusStore: StatusStoreGateway, EmailProvider: EmailProviderLog, EmailSendAttempts: 1}

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "STRIPE_SECRET_KEY")
	assert.Contains(t, err.Error(), "STRIPE_WEBHOOK_SECRET")
	assert.Contains(t, err.Error(), "BASE_URL")
}

func TestValidateRejectsRelativeBaseURL(t *testing.T) {
	setRequired(t)
	t.Setenv("BASE_URL", "/shop")

	assert.ErrorContains(t, FromEnv().Validate(), "BASE_URL")
}

func TestValidateModeDependencies(t *testing.T) {
	setRequired(t)
	t.Setenv("ORDER_STATUS_STORE", StatusStoreGatewayPostgres)
	t.Setenv("NOTIFICATION_DEDUPE", "true")

	err := FromEnv().Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_HOST")
	assert.Contains(t, err.Error(), "REDIS_URL")
}

func TestDurationAndListParsing(t *testing.T) {
	setRequired(t)
	t.Setenv("STRIPE_WEBHOOK_TOLERANCE", "600")
	t.Setenv("EMAIL_RETRY_BACKOFF", "250ms")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")

	cfg := FromEnv()

	assert.Equal(t, 600*time.Second, cfg.WebhookTolerance)
	assert.Equal(t, 250*time.Millisecond, cfg.EmailRetryBackoff)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
}

type fakeSecrets map[string]map[string]string

func (f fakeSecrets) GetSecretJSON(_ context.Context, name string) (map[string]string, error) {
	if m, ok := f[name]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: %s", awspkg.ErrSecretNotFound, name)
}

type failingSecrets struct{ err error }

func (f failingSecrets) GetSecretJSON(context.Context, string) (map[string]string, error) {
	return nil, f.err
}

func TestApplySecretsOverridesCredentials(t *testing.T) {
	setRequired(t)
	cfg := FromEnv()

	err := cfg.ApplySecrets(context.Background(), fakeSecrets{
		"zenhaven/STRIPE": {"STRIPE_SECRET_KEY": "sk_live_from_sm"},
		"zenhaven/DB_CREDENTIALS": {
			"POSTGRES_USER": "zen", "POSTGRES_PASSWORD": "pw",
			"POSTGRES_DB": "orders", "POSTGRES_HOST": "db.internal",
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "sk_live_from_sm", cfg.StripeSecretKey)
	assert.Equal(t, "whsec_123", cfg.StripeWebhookSecret)
	assert.True(t, cfg.DatabaseEnabled())
	assert.Contains(t, cfg.PostgresDSN(), "host=db.internal")
}

func TestApplySecretsSkipsMissingSecrets(t *testing.T) {
	setRequired(t)
	cfg := FromEnv()

	require.NoError(t, cfg.ApplySecrets(context.Background(), fakeSecrets{}))
	assert.Equal(t, "sk_test_123", cfg.StripeSecretKey)
}

func TestApplySecretsReturnsReadErrors(t *testing.T) {
	setRequired(t)
	cfg := FromEnv()

	err := cfg.ApplySecrets(context.Background(), failingSecrets{err: errors.New("AccessDeniedException: not authorized")})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDeniedException")
	assert.Equal(t, "sk_test_123", cfg.StripeSecretKey)
}

func TestCORSDefaultsToBaseURLOrigin(t *testing.T) {
	setRequired(t)
	t.Setenv("BASE_URL", "https://zenhaven.test/shop/")

	assert.Equal(t, []string{"https://zenhaven.test"}, FromEnv().CORSAllowedOrigins)
}

func TestCORSExplicitListWins(t *testing.T) {
	setRequired(t)
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://admin.zenhaven.test, https://zenhaven.test")

	assert.Equal(t, []string{"https://admin.zenhaven.test", "https://zenhaven.test"}, FromEnv().CORSAllowedOrigins)
}
