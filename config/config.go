package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	awspkg "github.com/dodomiyake/zenhaven/pkg/aws"
)

const (
	StatusStoreGateway         = "gateway"
	StatusStoreGatewayPostgres = "gateway+postgres"

	EmailProviderResend = "resend"
	EmailProviderSMTP   = "smtp"
	EmailProviderLog    = "log"
)

// Config is built once at startup and passed to every component.
type Config struct {
	Port    string
	Env     string
	BaseURL string

	StripeSecretKey     string
	StripeWebhookSecret string
	WebhookTolerance    time.Duration
	Currency            string

	AdminSecretKey string
	JWTSecret      string

	EmailProvider     string
	ResendAPIKey      string
	EmailFrom         string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
	EmailSendAttempts int
	EmailRetryBackoff time.Duration

	OrderStatusStore        string
	StrictStatusTransitions bool
	NotificationDedupe      bool
	NotificationDedupeTTL   time.Duration

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	RedisURL string

	AWSRegion              string
	AWSEndpoint            string
	UseSecrets             bool
	OrderEventsTopicARN    string
	ShippingEventsQueueURL string
	KafkaBrokers           []string
	KafkaOrderEventsTopic  string

	CloudWatchEnabled   bool
	CloudWatchNamespace string
	CloudWatchLogGroup  string

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// SecretSource reads Secrets Manager style JSON secrets.
type SecretSource interface {
	GetSecretJSON(ctx context.Context, name string) (map[string]string, error)
}

// LoadConfig reads .env (when present) and the environment, applies the
// Secrets Manager override when AWS_USE_SECRETS=true, and validates.
func LoadConfig(ctx context.Context) (*Config, error) {
	_ = godotenv.Load()

	cfg := FromEnv()
	if cfg.UseSecrets {
		awsCfg, err := awspkg.LoadAWSConfig(ctx, cfg.AWSSettings())
		if err != nil {
			return nil, err
		}
		if err := cfg.ApplySecrets(ctx, awspkg.NewSecretsClient(awsCfg)); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a Config from environment variables and defaults only.
func FromEnv() *Config {
	cfg := &Config{
		Port:    getEnv("PORT", "8080"),
		Env:     getEnv("APP_ENV", "development"),
		BaseURL: strings.TrimRight(os.Getenv("BASE_URL"), "/"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		WebhookTolerance:    getEnvDuration("STRIPE_WEBHOOK_TOLERANCE", 300*time.Second),
		Currency:            strings.ToLower(getEnv("CURRENCY", "usd")),

		AdminSecretKey: os.Getenv("ADMIN_SECRET_KEY"),
		JWTSecret:      os.Getenv("JWT_SECRET"),

		EmailProvider:     getEnv("EMAIL_PROVIDER", EmailProviderResend),
		ResendAPIKey:      os.Getenv("RESEND_API_KEY"),
		EmailFrom:         getEnv("EMAIL_FROM", "Zenhaven <orders@resend.dev>"),
		SMTPHost:          os.Getenv("SMTP_HOST"),
		SMTPPort:          getEnvInt("SMTP_PORT", 587),
		SMTPUsername:      os.Getenv("SMTP_USERNAME"),
		SMTPPassword:      os.Getenv("SMTP_PASSWORD"),
		EmailSendAttempts: getEnvInt("EMAIL_SEND_ATTEMPTS", 1),
		EmailRetryBackoff: getEnvDuration("EMAIL_RETRY_BACKOFF", 2*time.Second),

		OrderStatusStore:        getEnv("ORDER_STATUS_STORE", StatusStoreGateway),
		StrictStatusTransitions: getEnvBool("STRICT_STATUS_TRANSITIONS", false),
		NotificationDedupe:      getEnvBool("NOTIFICATION_DEDUPE", false),
		NotificationDedupeTTL:   getEnvDuration("NOTIFICATION_DEDUPE_TTL", 72*time.Hour),

		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone: getEnv("POSTGRES_TIMEZONE", "UTC"),

		RedisURL: os.Getenv("REDIS_URL"),

		AWSRegion:              getEnv("AWS_REGION", "us-east-1"),
		AWSEndpoint:            os.Getenv("AWS_ENDPOINT"),
		UseSecrets:             getEnvBool("AWS_USE_SECRETS", false),
		OrderEventsTopicARN:    os.Getenv("ORDER_EVENTS_TOPIC_ARN"),
		ShippingEventsQueueURL: os.Getenv("SHIPPING_EVENTS_QUEUE_URL"),
		KafkaBrokers:           getEnvList("KAFKA_BROKERS"),
		KafkaOrderEventsTopic:  getEnv("KAFKA_ORDER_EVENTS_TOPIC", "order-events"),

		CloudWatchEnabled:   getEnvBool("CLOUDWATCH_ENABLED", false),
		CloudWatchNamespace: getEnv("CLOUDWATCH_NAMESPACE", "ZenHaven"),
		CloudWatchLogGroup:  getEnv("CLOUDWATCH_LOG_GROUP", "/zenhaven/services"),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 10),
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		if origin := originOf(cfg.BaseURL); origin != "" {
			cfg.CORSAllowedOrigins = []string{origin}
		}
	}
	return cfg
}

// originOf returns scheme://host of an absolute URL, or "" otherwise.
func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// ApplySecrets overrides Stripe and database credentials from
// zenhaven/STRIPE and zenhaven/DB_CREDENTIALS. A secret that does not exist
// is skipped; any other read error is returned.
func (c *Config) ApplySecrets(ctx context.Context, src SecretSource) error {
	stripeSecrets, err := src.GetSecretJSON(ctx, "zenhaven/STRIPE")
	switch {
	case err == nil:
		override(&c.StripeSecretKey, stripeSecrets["STRIPE_SECRET_KEY"])
		override(&c.StripeWebhookSecret, stripeSecrets["STRIPE_WEBHOOK_SECRET"])
		override(&c.AdminSecretKey, stripeSecrets["ADMIN_SECRET_KEY"])
		override(&c.ResendAPIKey, stripeSecrets["RESEND_API_KEY"])
	case !errors.Is(err, awspkg.ErrSecretNotFound):
		return fmt.Errorf("read stripe secrets: %w", err)
	}

	dbSecrets, err := src.GetSecretJSON(ctx, "zenhaven/DB_CREDENTIALS")
	switch {
	case err == nil:
		override(&c.PostgresUser, dbSecrets["POSTGRES_USER"])
		override(&c.PostgresPassword, dbSecrets["POSTGRES_PASSWORD"])
		override(&c.PostgresDB, dbSecrets["POSTGRES_DB"])
		override(&c.PostgresHost, dbSecrets["POSTGRES_HOST"])
		override(&c.PostgresPort, dbSecrets["POSTGRES_PORT"])
	case !errors.Is(err, awspkg.ErrSecretNotFound):
		return fmt.Errorf("read database secrets: %w", err)
	}
	return nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.StripeSecretKey == "" {
		errs = append(errs, errors.New("STRIPE_SECRET_KEY is required"))
	}
	if c.StripeWebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required"))
	}
	if u, err := url.Parse(c.BaseURL); c.BaseURL == "" || err != nil || !u.IsAbs() {
		errs = append(errs, errors.New("BASE_URL must be an absolute URL"))
	}

	switch c.OrderStatusStore {
	case StatusStoreGateway:
	case StatusStoreGatewayPostgres:
		if !c.DatabaseEnabled() {
			errs = append(errs, fmt.Errorf("ORDER_STATUS_STORE=%s needs POSTGRES_USER, POSTGRES_PASSWORD, POSTGRES_DB and POSTGRES_HOST", c.OrderStatusStore))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ORDER_STATUS_STORE %q", c.OrderStatusStore))
	}

	if c.NotificationDedupe && c.RedisURL == "" {
		errs = append(errs, errors.New("NOTIFICATION_DEDUPE=true needs REDIS_URL"))
	}

	switch c.EmailProvider {
	case EmailProviderResend:
		if c.ResendAPIKey == "" {
			errs = append(errs, errors.New("EMAIL_PROVIDER=resend needs RESEND_API_KEY"))
		}
	case EmailProviderSMTP:
		if c.SMTPHost == "" {
			errs = append(errs, errors.New("EMAIL_PROVIDER=smtp needs SMTP_HOST"))
		}
	case EmailProviderLog:
	default:
		errs = append(errs, fmt.Errorf("unknown EMAIL_PROVIDER %q", c.EmailProvider))
	}

	if c.EmailSendAttempts < 1 {
		errs = append(errs, errors.New("EMAIL_SEND_ATTEMPTS must be at least 1"))
	}
	return errors.Join(errs...)
}

// DatabaseEnabled reports whether enough Postgres settings are present to connect.
func (c *Config) DatabaseEnabled() bool {
	return c.PostgresUser != "" && c.PostgresPassword != "" && c.PostgresDB != "" && c.PostgresHost != ""
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB,
		c.PostgresPort, c.PostgresSSLMode, c.PostgresTimeZone)
}

func (c *Config) AWSSettings() awspkg.Settings {
	return awspkg.Settings{Region: c.AWSRegion, Endpoint: c.AWSEndpoint}
}

// AWSEnabled reports whether any component needs an AWS client.
func (c *Config) AWSEnabled() bool {
	return c.OrderEventsTopicARN != "" || c.ShippingEventsQueueURL != "" || c.CloudWatchEnabled
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return fallback
}

// getEnvDuration accepts Go durations ("300s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if n, err := strconv.Atoi(val); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
