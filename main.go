package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/dodomiyake/zenhaven/config"
	"github.com/dodomiyake/zenhaven/controllers"
	"github.com/dodomiyake/zenhaven/database"
	"github.com/dodomiyake/zenhaven/events"
	"github.com/dodomiyake/zenhaven/logger"
	"github.com/dodomiyake/zenhaven/middleware"
	awspkg "github.com/dodomiyake/zenhaven/pkg/aws"
	"github.com/dodomiyake/zenhaven/repository"
	"github.com/dodomiyake/zenhaven/routes"
	"github.com/dodomiyake/zenhaven/sender"
	"github.com/dodomiyake/zenhaven/services"
)

const serviceName = "zenhaven"

func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		log.Fatalf("[ZenHaven] Failed to load config: %v", err)
	}

	// AWS (only when something needs it)
	var awsCfg sdkaws.Config
	if cfg.AWSEnabled() {
		awsCfg, err = awspkg.LoadAWSConfig(ctx, cfg.AWSSettings())
		if err != nil {
			log.Fatalf("[ZenHaven] Failed to load AWS config: %v", err)
		}
	}

	// Logger, tee'd to CloudWatch Logs when enabled
	var logWriter *awspkg.CloudWatchLogsClient
	if cfg.CloudWatchEnabled {
		logWriter, err = awspkg.NewCloudWatchLogsClient(ctx, awsCfg, cfg.CloudWatchLogGroup, serviceName)
		if err != nil {
			log.Printf("[ZenHaven] CloudWatch Logs unavailable, logging to stdout only: %v", err)
		}
	}
	var zl *zap.Logger
	if logWriter != nil {
		zl, err = logger.New(cfg.Env, logWriter)
	} else {
		zl, err = logger.New(cfg.Env, nil)
	}
	if err != nil {
		log.Fatalf("[ZenHaven] Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	var metrics *awspkg.MetricsClient
	if cfg.CloudWatchEnabled {
		metrics = awspkg.NewMetricsClient(awsCfg, cfg.CloudWatchNamespace, true)
	}

	// Optional Postgres
	var db *gorm.DB
	if cfg.DatabaseEnabled() {
		db, err = database.ConnectPostgres(ctx, cfg.PostgresDSN(), zl)
		if err != nil {
			zl.Fatal("DB connection failed", zap.Error(err))
		}
		defer func() {
			if err := database.Close(db); err != nil {
				zl.Error("Database close error", zap.Error(err))
			}
		}()
	}

	// Optional Redis
	var rdb *redis.Client
	if cfg.NotificationDedupe {
		rdb, err = database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			zl.Fatal("Redis connection failed", zap.Error(err))
		}
		defer rdb.Close()
	}

	// Payment gateway and status store
	stripeSvc := services.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.WebhookTolerance)
	gatewayStore := repository.NewGatewayStatusStore(stripeSvc)
	var statusStore services.OrderStatusStore = gatewayStore
	if cfg.OrderStatusStore == config.StatusStoreGatewayPostgres {
		statusStore = repository.NewMirroredStatusStore(gatewayStore, repository.NewGormStatusRepository(db), zl)
	}

	// Order events
	publisher, closePublishers := buildPublisher(cfg, awsCfg)
	defer closePublishers()

	reconcilerOpts := []services.ReconcilerOption{
		services.WithStrictTransitions(cfg.StrictStatusTransitions),
		services.WithPublisher(publisher),
	}
	if metrics != nil {
		reconcilerOpts = append(reconcilerOpts, services.WithReconcilerMetrics(metrics))
	}
	reconciler := services.NewStatusReconciler(statusStore, zl, reconcilerOpts...)

	// Notifications
	emailSender, err := buildSender(cfg, zl)
	if err != nil {
		zl.Fatal("Failed to init email sender", zap.Error(err))
	}
	dispatcherOpts := []services.DispatcherOption{
		services.WithSendAttempts(cfg.EmailSendAttempts, cfg.EmailRetryBackoff),
	}
	var notificationRepo *repository.NotificationRepository
	if db != nil {
		notificationRepo = repository.NewNotificationRepository(db)
		dispatcherOpts = append(dispatcherOpts, services.WithNotificationLog(notificationRepo))
	}
	if rdb != nil {
		dispatcherOpts = append(dispatcherOpts, services.WithDeduper(repository.NewRedisNotificationDeduper(rdb, cfg.NotificationDedupeTTL)))
	}
	if metrics != nil {
		dispatcherOpts = append(dispatcherOpts, services.WithDispatcherMetrics(metrics))
	}
	dispatcher := services.NewNotificationDispatcher(emailSender, zl, dispatcherOpts...)

	// Webhooks
	webhookOpts := []services.WebhookOption{}
	if db != nil {
		webhookOpts = append(webhookOpts, services.WithWebhookAudit(repository.NewWebhookEventRepository(db)))
	}
	if metrics != nil {
		webhookOpts = append(webhookOpts, services.WithWebhookMetrics(metrics))
	}
	webhookSvc := services.NewWebhookService(stripeSvc, reconciler, dispatcher, zl, webhookOpts...)

	var checkoutMetrics services.MetricsRecorder
	if metrics != nil {
		checkoutMetrics = metrics
	}
	checkoutSvc, err := services.NewCheckoutService(stripeSvc, cfg.BaseURL, cfg.Currency, checkoutMetrics, zl)
	if err != nil {
		zl.Fatal("Failed to init checkout service", zap.Error(err))
	}

	var notificationLogs services.NotificationLogReader
	if notificationRepo != nil {
		notificationLogs = notificationRepo
	}
	orderSvc := services.NewOrderService(stripeSvc, notificationLogs, zl)

	// Router
	limiter := middleware.NewRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst, 5*time.Minute)
	limiterCtx, stopLimiter := context.WithCancel(ctx)
	defer stopLimiter()
	go limiter.Cleanup(limiterCtx)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(
		gin.Recovery(),
		logger.RequestID(),
		logger.RequestLogger(zl),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.CORSAllowedOrigins),
		middleware.Metrics(metrics, serviceName),
		middleware.Timeout(30*time.Second),
	)
	routes.RegisterRoutes(r, routes.Controllers{
		Checkout: controllers.NewCheckoutController(checkoutSvc, zl),
		Webhook:  controllers.NewWebhookController(webhookSvc, zl),
		Orders:   controllers.NewOrderController(orderSvc, reconciler, zl),
	}, routes.Options{
		AdminSecret: cfg.AdminSecretKey,
		JWTSecret:   cfg.JWTSecret,
		Limiter:     limiter,
	})

	// Shipping events consumer
	consumerCtx, consumerCancel := context.WithCancel(ctx)
	defer consumerCancel()
	if cfg.ShippingEventsQueueURL != "" {
		consumer := awspkg.NewSQSConsumer(awsCfg, cfg.ShippingEventsQueueURL, zl)
		shipping := services.NewShippingEventConsumer(reconciler, zl)
		go func() {
			if err := consumer.StartPolling(consumerCtx, shipping.Handle); err != nil && !errors.Is(err, context.Canceled) {
				zl.Error("Shipping events consumer stopped", zap.Error(err))
			}
		}()
	}

	// HTTP server
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		zl.Info("ZenHaven order service started", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("Initiating graceful shutdown...")
	consumerCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("Server shutdown error", zap.Error(err))
	}
	zl.Info("ZenHaven order service stopped gracefully")
}

// buildPublisher fans order events out to SNS and Kafka, whichever are
// configured. The returned func closes the Kafka writer.
func buildPublisher(cfg *config.Config, awsCfg sdkaws.Config) (events.Publisher, func()) {
	var pubs events.MultiPublisher
	closeFn := func() {}

	if cfg.OrderEventsTopicARN != "" {
		pubs = append(pubs, events.NewSNSPublisher(awspkg.NewSNSClient(awsCfg), cfg.OrderEventsTopicARN))
	}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaOrderEventsTopic)
		pubs = append(pubs, kp)
		closeFn = func() { _ = kp.Close() }
	}

	if len(pubs) == 0 {
		return events.NoopPublisher{}, closeFn
	}
	return pubs, closeFn
}

func buildSender(cfg *config.Config, zl *zap.Logger) (sender.EmailSender, error) {
	switch cfg.EmailProvider {
	case config.EmailProviderSMTP:
		return sender.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.EmailFrom)
	case config.EmailProviderLog:
		return sender.NewLogSender(zl), nil
	default:
		return sender.NewResendSender(cfg.ResendAPIKey, cfg.EmailFrom)
	}
}
