package services

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/dodomiyake/zenhaven/apperrors"
	"github.com/dodomiyake/zenhaven/logger"
	"github.com/dodomiyake/zenhaven/models"
	awspkg "github.com/dodomiyake/zenhaven/pkg/aws"
	"github.com/dodomiyake/zenhaven/sender"
)

//go:embed templates/order_confirmation.html
var orderConfirmationHTML string

var orderConfirmationTmpl = template.Must(template.New("order_confirmation").Parse(orderConfirmationHTML))

// ErrDuplicateConfirmation is returned when dedupe is enabled and another
// delivery already claimed the confirmation for this order.
var ErrDuplicateConfirmation = errors.New("order confirmation already sent")

type confirmationItem struct {
	Name      string
	Quantity  int64
	UnitPrice string
	LineTotal string
	Image     string
}

type confirmationData struct {
	OrderNumber string
	OrderDate   string
	Items       []confirmationItem
	Total       string
}

// NotificationDispatcher renders and sends the order confirmation e-mail.
type NotificationDispatcher struct {
	sender   sender.EmailSender
	logs     NotificationLogStore
	deduper  NotificationDeduper
	metrics  MetricsRecorder
	attempts int
	backoff  time.Duration
	locale   language.Tag
	logger   *zap.Logger
}

type DispatcherOption func(*NotificationDispatcher)

func WithNotificationLog(store NotificationLogStore) DispatcherOption {
	return func(d *NotificationDispatcher) { d.logs = store }
}

// WithDeduper enables the one-email-per-order claim.
func WithDeduper(deduper NotificationDeduper) DispatcherOption {
	return func(d *NotificationDispatcher) { d.deduper = deduper }
}

func WithSendAttempts(attempts int, backoff time.Duration) DispatcherOption {
	return func(d *NotificationDispatcher) {
		if attempts > 0 {
			d.attempts = attempts
		}
		d.backoff = backoff
	}
}

func WithDispatcherMetrics(m MetricsRecorder) DispatcherOption {
	return func(d *NotificationDispatcher) { d.metrics = m }
}

func WithLocale(tag language.Tag) DispatcherOption {
	return func(d *NotificationDispatcher) { d.locale = tag }
}

func NewNotificationDispatcher(s sender.EmailSender, log *zap.Logger, opts ...DispatcherOption) *NotificationDispatcher {
	d := &NotificationDispatcher{
		sender:   s,
		attempts: 1,
		locale:   language.AmericanEnglish,
		logger:   log,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RenderOrderConfirmation returns the subject and HTML body for order.
func (d *NotificationDispatcher) RenderOrderConfirmation(order models.OrderView) (string, string, error) {
	unit, err := currency.ParseISO(strings.ToUpper(order.Currency))
	if err != nil {
		unit = currency.USD
	}
	p := message.NewPrinter(d.locale)
	symbol := p.Sprint(currency.Symbol(unit))
	format := func(v float64) string {
		return symbol + p.Sprintf("%.2f", v)
	}

	data := confirmationData{
		OrderNumber: order.OrderNumber,
		OrderDate:   orderDate(order.CreatedAt),
		Items:       make([]confirmationItem, 0, len(order.Items)),
		Total:       format(order.Amount),
	}
	for _, item := range order.Items {
		data.Items = append(data.Items, confirmationItem{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: format(item.Price),
			LineTotal: format(item.Price * float64(item.Quantity)),
			Image:     safeImageURL(item.Image),
		})
	}

	var buf bytes.Buffer
	if err := orderConfirmationTmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("template render failed: %w", err)
	}
	return "Order Confirmation #" + order.OrderNumber, buf.String(), nil
}

// SendOrderConfirmation renders and sends the confirmation. Transport
// failures come back as delivery errors for the caller to log.
func (d *NotificationDispatcher) SendOrderConfirmation(ctx context.Context, to string, order models.OrderView) (*models.DeliveryReceipt, error) {
	log := logger.WithContext(ctx, d.logger).With(
		zap.String("session_id", order.ID),
		zap.String("order_number", order.OrderNumber),
	)

	if to == "" {
		return nil, apperrors.Validation("recipient is required")
	}

	subject, body, err := d.RenderOrderConfirmation(order)
	if err != nil {
		return nil, err
	}

	if d.deduper != nil {
		claimed, err := d.deduper.Claim(ctx, order.ID)
		switch {
		case err != nil:
			log.Warn("Confirmation dedupe unavailable, sending anyway", zap.Error(err))
		case !claimed:
			return nil, ErrDuplicateConfirmation
		}
	}

	result, attempts, sendErr := d.sendWithRetry(ctx, log, to, subject, body)
	d.saveLog(ctx, log, order.ID, to, result.MessageID, attempts, sendErr)

	if sendErr != nil {
		recordCount(d.metrics, awspkg.MetricConfirmationEmailsFailed, nil)
		if d.deduper != nil {
			if err := d.deduper.Release(ctx, order.ID); err != nil {
				log.Warn("Failed to release confirmation claim", zap.Error(err))
			}
		}
		return nil, apperrors.Delivery(sendErr)
	}

	recordCount(d.metrics, awspkg.MetricConfirmationEmailsSent, nil)
	log.Info("Order confirmation sent", zap.String("message_id", result.MessageID), zap.Int("attempts", attempts))
	return &models.DeliveryReceipt{MessageID: result.MessageID, Recipient: to, SentAt: result.SentAt}, nil
}

func (d *NotificationDispatcher) sendWithRetry(ctx context.Context, log *zap.Logger, to, subject, body string) (sender.SendResult, int, error) {
	var lastErr error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return sender.SendResult{}, attempt - 1, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * d.backoff):
			}
		}

		result, err := d.sender.SendEmail(ctx, to, subject, body)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err
		log.Warn("send attempt failed", zap.Int("attempt", attempt), zap.Error(err))
	}
	return sender.SendResult{}, d.attempts, lastErr
}

func (d *NotificationDispatcher) saveLog(ctx context.Context, log *zap.Logger, sessionID, to, messageID string, attempts int, sendErr error) {
	if d.logs == nil {
		return
	}
	entry := &models.NotificationLog{
		SessionID: sessionID,
		Recipient: to,
		Type:      models.TypeOrderConfirmation,
		Channel:   models.ChannelEmail,
		Status:    models.NotificationSent,
		MessageID: messageID,
		Attempts:  attempts,
	}
	if sendErr != nil {
		entry.Status = models.NotificationFailed
		entry.Error = sendErr.Error()
	}
	if err := d.logs.SaveLog(ctx, entry); err != nil {
		log.Error("failed to save notification log", zap.Error(err))
	}
}

// orderDate renders an RFC 3339 timestamp as MM/DD/YYYY.
func orderDate(createdAt string) string {
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return createdAt
	}
	return t.Format("01/02/2006")
}

// safeImageURL keeps only absolute http(s) URLs.
func safeImageURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	return u.String()
}
