package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/dodomiyake/zenhaven/apperrors"
	"github.com/dodomiyake/zenhaven/logger"
	"github.com/dodomiyake/zenhaven/models"
	awspkg "github.com/dodomiyake/zenhaven/pkg/aws"
)

// WebhookState tracks one delivery through the router.
type WebhookState string

const (
	StateReceived    WebhookState = "received"
	StateVerifying   WebhookState = "verifying"
	StateDispatching WebhookState = "dispatching"
	StateDone        WebhookState = "done"
	StateRejected    WebhookState = "rejected"
)

const (
	ActionStatusProcessing = "status:processing"
	ActionStatusCancelled  = "status:cancelled"
	ActionLogged           = "logged"
	ActionIgnored          = "ignored"
	ActionNoMatch          = "no_matching_session"
	ActionUnknownSession   = "unknown_session"
)

// WebhookOutcome reports how far a delivery got and what it did. A dispatch
// error leaves State at dispatching.
type WebhookOutcome struct {
	State     WebhookState
	EventID   string
	EventType string
	SessionID string
	Action    string
}

// WebhookService verifies gateway events and maps each type to a status
// change. Every handler is safe to run again for the same event.
type WebhookService struct {
	gateway    PaymentGateway
	reconciler Reconciler
	notifier   ConfirmationNotifier
	audit      WebhookEventStore
	metrics    MetricsRecorder
	logger     *zap.Logger
}

type WebhookOption func(*WebhookService)

func WithWebhookAudit(store WebhookEventStore) WebhookOption {
	return func(s *WebhookService) { s.audit = store }
}

func WithWebhookMetrics(m MetricsRecorder) WebhookOption {
	return func(s *WebhookService) { s.metrics = m }
}

func NewWebhookService(gateway PaymentGateway, reconciler Reconciler, notifier ConfirmationNotifier, log *zap.Logger, opts ...WebhookOption) *WebhookService {
	s := &WebhookService{
		gateway:    gateway,
		reconciler: reconciler,
		notifier:   notifier,
		logger:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle verifies raw against the signature header and dispatches the event.
// Once dispatch starts it is not cancelled by the caller's context.
func (s *WebhookService) Handle(ctx context.Context, raw []byte, signature string) (*WebhookOutcome, error) {
	out := &WebhookOutcome{State: StateReceived}
	log := logger.WithContext(ctx, s.logger)

	out.State = StateVerifying
	event, err := s.gateway.VerifyWebhookSignature(raw, signature)
	if err != nil {
		out.State = StateRejected
		recordCount(s.metrics, awspkg.MetricWebhooksRejected, nil)
		log.Warn("Stripe webhook rejected", zap.Error(err))
		return out, err
	}

	out.EventID, out.EventType = event.ID, event.Type
	log = log.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))
	recordCount(s.metrics, awspkg.MetricWebhooksReceived, map[string]string{"event_type": event.Type})

	dctx := context.WithoutCancel(ctx)
	if s.audit != nil {
		if err := s.audit.Record(dctx, event); err != nil {
			log.Warn("Failed to record webhook event", zap.Error(err))
		}
	}

	out.State = StateDispatching
	log.Info("Processing Stripe webhook")

	if err := s.dispatch(dctx, log, event, out); err != nil {
		if apperrors.IsNotFound(err) {
			log.Warn("Webhook references a session the gateway does not know", zap.String("session_id", out.SessionID), zap.Error(err))
			out.Action = ActionUnknownSession
			out.State = StateDone
			return out, nil
		}
		log.Error("Webhook dispatch failed", zap.String("session_id", out.SessionID), zap.Error(err))
		return out, err
	}

	out.State = StateDone
	return out, nil
}

func (s *WebhookService) dispatch(ctx context.Context, log *zap.Logger, event *models.WebhookEvent, out *WebhookOutcome) error {
	switch event.Type {
	case models.EventCheckoutSessionCompleted:
		return s.handleCheckoutCompleted(ctx, log, event, out)

	case models.EventCheckoutSessionExpired:
		if event.Session == nil {
			return malformed(errors.New("checkout.session event without session"))
		}
		out.SessionID = event.Session.ID
		if _, err := s.reconciler.Reconcile(ctx, event.Session.ID, models.StatusCancelled); err != nil {
			return err
		}
		out.Action = ActionStatusCancelled
		return nil

	case models.EventPaymentIntentFailed:
		log.Info("Payment failed, leaving order status unchanged", zap.String("payment_intent_id", event.PaymentIntentID))
		out.Action = ActionLogged
		return nil

	case models.EventPaymentIntentSucceeded:
		return s.reconcileByPaymentIntent(ctx, log, event.PaymentIntentID, models.StatusProcessing, ActionStatusProcessing, out)

	case models.EventChargeRefunded:
		return s.reconcileByPaymentIntent(ctx, log, event.PaymentIntentID, models.StatusCancelled, ActionStatusCancelled, out)

	default:
		log.Info("Unhandled webhook event type")
		out.Action = ActionIgnored
		return nil
	}
}

func (s *WebhookService) handleCheckoutCompleted(ctx context.Context, log *zap.Logger, event *models.WebhookEvent, out *WebhookOutcome) error {
	sess := event.Session
	if sess == nil {
		return malformed(errors.New("checkout.session event without session"))
	}
	out.SessionID = sess.ID

	if _, err := s.reconciler.Reconcile(ctx, sess.ID, models.StatusProcessing); err != nil {
		return err
	}
	out.Action = ActionStatusProcessing

	if sess.CustomerEmail == "" {
		log.Info("No customer email on session, skipping confirmation", zap.String("session_id", sess.ID))
		return nil
	}

	items, err := s.gateway.ListLineItems(ctx, sess.ID)
	if err != nil {
		log.Error("Failed to fetch line items, skipping confirmation", zap.String("session_id", sess.ID), zap.Error(err))
		return nil
	}

	projected := *sess
	projected.Status = models.StatusProcessing
	view := ProjectOrder(&projected, items)

	if _, err := s.notifier.SendOrderConfirmation(ctx, sess.CustomerEmail, view); err != nil {
		if errors.Is(err, ErrDuplicateConfirmation) {
			log.Info("Confirmation already sent for session", zap.String("session_id", sess.ID))
			return nil
		}
		log.Error("Failed to send order confirmation", zap.String("session_id", sess.ID), zap.Error(err))
	}
	return nil
}

// reconcileByPaymentIntent moves the first session paid by intentID. No
// matching session is a normal outcome.
func (s *WebhookService) reconcileByPaymentIntent(ctx context.Context, log *zap.Logger, intentID string, status models.OrderStatus, action string, out *WebhookOutcome) error {
	if intentID == "" {
		log.Warn("Event carries no payment intent, nothing to reconcile")
		out.Action = ActionNoMatch
		return nil
	}

	page, err := s.gateway.ListSessions(ctx, models.SessionFilter{PaymentIntentID: intentID, Limit: 1})
	if err != nil {
		return err
	}
	if len(page.Sessions) == 0 {
		log.Info("No checkout session for payment intent", zap.String("payment_intent_id", intentID))
		out.Action = ActionNoMatch
		return nil
	}

	out.SessionID = page.Sessions[0].ID
	if _, err := s.reconciler.Reconcile(ctx, out.SessionID, status); err != nil {
		return err
	}
	out.Action = action
	return nil
}
