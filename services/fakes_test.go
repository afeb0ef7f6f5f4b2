package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80/webhook"

	"github.com/dodomiyake/zenhaven/apperrors"
	"github.com/dodomiyake/zenhaven/models"
	"github.com/dodomiyake/zenhaven/sender"
)

const testWebhookSecret = "whsec_test_secret"

// fakeGateway keeps sessions in memory and verifies signatures for real.
type fakeGateway struct {
	mu        sync.Mutex
	sessions  map[string]*models.CheckoutSession
	order     []string
	lineItems map[string][]models.LineItem
	created   []models.NewSessionParams
	coupons   map[string]float64
	updates   []models.OrderStatus
	listCalls []models.SessionFilter

	updateErr    error
	listErr      error
	lineItemsErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		sessions:  map[string]*models.CheckoutSession{},
		lineItems: map[string][]models.LineItem{},
		coupons:   map[string]float64{},
	}
}

func (f *fakeGateway) addSession(s models.CheckoutSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.Status == "" {
		s.Status = models.StatusPending
	}
	f.sessions[s.ID] = &s
	f.order = append(f.order, s.ID)
}

func (f *fakeGateway) status(id string) models.OrderStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		return s.Status
	}
	return ""
}

func (f *fakeGateway) CreateCheckoutSession(_ context.Context, p models.NewSessionParams) (*models.CheckoutSession, error) {
	f.mu.Lock()
	f.created = append(f.created, p)
	f.mu.Unlock()

	var total int64
	var items []models.LineItem
	for _, li := range p.LineItems {
		total += li.UnitAmount * li.Quantity
		amount := li.UnitAmount
		items = append(items, models.LineItem{Description: li.Name, Quantity: li.Quantity, UnitAmount: &amount})
	}
	id := fmt.Sprintf("cs_test_%d", len(f.created))
	f.addSession(models.CheckoutSession{
		ID:            id,
		AmountTotal:   total,
		Currency:      p.Currency,
		CustomerEmail: p.CustomerEmail,
		PaymentStatus: models.PaymentStatusUnpaid,
		Status:        models.StatusPending,
		LineItems:     items,
		Created:       time.Now().Unix(),
		URL:           "https://checkout.stripe.test/" + id,
	})
	f.mu.Lock()
	f.lineItems[id] = items
	sess := *f.sessions[id]
	f.mu.Unlock()
	return &sess, nil
}

func (f *fakeGateway) RetrieveSession(_ context.Context, id string, _ ...string) (*models.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("session not found", nil)
	}
	out := *s
	return &out, nil
}

func (f *fakeGateway) ListSessions(_ context.Context, filter models.SessionFilter) (*models.SessionPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls = append(f.listCalls, filter)
	if f.listErr != nil {
		return nil, f.listErr
	}

	var matched []models.CheckoutSession
	started := filter.StartingAfter == ""
	for _, id := range f.order {
		if !started {
			started = id == filter.StartingAfter
			continue
		}
		s := f.sessions[id]
		if filter.PaymentIntentID != "" && s.PaymentIntentID != filter.PaymentIntentID {
			continue
		}
		if filter.CustomerEmail != "" && s.CustomerEmail != filter.CustomerEmail {
			continue
		}
		matched = append(matched, *s)
	}

	page := &models.SessionPage{Sessions: []models.CheckoutSession{}}
	limit := int(filter.Limit)
	if limit <= 0 {
		limit = 10
	}
	if len(matched) > limit {
		page.HasMore = true
		matched = matched[:limit]
	}
	page.Sessions = append(page.Sessions, matched...)
	if page.HasMore {
		page.NextCursor = matched[len(matched)-1].ID
	}
	return page, nil
}

func (f *fakeGateway) ListLineItems(_ context.Context, sessionID string) ([]models.LineItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lineItemsErr != nil {
		return nil, f.lineItemsErr
	}
	return f.lineItems[sessionID], nil
}

func (f *fakeGateway) UpdateSessionMetadata(_ context.Context, id string, status models.OrderStatus) (*models.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("session not found", nil)
	}
	s.Status = status
	f.updates = append(f.updates, status)
	out := *s
	return &out, nil
}

func (f *fakeGateway) EnsureCoupon(_ context.Context, code string, percentOff float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.coupons[code] = percentOff
	return code, nil
}

func (f *fakeGateway) VerifyWebhookSignature(raw []byte, header string) (*models.WebhookEvent, error) {
	return ParseStripeEvent(raw, header, testWebhookSecret, 300*time.Second)
}

// gatewayStore adapts fakeGateway to OrderStatusStore without importing repository.
type gatewayStore struct{ gw *fakeGateway }

func (s gatewayStore) GetStatus(ctx context.Context, id string) (models.OrderStatus, error) {
	sess, err := s.gw.RetrieveSession(ctx, id)
	if err != nil {
		return "", err
	}
	return sess.Status, nil
}

func (s gatewayStore) SetStatus(ctx context.Context, id string, status models.OrderStatus) (*models.CheckoutSession, error) {
	return s.gw.UpdateSessionMetadata(ctx, id, status)
}

type sentEmail struct {
	to      string
	subject string
	body    string
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []sentEmail
	fails int
	calls int
}

func (f *fakeSender) SendEmail(_ context.Context, to, subject, body string) (sender.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fails {
		return sender.SendResult{}, fmt.Errorf("provider unavailable (call %d)", f.calls)
	}
	f.sent = append(f.sent, sentEmail{to: to, subject: subject, body: body})
	return sender.SendResult{MessageID: fmt.Sprintf("msg_%d", f.calls), SentAt: time.Now()}, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	sends []models.OrderView
	to    []string
	err   error
}

func (f *fakeNotifier) SendOrderConfirmation(_ context.Context, to string, order models.OrderView) (*models.DeliveryReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, order)
	f.to = append(f.to, to)
	if f.err != nil {
		return nil, f.err
	}
	return &models.DeliveryReceipt{MessageID: "msg", Recipient: to}, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.OrderStatusEvent
	err    error
}

func (f *fakePublisher) PublishOrderStatus(_ context.Context, e models.OrderStatusEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return f.err
}

type fakeLogStore struct {
	logs []*models.NotificationLog
}

func (f *fakeLogStore) SaveLog(_ context.Context, log *models.NotificationLog) error {
	f.logs = append(f.logs, log)
	return nil
}

func (f *fakeLogStore) ListBySession(_ context.Context, sessionID string) ([]models.NotificationLog, error) {
	var out []models.NotificationLog
	for _, l := range f.logs {
		if l.SessionID == sessionID {
			out = append(out, *l)
		}
	}
	return out, nil
}

type fakeDeduper struct {
	claimed  map[string]bool
	released []string
}

func (f *fakeDeduper) Claim(_ context.Context, id string) (bool, error) {
	if f.claimed[id] {
		return false, nil
	}
	f.claimed[id] = true
	return true, nil
}

func (f *fakeDeduper) Release(_ context.Context, id string) error {
	delete(f.claimed, id)
	f.released = append(f.released, id)
	return nil
}

type fakeAudit struct {
	events []string
}

func (f *fakeAudit) Record(_ context.Context, e *models.WebhookEvent) error {
	f.events = append(f.events, e.ID)
	return nil
}

var eventSeq int

// signedEvent builds a Stripe event envelope around object and signs it.
func signedEvent(t *testing.T, eventType string, object map[string]any) ([]byte, string) {
	t.Helper()
	eventSeq++
	raw, err := json.Marshal(map[string]any{
		"id":          fmt.Sprintf("evt_test_%d", eventSeq),
		"object":      "event",
		"type":        eventType,
		"created":     time.Now().Unix(),
		"api_version": "2024-09-30.acacia",
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: raw,
		Secret:  testWebhookSecret,
	})
	return signed.Payload, signed.Header
}

func sessionObject(id, paymentIntent, email string) map[string]any {
	obj := map[string]any{
		"id":             id,
		"object":         "checkout.session",
		"payment_status": "paid",
		"amount_total":   3998,
		"currency":       "usd",
		"created":        1700000000,
		"metadata":       map[string]any{"status": "pending"},
	}
	if paymentIntent != "" {
		obj["payment_intent"] = paymentIntent
	}
	if email != "" {
		obj["customer_details"] = map[string]any{"email": email}
	}
	return obj
}
