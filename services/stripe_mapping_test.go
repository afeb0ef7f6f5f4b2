package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80/webhook"

	"github.com/dodomiyake/zenhaven/apperrors"
	"github.com/dodomiyake/zenhaven/models"
)

func TestParseStripeEventMapsCheckoutSession(t *testing.T) {
	raw, header := signedEvent(t, models.EventCheckoutSessionCompleted, sessionObject("cs_test_1", "pi_1", "jane@example.com"))

	event, err := ParseStripeEvent(raw, header, testWebhookSecret, 300*time.Second)

	require.NoError(t, err)
	assert.Equal(t, models.EventCheckoutSessionCompleted, event.Type)
	assert.Equal(t, models.ObjectCheckoutSession, event.ObjectType)
	assert.Equal(t, "cs_test_1", event.ObjectID)
	require.NotNil(t, event.Session)
	assert.Equal(t, "pi_1", event.Session.PaymentIntentID)
	assert.Equal(t, "jane@example.com", event.Session.CustomerEmail)
	assert.Equal(t, int64(3998), event.Session.AmountTotal)
	assert.Equal(t, models.StatusPending, event.Session.Status)
	assert.Equal(t, models.PaymentStatusPaid, event.Session.PaymentStatus)
}

func TestParseStripeEventMapsChargePaymentIntent(t *testing.T) {
	raw, header := signedEvent(t, models.EventChargeRefunded, map[string]any{
		"id": "ch_1", "object": "charge", "payment_intent": "pi_42",
	})

	event, err := ParseStripeEvent(raw, header, testWebhookSecret, 300*time.Second)

	require.NoError(t, err)
	assert.Equal(t, "pi_42", event.PaymentIntentID)
	assert.Nil(t, event.Session)
}

func TestParseStripeEventRejectsWrongSecret(t *testing.T) {
	raw, header := signedEvent(t, models.EventCheckoutSessionCompleted, sessionObject("cs_1", "", ""))

	_, err := ParseStripeEvent(raw, header, "whsec_other", 300*time.Second)

	assert.Equal(t, apperrors.KindSignature, apperrors.KindOf(err))
}

func TestParseStripeEventRejectsTamperedBody(t *testing.T) {
	raw, header := signedEvent(t, models.EventCheckoutSessionCompleted, sessionObject("cs_1", "", ""))
	tampered := append([]byte{}, raw...)
	tampered[len(tampered)-2] = ' '

	_, err := ParseStripeEvent(tampered, header, testWebhookSecret, 300*time.Second)

	assert.Equal(t, apperrors.KindSignature, apperrors.KindOf(err))
}

func TestParseStripeEventRejectsMalformedHeader(t *testing.T) {
	raw, _ := signedEvent(t, models.EventCheckoutSessionCompleted, sessionObject("cs_1", "", ""))

	for _, header := range []string{"", "garbage", "t=abc,v1=deadbeef"} {
		_, err := ParseStripeEvent(raw, header, testWebhookSecret, 300*time.Second)
		assert.Equal(t, apperrors.KindSignature, apperrors.KindOf(err), header)
	}
}

func TestParseStripeEventRejectsOldTimestamp(t *testing.T) {
	raw, err := json.Marshal(map[string]any{
		"id": "evt_old", "object": "event", "type": models.EventCheckoutSessionExpired,
		"data": map[string]any{"object": sessionObject("cs_1", "", "")},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   raw,
		Secret:    testWebhookSecret,
		Timestamp: time.Now().Add(-time.Hour),
	})

	_, err = ParseStripeEvent(signed.Payload, signed.Header, testWebhookSecret, 300*time.Second)

	assert.Equal(t, apperrors.KindSignature, apperrors.KindOf(err))
}

func TestParseStripeEventMalformedObject(t *testing.T) {
	obj := sessionObject("cs_1", "", "")
	obj["amount_total"] = "not-a-number"
	raw, header := signedEvent(t, models.EventCheckoutSessionCompleted, obj)

	_, err := ParseStripeEvent(raw, header, testWebhookSecret, 300*time.Second)

	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}
