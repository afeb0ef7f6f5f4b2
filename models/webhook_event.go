package models

const (
	EventCheckoutSessionCompleted  = "checkout.session.completed"
	EventCheckoutSessionExpired    = "checkout.session.expired"
	EventPaymentIntentSucceeded    = "payment_intent.succeeded"
	EventPaymentIntentFailed       = "payment_intent.payment_failed"
	EventChargeRefunded            = "charge.refunded"
)

const (
	ObjectCheckoutSession = "checkout.session"
	ObjectPaymentIntent   = "payment_intent"
	ObjectCharge          = "charge"
)

// WebhookEvent is a verified gateway event mapped onto internal types.
type WebhookEvent struct {
	ID              string
	Type            string
	Created         int64
	ObjectType      string
	ObjectID        string
	Session         *CheckoutSession // set for checkout.session.* events
	PaymentIntentID string           // set for payment_intent.* and charge.* events
	Payload         []byte
}
