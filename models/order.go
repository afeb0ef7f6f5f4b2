package models

// OrderStatus is the order lifecycle status kept in the checkout session's
// metadata under MetadataStatusKey.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

// MetadataStatusKey is the gateway metadata field holding the OrderStatus.
const MetadataStatusKey = "status"

var validStatuses = map[OrderStatus]bool{
	StatusPending:    true,
	StatusProcessing: true,
	StatusShipped:    true,
	StatusDelivered:  true,
	StatusCancelled:  true,
}

// ParseOrderStatus reports whether s names a known status.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	status := OrderStatus(s)
	return status, validStatuses[status]
}

// IsValid reports whether the status is one of the known lifecycle values.
func (s OrderStatus) IsValid() bool {
	return validStatuses[s]
}

// IsTerminal reports whether no further lifecycle transition is expected.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusCancelled || s == StatusDelivered
}

// OrPending returns pending for blank or unknown values read from the gateway.
func (s OrderStatus) OrPending() OrderStatus {
	if !s.IsValid() {
		return StatusPending
	}
	return s
}

type PaymentStatus string

const (
	PaymentStatusUnpaid            PaymentStatus = "unpaid"
	PaymentStatusPaid              PaymentStatus = "paid"
	PaymentStatusNoPaymentRequired PaymentStatus = "no_payment_required"
)

// LineItem is one purchased line as reported by the gateway.
type LineItem struct {
	Description string
	Quantity    int64
	UnitAmount  *int64 // minor units; nil when the gateway has no price
	ImageURL    string
}

// CheckoutSession is the internal view of a gateway checkout session.
// The gateway owns the record; this struct is rebuilt on every read.
type CheckoutSession struct {
	ID              string
	PaymentIntentID string
	PaymentStatus   PaymentStatus
	Status          OrderStatus
	AmountTotal     int64 // minor units
	Currency        string
	CustomerEmail   string
	LineItems       []LineItem
	Created         int64 // unix seconds
	URL             string
	Metadata        map[string]string
}

type OrderItem struct {
	Name     string  `json:"name"`
	Quantity int64   `json:"quantity"`
	Price    float64 `json:"price"`
	Image    string  `json:"image,omitempty"`
}

// OrderView is the read model shown to customers, admins and e-mails.
type OrderView struct {
	ID            string        `json:"id"`
	OrderNumber   string        `json:"orderNumber"`
	CustomerEmail *string       `json:"customerEmail,omitempty"`
	Amount        float64       `json:"amount"`
	Currency      string        `json:"currency"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	CreatedAt     string        `json:"createdAt"`
	Items         []OrderItem   `json:"items"`
}

// OrderQuery selects a page of orders.
type OrderQuery struct {
	Limit         int64
	StartingAfter string
	Page          int
	CustomerEmail string
	PaidOnly      bool
}

type OrderPage struct {
	Orders     []OrderView `json:"orders"`
	HasMore    bool        `json:"has_more"`
	NextCursor string      `json:"next_cursor,omitempty"`
}
