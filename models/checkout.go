package models

// CartItem is one line of the storefront cart.
type CartItem struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       float64  `json:"price"` // major units
	Quantity    int64    `json:"quantity"`
	Images      []string `json:"images"`
}

type CheckoutRequest struct {
	CartItems     []CartItem `json:"cartItems"`
	CustomerEmail string     `json:"customerEmail"`
	CouponCode    string     `json:"couponCode,omitempty"`
	Discount      float64    `json:"discount,omitempty"` // fraction, e.g. 0.1 for 10%
}

type CheckoutResult struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url,omitempty"`
}

// SessionLineItem is a line item as submitted to the gateway.
type SessionLineItem struct {
	Name        string
	Description string
	Images      []string
	UnitAmount  int64 // minor units
	Quantity    int64
}

// NewSessionParams describes a checkout session to create at the gateway.
type NewSessionParams struct {
	LineItems     []SessionLineItem
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	CouponID      string
	Metadata      map[string]string
}

// SessionFilter selects one page of checkout sessions at the gateway.
type SessionFilter struct {
	Limit           int64
	StartingAfter   string
	PaymentIntentID string
	CustomerEmail   string
	ExpandLineItems bool
}

type SessionPage struct {
	Sessions   []CheckoutSession
	HasMore    bool
	NextCursor string
}
