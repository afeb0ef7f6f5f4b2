package models

import "time"

const TypeOrderStatusChanged = "order_status_changed"

// OrderStatusEvent is published after every successful status write.
type OrderStatusEvent struct {
	Type           string      `json:"type"`
	SessionID      string      `json:"session_id"`
	OrderNumber    string      `json:"order_number,omitempty"` // payment intent id
	Status         OrderStatus `json:"status"`
	PreviousStatus OrderStatus `json:"previous_status,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}

// ShippingEvent is the subset of shipping-service events this service reads.
type ShippingEvent struct {
	EventType    string    `json:"event_type"` // "shipment_created", "shipment_updated"
	ShipmentID   string    `json:"shipment_id"`
	OrderID      string    `json:"order_id"` // checkout session id
	TrackingCode string    `json:"tracking_code"`
	Status       string    `json:"status,omitempty"` // carrier status, e.g. "DELIVERED"
	Timestamp    time.Time `json:"timestamp"`
}
