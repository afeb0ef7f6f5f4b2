package services

import (
	"time"

	"github.com/dodomiyake/zenhaven/models"
)

// ProjectOrder builds the order read model from a gateway session. It does no
// I/O. A nil lineItems falls back to the items embedded in the session.
func ProjectOrder(session *models.CheckoutSession, lineItems []models.LineItem) models.OrderView {
	view := models.OrderView{
		ID:            session.ID,
		OrderNumber:   session.PaymentIntentID,
		Amount:        toMajor(session.AmountTotal),
		Currency:      session.Currency,
		Status:        session.Status.OrPending(),
		PaymentStatus: session.PaymentStatus,
		CreatedAt:     time.Unix(session.Created, 0).UTC().Format(time.RFC3339),
		Items:         []models.OrderItem{},
	}
	if session.CustomerEmail != "" {
		email := session.CustomerEmail
		view.CustomerEmail = &email
	}

	if lineItems == nil {
		lineItems = session.LineItems
	}
	for _, li := range lineItems {
		var price float64
		if li.UnitAmount != nil {
			price = toMajor(*li.UnitAmount)
		}
		view.Items = append(view.Items, models.OrderItem{
			Name:     li.Description,
			Quantity: li.Quantity,
			Price:    price,
			Image:    li.ImageURL,
		})
	}
	return view
}
