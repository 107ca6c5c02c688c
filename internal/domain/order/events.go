package order

import "github.com/shopspring/decimal"

// CreatedEvent is published when checkout stores a new pending order.
type CreatedEvent struct {
	OrderID       string          `json:"orderId"`
	Status        Status          `json:"status"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"paymentMethod"`
}

func (CreatedEvent) EventName() string { return "order_created" }

func NewCreatedEvent(o *Order) CreatedEvent {
	return CreatedEvent{
		OrderID:       o.ID,
		Status:        o.Status,
		Total:         o.Total,
		PaymentMethod: o.PaymentMethod,
	}
}

// StatusChangedEvent is published once per committed order transition.
type StatusChangedEvent struct {
	OrderID   string `json:"orderId"`
	From      Status `json:"from"`
	Status    Status `json:"status"`
	IsPaid    bool   `json:"isPaid"`
	PaymentID string `json:"paymentId,omitempty"`
	Actor     string `json:"actor"`
}

func (StatusChangedEvent) EventName() string { return "order_status_changed" }

func NewStatusChangedEvent(o *Order, from Status, actor string) StatusChangedEvent {
	return StatusChangedEvent{
		OrderID:   o.ID,
		From:      from,
		Status:    o.Status,
		IsPaid:    o.IsPaid,
		PaymentID: o.PaymentID,
		Actor:     actor,
	}
}
