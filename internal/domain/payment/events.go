package payment

import "github.com/shopspring/decimal"

type CreatedEvent struct {
	PaymentID     string          `json:"paymentId"`
	OrderID       string          `json:"orderId"`
	Method        Method          `json:"method"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transactionId"`
}

func (CreatedEvent) EventName() string { return "payment_created" }

func NewCreatedEvent(p *Payment) CreatedEvent {
	return CreatedEvent{
		PaymentID:     p.ID,
		OrderID:       p.OrderID,
		Method:        p.Method,
		Amount:        p.Amount,
		TransactionID: p.TransactionID,
	}
}

// WebhookReceivedEvent is published for every parsed provider notification.
type WebhookReceivedEvent struct {
	Provider      string `json:"provider"`
	TransactionID string `json:"transactionId"`
	Signal        Signal `json:"signal"`
	ProviderState string `json:"providerStatus"`
}

func (WebhookReceivedEvent) EventName() string { return "payment_webhook" }

type StatusChangedEvent struct {
	PaymentID     string `json:"paymentId"`
	OrderID       string `json:"orderId"`
	From          Status `json:"from"`
	Status        Status `json:"status"`
	TransactionID string `json:"transactionId"`
}

func (StatusChangedEvent) EventName() string { return "payment_status_changed" }

func NewStatusChangedEvent(p *Payment, from Status) StatusChangedEvent {
	return StatusChangedEvent{
		PaymentID:     p.ID,
		OrderID:       p.OrderID,
		From:          from,
		Status:        p.Status,
		TransactionID: p.TransactionID,
	}
}

// StaleSignalEvent warns that a payment signal arrived after the order reached a terminal status.
type StaleSignalEvent struct {
	OrderID       string `json:"orderId"`
	OrderStatus   string `json:"orderStatus"`
	PaymentID     string `json:"paymentId"`
	TransactionID string `json:"transactionId"`
	Signal        Signal `json:"signal"`
}

func (StaleSignalEvent) EventName() string { return "stale_signal" }

// ReviewRequiredEvent flags a refused signal for manual review.
type ReviewRequiredEvent struct {
	OrderID        string          `json:"orderId"`
	PaymentID      string          `json:"paymentId"`
	TransactionID  string          `json:"transactionId"`
	Signal         Signal          `json:"signal"`
	Reason         string          `json:"reason"`
	RecordedAmount decimal.Decimal `json:"recordedAmount"`
	SignalAmount   decimal.Decimal `json:"signalAmount"`
}

func (ReviewRequiredEvent) EventName() string { return "payment_review_required" }
