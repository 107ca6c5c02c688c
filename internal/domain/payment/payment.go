package payment

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound             = errors.New("payment: not found")
	ErrConflict             = errors.New("payment: concurrent modification")
	ErrInvalidTransition    = errors.New("payment: invalid status transition")
	ErrActivePayment        = errors.New("payment: order already has an active payment")
	ErrDuplicateTransaction = errors.New("payment: transaction id already recorded")
	ErrAmountMismatch       = errors.New("payment: amount does not match recorded amount")
	ErrInvalidAmount        = errors.New("payment: amount must be greater than zero")
	ErrUnknownMethod        = errors.New("payment: unknown method")
)

type Method string

const (
	MethodPix        Method = "pix"
	MethodCreditCard Method = "credit_card"
	MethodDebitCard  Method = "debit_card"
	MethodCash       Method = "cash"
)

func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case MethodPix, MethodCreditCard, MethodDebitCard, MethodCash:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusRefunded   Status = "refunded"
)

func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusRefunded
}

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusApproved, StatusRejected},
	StatusProcessing: {StatusApproved, StatusRejected},
	StatusApproved:   {StatusRefunded},
}

// CanTransition reports whether a payment may move from one status to another.
// A pending payment may settle directly; providers do not always report processing first.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Payment struct {
	ID              string
	OrderID         string
	UserID          string
	Amount          decimal.Decimal
	Method          Method
	Status          Status
	TransactionID   string
	PixCode         string
	PixExpiration   *time.Time
	PaidAt          *time.Time
	RefundedAt      *time.Time
	RejectionReason string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func New(id, orderID, userID string, amount decimal.Decimal, method Method, now time.Time) (*Payment, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	now = now.UTC()
	return &Payment{
		ID:        id,
		OrderID:   orderID,
		UserID:    userID,
		Amount:    amount,
		Method:    method,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// StatusChange describes one compare-and-set on a payment.
type StatusChange struct {
	From   Status
	To     Status
	At     time.Time
	Reason string
}

// Apply validates ch against the current status and stamps the settlement timestamps.
func (p *Payment) Apply(ch StatusChange) error {
	if p.Status != ch.From {
		return fmt.Errorf("%w: expected %s, found %s", ErrConflict, ch.From, p.Status)
	}
	if !CanTransition(ch.From, ch.To) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, ch.From, ch.To)
	}
	at := ch.At.UTC()
	p.Status = ch.To
	p.UpdatedAt = at
	switch ch.To {
	case StatusApproved:
		p.PaidAt = &at
	case StatusRefunded:
		p.RefundedAt = &at
	case StatusRejected:
		p.RejectionReason = ch.Reason
	}
	return nil
}

func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
