package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("order: not found")
	ErrConflict          = errors.New("order: concurrent modification")
	ErrInvalidTransition = errors.New("order: invalid status transition")
	ErrAlreadyLinked     = errors.New("order: already linked to another payment")
	ErrInvalidItems      = errors.New("order: at least one valid item is required")
	ErrInvalidAmount     = errors.New("order: amounts must be zero or greater")
	ErrInvariant         = errors.New("order: invariant violated")
)

// Item is one order line. LineTotal is always UnitPrice * Quantity.
type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// Customer holds the contact fields captured at checkout.
type Customer struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address"`
}

type Order struct {
	ID            string
	Items         []Item
	Subtotal      decimal.Decimal
	DeliveryFee   decimal.Decimal
	Total         decimal.Decimal
	Status        Status
	IsPaid        bool
	PaymentMethod string

	// PaymentID is empty until a provider transaction is linked; it is set at most once.
	PaymentID string
	Customer  Customer
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New prices the items and returns a pending order.
func New(id string, items []Item, deliveryFee decimal.Decimal, paymentMethod string, customer Customer, now time.Time) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrInvalidItems
	}
	if deliveryFee.IsNegative() {
		return nil, ErrInvalidAmount
	}

	priced := make([]Item, 0, len(items))
	subtotal := decimal.Zero
	for _, it := range items {
		if it.ProductID == "" || it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %q quantity %d", ErrInvalidItems, it.ProductID, it.Quantity)
		}
		if it.UnitPrice.IsNegative() {
			return nil, ErrInvalidAmount
		}
		it.LineTotal = it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
		subtotal = subtotal.Add(it.LineTotal)
		priced = append(priced, it)
	}

	now = now.UTC()
	return &Order{
		ID:            id,
		Items:         priced,
		Subtotal:      subtotal,
		DeliveryFee:   deliveryFee,
		Total:         subtotal.Add(deliveryFee),
		Status:        StatusPending,
		PaymentMethod: paymentMethod,
		Customer:      customer,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// TransitionTo moves the order to next when the table allows it for the trigger.
func (o *Order) TransitionTo(next Status, by Trigger, at time.Time) error {
	if !CanTransition(o.Status, next, by) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	o.IsPaid = next.IsPaidState()
	o.UpdatedAt = at.UTC()
	return nil
}

// LinkPayment records the provider payment. Linking the same id again is a no-op.
func (o *Order) LinkPayment(paymentID string) error {
	switch o.PaymentID {
	case "":
		o.PaymentID = paymentID
		return nil
	case paymentID:
		return nil
	default:
		return fmt.Errorf("%w: has %s, got %s", ErrAlreadyLinked, o.PaymentID, paymentID)
	}
}

// Validate checks the pricing and paid-flag invariants.
func (o *Order) Validate() error {
	if !o.Total.Equal(o.Subtotal.Add(o.DeliveryFee)) {
		return fmt.Errorf("%w: total %s != subtotal %s + delivery %s", ErrInvariant, o.Total, o.Subtotal, o.DeliveryFee)
	}
	if o.IsPaid != o.Status.IsPaidState() {
		return fmt.Errorf("%w: is_paid=%t with status %s", ErrInvariant, o.IsPaid, o.Status)
	}
	return nil
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	return &c
}
