package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Repository is the Payment Store.
type Repository interface {
	// Insert fails with ErrActivePayment when the order already has a non-terminal payment.
	Insert(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*Payment, error)
	FindActiveByOrder(ctx context.Context, orderID string) (*Payment, error)
	CompareAndSetStatus(ctx context.Context, id string, ch StatusChange) error
}

// IntentRequest asks the provider to open a payment.
type IntentRequest struct {
	PaymentID string
	OrderID   string
	Amount    decimal.Decimal
	Method    Method
}

// Intent is the provider's answer. PixCode/PixExpiration are only set for pix.
type Intent struct {
	TransactionID string
	PixCode       string
	PixExpiration *time.Time
}

// Gateway is the Payment Gateway Adapter.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
}
