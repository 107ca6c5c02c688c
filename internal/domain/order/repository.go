package order

import (
	"context"
	"time"
)

// Repository is the Order Store. Status changes go through CompareAndSetStatus so that
// a writer holding a stale read fails with ErrConflict instead of overwriting.
type Repository interface {
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	CompareAndSetStatus(ctx context.Context, id string, expected, next Status, at time.Time) error
	LinkPayment(ctx context.Context, id, paymentID string) error
}
