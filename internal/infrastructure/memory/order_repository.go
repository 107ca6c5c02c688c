// Package memory keeps orders, payments and receipts in process. Values are cloned on the way in
// and out so callers never share state with the store.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/order"
)

type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: map[string]*domain.Order{}}
}

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	_ = ctx
	if o == nil || o.ID == "" {
		return errors.New("order repository: id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.orders[o.ID]; dup {
		return domain.ErrConflict
	}
	r.orders[o.ID] = o.Clone()
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o.Clone(), nil
}

func (r *OrderRepository) CompareAndSetStatus(ctx context.Context, id string, expected, next domain.Status, at time.Time) error {
	_ = ctx
	return r.update(id, func(o *domain.Order) error {
		if o.Status != expected {
			return fmt.Errorf("%w: expected %s, found %s", domain.ErrConflict, expected, o.Status)
		}
		o.Status = next
		o.IsPaid = next.IsPaidState()
		o.UpdatedAt = at.UTC()
		return nil
	})
}

func (r *OrderRepository) LinkPayment(ctx context.Context, id, paymentID string) error {
	_ = ctx
	return r.update(id, func(o *domain.Order) error { return o.LinkPayment(paymentID) })
}

// update applies fn to a copy and stores it only when fn succeeds.
func (r *OrderRepository) update(id string, fn func(*domain.Order) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return err
	}
	r.orders[id] = next
	return nil
}
