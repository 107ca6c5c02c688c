package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/payment"
)

type PaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]*domain.Payment
	byTxn    map[string]string
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{
		payments: make(map[string]*domain.Payment),
		byTxn:    make(map[string]string),
	}
}

func (r *PaymentRepository) Insert(ctx context.Context, p *domain.Payment) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return fmt.Errorf("payment repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.payments[p.ID]; exists {
		return domain.ErrConflict
	}
	if p.TransactionID != "" {
		if _, exists := r.byTxn[p.TransactionID]; exists {
			return domain.ErrDuplicateTransaction
		}
	}
	if r.activeLocked(p.OrderID) != nil {
		return domain.ErrActivePayment
	}

	r.payments[p.ID] = p.Clone()
	if p.TransactionID != "" {
		r.byTxn[p.TransactionID] = p.ID
	}
	return nil
}

func (r *PaymentRepository) Get(ctx context.Context, id string) (*domain.Payment, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *PaymentRepository) FindByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byTxn[transactionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.payments[id].Clone(), nil
}

func (r *PaymentRepository) FindActiveByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	if p := r.activeLocked(orderID); p != nil {
		return p.Clone(), nil
	}
	return nil, domain.ErrNotFound
}

func (r *PaymentRepository) CompareAndSetStatus(ctx context.Context, id string, ch domain.StatusChange) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[id]
	if !ok {
		return domain.ErrNotFound
	}

	updated := p.Clone()
	if err := updated.Apply(ch); err != nil {
		return err
	}
	r.payments[id] = updated
	return nil
}

func (r *PaymentRepository) activeLocked(orderID string) *domain.Payment {
	for _, p := range r.payments {
		if p.OrderID == orderID && !p.Status.IsTerminal() {
			return p
		}
	}
	return nil
}
