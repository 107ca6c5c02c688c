package memory

import (
	"context"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/receipt"
)

type ReceiptStore struct {
	mu       sync.RWMutex
	receipts map[domain.Key]domain.Receipt
}

func NewReceiptStore() *ReceiptStore {
	return &ReceiptStore{receipts: make(map[domain.Key]domain.Receipt)}
}

func (s *ReceiptStore) Get(ctx context.Context, key domain.Key) (*domain.Receipt, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.receipts[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &r, nil
}

func (s *ReceiptStore) Put(ctx context.Context, r *domain.Receipt) error {
	_ = ctx
	if r == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.receipts[r.Key]; exists {
		return domain.ErrExists
	}
	s.receipts[r.Key] = *r
	return nil
}

func (s *ReceiptStore) Evict(ctx context.Context, cutoff time.Time) (int, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, r := range s.receipts {
		if r.AppliedAt.Before(cutoff) {
			delete(s.receipts, k)
			n++
		}
	}
	return n, nil
}
