package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/payment"
	domain "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/receipt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type ReceiptStore struct {
	pool *pgxpool.Pool
}

func NewReceiptStore(pool *pgxpool.Pool) *ReceiptStore {
	return &ReceiptStore{pool: pool}
}

func (s *ReceiptStore) Get(ctx context.Context, key domain.Key) (*domain.Receipt, error) {
	var (
		r                         domain.Receipt
		signal, result, payStatus string
	)
	err := s.pool.QueryRow(ctx, `
SELECT transaction_id, signal, order_id, payment_id, result, order_status, payment_status, applied_at
FROM webhook_receipts WHERE transaction_id = $1 AND signal = $2`,
		key.TransactionID, string(key.Signal),
	).Scan(&r.Key.TransactionID, &signal, &r.OrderID, &r.PaymentID, &result, &r.OrderStatus, &payStatus, &r.AppliedAt)
	if isNoRows(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("receipt store: get %s: %w", key, err)
	}
	r.Key.Signal = payment.Signal(signal)
	r.Result = domain.Result(result)
	r.PaymentStatus = payment.Status(payStatus)
	r.AppliedAt = r.AppliedAt.UTC()
	return &r, nil
}

func (s *ReceiptStore) Put(ctx context.Context, r *domain.Receipt) error {
	if r == nil {
		return nil
	}
	tag, err := s.pool.Exec(ctx, `
INSERT INTO webhook_receipts (transaction_id, signal, order_id, payment_id, result, order_status,
                              payment_status, applied_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (transaction_id, signal) DO NOTHING`,
		r.Key.TransactionID, string(r.Key.Signal), r.OrderID, r.PaymentID, string(r.Result),
		r.OrderStatus, string(r.PaymentStatus), r.AppliedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("receipt store: put %s: %w", r.Key, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrExists
	}
	return nil
}

func (s *ReceiptStore) Evict(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM webhook_receipts WHERE applied_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("receipt store: evict: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
