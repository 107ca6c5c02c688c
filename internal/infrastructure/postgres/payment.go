package postgres

import (
	"context"
	"fmt"

	domain "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/payment"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	constraintActivePayment = "payments_one_active_per_order"
	constraintTransactionID = "payments_transaction_id_key"
)

type PaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

const paymentColumns = `
SELECT id, order_id, user_id, amount::text, method, status, COALESCE(transaction_id, ''),
       pix_code, pix_expiration, paid_at, refunded_at, rejection_reason, created_at, updated_at
FROM payments`

func (r *PaymentRepository) Insert(ctx context.Context, p *domain.Payment) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("payment repository: id is required")
	}

	_, err := r.pool.Exec(ctx, `
INSERT INTO payments (id, order_id, user_id, amount, method, status, transaction_id, pix_code,
                      pix_expiration, paid_at, refunded_at, rejection_reason, created_at, updated_at)
VALUES ($1, $2, $3, $4::numeric, $5, $6, NULLIF($7, ''), $8, $9, $10, $11, $12, $13, $14)`,
		p.ID, p.OrderID, p.UserID, p.Amount.String(), string(p.Method), string(p.Status), p.TransactionID,
		p.PixCode, p.PixExpiration, p.PaidAt, p.RefundedAt, p.RejectionReason, p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	if constraint, dup := uniqueViolation(err); dup {
		switch constraint {
		case constraintActivePayment:
			return domain.ErrActivePayment
		case constraintTransactionID:
			return domain.ErrDuplicateTransaction
		default:
			return domain.ErrConflict
		}
	}
	if err != nil {
		return fmt.Errorf("payment repository: insert %s: %w", p.ID, err)
	}
	return nil
}

func (r *PaymentRepository) Get(ctx context.Context, id string) (*domain.Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, paymentColumns+` WHERE id = $1`, id))
}

func (r *PaymentRepository) FindByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, paymentColumns+` WHERE transaction_id = $1`, transactionID))
}

func (r *PaymentRepository) FindActiveByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx,
		paymentColumns+` WHERE order_id = $1 AND status IN ('pending', 'processing')`, orderID))
}

// CompareAndSetStatus locks the row, validates the change against the domain rules and writes
// the result in one transaction.
func (r *PaymentRepository) CompareAndSetStatus(ctx context.Context, id string, ch domain.StatusChange) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		p, err := scanPayment(tx.QueryRow(ctx, paymentColumns+` WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if err := p.Apply(ch); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
UPDATE payments
SET status = $2, paid_at = $3, refunded_at = $4, rejection_reason = $5, updated_at = $6
WHERE id = $1`,
			p.ID, string(p.Status), p.PaidAt, p.RefundedAt, p.RejectionReason, p.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("payment repository: update %s: %w", id, err)
		}
		return nil
	})
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var (
		p                      domain.Payment
		amount, method, status string
	)
	err := row.Scan(&p.ID, &p.OrderID, &p.UserID, &amount, &method, &status, &p.TransactionID,
		&p.PixCode, &p.PixExpiration, &p.PaidAt, &p.RefundedAt, &p.RejectionReason, &p.CreatedAt, &p.UpdatedAt)
	if isNoRows(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("payment repository: scan: %w", err)
	}

	if p.Amount, err = parseMoney(amount); err != nil {
		return nil, err
	}
	p.Method = domain.Method(method)
	p.Status = domain.Status(status)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}
