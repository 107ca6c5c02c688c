package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domain "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/order"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

const selectOrder = `
SELECT id, items, subtotal::text, delivery_fee::text, total::text, status, is_paid,
       payment_method, COALESCE(payment_id, ''), customer, created_at, updated_at
FROM orders WHERE id = $1`

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("order repository: encode items: %w", err)
	}
	customer, err := json.Marshal(o.Customer)
	if err != nil {
		return fmt.Errorf("order repository: encode customer: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
INSERT INTO orders (id, items, subtotal, delivery_fee, total, status, is_paid, payment_method,
                    payment_id, customer, created_at, updated_at)
VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6, $7, $8, NULLIF($9, ''), $10, $11, $12)`,
		o.ID, items, o.Subtotal.String(), o.DeliveryFee.String(), o.Total.String(), string(o.Status),
		o.IsPaid, o.PaymentMethod, o.PaymentID, customer, o.CreatedAt.UTC(), o.UpdatedAt.UTC(),
	)
	if _, dup := uniqueViolation(err); dup {
		return domain.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("order repository: insert %s: %w", o.ID, err)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, selectOrder, id))
}

func (r *OrderRepository) CompareAndSetStatus(ctx context.Context, id string, expected, next domain.Status, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE orders SET status = $3, is_paid = $4, updated_at = $5
WHERE id = $1 AND status = $2`,
		id, string(expected), string(next), next.IsPaidState(), at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("order repository: update %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: expected %s, found %s", domain.ErrConflict, expected, current.Status)
}

func (r *OrderRepository) LinkPayment(ctx context.Context, id, paymentID string) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE orders SET payment_id = $2
WHERE id = $1 AND (payment_id IS NULL OR payment_id = $2)`,
		id, paymentID,
	)
	if err != nil {
		return fmt.Errorf("order repository: link %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return current.LinkPayment(paymentID)
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o                           domain.Order
		items, customer             []byte
		subtotal, fee, total, state string
	)
	err := row.Scan(&o.ID, &items, &subtotal, &fee, &total, &state, &o.IsPaid,
		&o.PaymentMethod, &o.PaymentID, &customer, &o.CreatedAt, &o.UpdatedAt)
	if isNoRows(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("order repository: scan: %w", err)
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("order repository: decode items of %s: %w", o.ID, err)
	}
	if err := json.Unmarshal(customer, &o.Customer); err != nil {
		return nil, fmt.Errorf("order repository: decode customer of %s: %w", o.ID, err)
	}
	if o.Subtotal, err = parseMoney(subtotal); err != nil {
		return nil, err
	}
	if o.DeliveryFee, err = parseMoney(fee); err != nil {
		return nil, err
	}
	if o.Total, err = parseMoney(total); err != nil {
		return nil, err
	}
	o.Status = domain.ParseStatus(state)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}
