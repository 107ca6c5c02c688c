package webhook

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Zhima-Mochi/foodorder-pipeline/internal/application/lifecycle"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/exchange"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/order"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/payment"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/infrastructure/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	names []string
}

func (r *recorder) Publish(_ context.Context, e exchange.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, e.EventName())
	return nil
}

type fakeApplier struct {
	err   error
	calls int
}

func (f *fakeApplier) ApplyPaymentSignal(context.Context, lifecycle.PaymentSignal) (lifecycle.Outcome, error) {
	f.calls++
	return lifecycle.Outcome{}, f.err
}

type fakeRetrier struct {
	queued []lifecycle.PaymentSignal
	full   bool
}

func (f *fakeRetrier) Enqueue(sig lifecycle.PaymentSignal) bool {
	if f.full {
		return false
	}
	f.queued = append(f.queued, sig)
	return true
}

func seededEngine(t *testing.T, pub exchange.Publisher) (*lifecycle.Engine, *memory.OrderRepository) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	orders := memory.NewOrderRepository()
	payments := memory.NewPaymentRepository()

	o, err := order.New("O1", []order.Item{{ProductID: "acai", UnitPrice: decimal.RequireFromString("24.90"), Quantity: 1}},
		decimal.RequireFromString("5.00"), "pix", order.Customer{Name: "Ana"}, now)
	require.NoError(t, err)
	require.NoError(t, orders.Insert(ctx, o))

	p, err := payment.New("P1", "O1", "U1", o.Total, payment.MethodPix, now)
	require.NoError(t, err)
	p.TransactionID = "T1"
	require.NoError(t, payments.Insert(ctx, p))

	return lifecycle.NewEngine(orders, payments, memory.NewReceiptStore(), pub, nil, lifecycle.Options{}), orders
}

func TestIngestAppliesAndDedups(t *testing.T) {
	pub := &recorder{}
	engine, orders := seededEngine(t, pub)
	uc := NewIngestUseCase(engine, nil, pub, nil)

	res, err := uc.Execute(context.Background(), IngestInput{Body: body("approved", "29.90")})
	require.NoError(t, err)
	assert.Equal(t, DispositionApplied, res.Disposition)
	assert.Equal(t, "T1", res.TransactionID)

	o, err := orders.Get(context.Background(), "O1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, o.Status)

	for range 3 {
		res, err = uc.Execute(context.Background(), IngestInput{Body: body("approved", "29.90")})
		require.NoError(t, err)
		assert.Equal(t, DispositionDuplicate, res.Disposition)
	}

	// redeliveries publish nothing, not even the webhook notice
	assert.Equal(t, []string{
		"order_status_changed", "payment_status_changed", "payment_webhook",
	}, pub.names)
}

func TestIngestAcknowledgesRefusals(t *testing.T) {
	pub := &recorder{}
	engine, _ := seededEngine(t, pub)
	uc := NewIngestUseCase(engine, nil, pub, nil)

	res, err := uc.Execute(context.Background(), IngestInput{Body: body("approved", "19.90")})
	require.NoError(t, err)
	assert.Equal(t, DispositionRejected, res.Disposition)
	assert.Equal(t, lifecycle.ReasonAmountMismatch, res.Reason)

	res, err = uc.Execute(context.Background(), IngestInput{Body: body("refunded", "29.90")})
	require.NoError(t, err)
	assert.Equal(t, DispositionUnsupported, res.Disposition)
	assert.Equal(t, "refunded", res.Reason)

	res, err = uc.Execute(context.Background(), IngestInput{Body: []byte("<xml/>")})
	require.NoError(t, err)
	assert.Equal(t, DispositionMalformed, res.Disposition)
	assert.Equal(t, ReasonInvalidJSON, res.Reason)
}

func TestIngestQueuesTransientFailures(t *testing.T) {
	retries := &fakeRetrier{}
	applier := &fakeApplier{err: lifecycle.ErrLockTimeout}
	uc := NewIngestUseCase(applier, retries, nil, nil)

	res, err := uc.Execute(context.Background(), IngestInput{Body: body("approved", "29.90")})
	require.NoError(t, err)
	assert.Equal(t, DispositionQueued, res.Disposition)
	require.Len(t, retries.queued, 1)
	assert.Equal(t, "T1", retries.queued[0].TransactionID)
	assert.Equal(t, payment.SignalApproved, retries.queued[0].Kind)

	retries.full = true
	res, err = uc.Execute(context.Background(), IngestInput{Body: body("approved", "29.90")})
	require.NoError(t, err)
	assert.Equal(t, DispositionDropped, res.Disposition)
}
