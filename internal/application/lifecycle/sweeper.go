package lifecycle

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/foodorder-pipeline/internal/application"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/receipt"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	useCaseSweep         = "lifecycle.sweep_receipts"
	DefaultSweepInterval = time.Hour
)

// ReceiptSweeper evicts receipts older than the retention TTL on a fixed interval.
type ReceiptSweeper struct {
	store    receipt.Store
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	in       application.Instruments
}

// NewReceiptSweeper clamps ttl to receipt.MinRetention.
func NewReceiptSweeper(store receipt.Store, tel observability.Observability, ttl, interval time.Duration) *ReceiptSweeper {
	if ttl < receipt.MinRetention {
		ttl = receipt.MinRetention
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &ReceiptSweeper{
		store:    store,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
		in:       application.NewInstruments(tel, engineService),
	}
}

func (s *ReceiptSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.in.Logger().Info("receipt_sweeper_started",
		observability.F("ttl", s.ttl.String()),
		observability.F("interval", s.interval.String()),
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// failures are logged by Sweep; the next tick tries again
			_, _ = s.Sweep(ctx)
		}
	}
}

// Sweep runs one eviction pass and returns the number of receipts removed.
func (s *ReceiptSweeper) Sweep(ctx context.Context) (n int, err error) {
	cutoff := s.now().UTC().Add(-s.ttl)
	ctx, run := s.in.Begin(ctx, useCaseSweep, "SweepReceipts",
		attribute.String("receipt.cutoff", cutoff.Format(time.RFC3339)),
	)
	defer func() {
		run.With(observability.F("evicted", n))
		run.End(err)
	}()

	n, err = s.store.Evict(ctx, cutoff)
	if err != nil {
		run.Fail("EVICT_FAILED")
		return 0, err
	}
	return n, nil
}
