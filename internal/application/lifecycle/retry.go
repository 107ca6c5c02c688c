package lifecycle

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability/logctx"
)

const (
	retryComponent       = "signal-retry"
	DefaultRetryAttempts = 5
	DefaultRetryBackoff  = 500 * time.Millisecond
	defaultRetryQueue    = 1024
	maxRetryBackoff      = 30 * time.Second
)

// SignalApplier is the part of Engine the retry queue drives.
type SignalApplier interface {
	ApplyPaymentSignal(ctx context.Context, sig PaymentSignal) (Outcome, error)
}

// ContextDecorator binds a per-attempt logger to ctx for background work.
type ContextDecorator func(ctx context.Context, attrs map[string]string) context.Context

type RetryOptions struct {
	Attempts  int
	Backoff   time.Duration
	QueueSize int
	Decorate  ContextDecorator
}

// RetryQueue re-applies signals that failed transiently (lock timeout, exhausted conflicts).
// Signals run in due order, so a long backoff never holds back one that is already due.
// A signal is dropped with an alertable counter once Attempts is reached or the queue is full.
type RetryQueue struct {
	applier SignalApplier

	mu    sync.Mutex
	items dueHeap
	size  int
	wake  chan struct{}

	attempts int
	backoff  time.Duration
	decorate ContextDecorator

	log     observability.Logger
	dropped observability.Counter // signal_dropped_total{reason}
}

type retryItem struct {
	sig     PaymentSignal
	attempt int
	due     time.Time
}

func NewRetryQueue(applier SignalApplier, tel observability.Observability, opts RetryOptions) *RetryQueue {
	if tel == nil {
		tel = observability.Nop()
	}
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultRetryAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultRetryBackoff
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultRetryQueue
	}
	return &RetryQueue{
		applier:  applier,
		size:     opts.QueueSize,
		wake:     make(chan struct{}, 1),
		attempts: opts.Attempts,
		backoff:  opts.Backoff,
		decorate: opts.Decorate,
		log:      tel.Logger().With(observability.F("component", retryComponent)),
		dropped:  tel.Metrics().Counter(observability.MSignalDropped),
	}
}

// Enqueue schedules sig for another attempt. It never blocks.
func (q *RetryQueue) Enqueue(sig PaymentSignal) bool {
	return q.push(retryItem{sig: sig, attempt: 1, due: time.Now().Add(q.delay(1))})
}

func (q *RetryQueue) push(it retryItem) bool {
	q.mu.Lock()
	if len(q.items) >= q.size {
		q.mu.Unlock()
		q.drop(q.log, it, "queue_full")
		return false
	}
	heap.Push(&q.items, it)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Len is the number of signals waiting.
func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// next pops the earliest item when it is due. Otherwise it reports how long until it is.
func (q *RetryQueue) next(now time.Time) (retryItem, time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return retryItem{}, -1, false
	}
	if wait := q.items[0].due.Sub(now); wait > 0 {
		return retryItem{}, wait, false
	}
	return heap.Pop(&q.items).(retryItem), 0, true
}

// Run processes queued signals until ctx is done.
func (q *RetryQueue) Run(ctx context.Context) error {
	q.log.Info("signal_retry_started", observability.F("attempts", q.attempts))
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for ctx.Err() == nil {
		it, wait, ok := q.next(time.Now())
		if ok {
			q.process(ctx, it)
			continue
		}

		var fire <-chan time.Time
		if wait >= 0 {
			timer.Reset(wait)
			fire = timer.C
		}
		select {
		case <-ctx.Done():
			q.log.Info("signal_retry_stopped", observability.F("pending", q.Len()))
			return nil
		case <-q.wake:
		case <-fire:
		}
		timer.Stop()
	}
	return nil
}

func (q *RetryQueue) process(ctx context.Context, it retryItem) {
	if q.decorate != nil {
		ctx = q.decorate(ctx, map[string]string{
			"use_case":       useCaseSignal,
			"transaction_id": it.sig.TransactionID,
			"signal":         string(it.sig.Kind),
		})
	}
	logger := logctx.FromOr(ctx, q.log).With(
		observability.F("transaction_id", it.sig.TransactionID),
		observability.F("signal", string(it.sig.Kind)),
		observability.F("attempt", it.attempt),
	)

	out, err := q.applier.ApplyPaymentSignal(ctx, it.sig)
	switch {
	case err == nil:
		logger.Info("signal_retry_applied",
			observability.F("order_id", out.OrderID),
			observability.F("result", string(out.Result)),
		)
	case IsTransient(err) && it.attempt < q.attempts:
		it.attempt++
		it.due = time.Now().Add(q.delay(it.attempt))
		logger.Warn("signal_retry_rescheduled", observability.Err(err))
		q.push(it)
	case IsTransient(err):
		logger.Error("signal_retry_failed", observability.Err(err))
		q.drop(logger, it, "retries_exhausted")
	default:
		logger.Warn("signal_retry_rejected", observability.Err(err))
	}
}

func (q *RetryQueue) drop(logger observability.Logger, it retryItem, reason string) {
	q.dropped.Add(1, observability.L("reason", reason))
	logger.Error("signal_dropped",
		observability.F("reason", reason),
		observability.F("transaction_id", it.sig.TransactionID),
		observability.F("signal", string(it.sig.Kind)),
		observability.F("order_id", it.sig.OrderID),
		observability.F("attempt", it.attempt),
	)
}

// delay doubles per attempt and is capped.
func (q *RetryQueue) delay(attempt int) time.Duration {
	d := q.backoff
	for i := 1; i < attempt && d < maxRetryBackoff; i++ {
		d *= 2
	}
	return min(d, maxRetryBackoff)
}

// dueHeap orders retry items by due time.
type dueHeap []retryItem

func (h dueHeap) Len() int           { return len(h) }
func (h dueHeap) Less(i, j int) bool { return h[i].due.Before(h[j].due) }
func (h dueHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *dueHeap) Push(x any)        { *h = append(*h, x.(retryItem)) }

func (h *dueHeap) Pop() any {
	old := *h
	it := old[len(old)-1]
	*h = old[:len(old)-1]
	return it
}
