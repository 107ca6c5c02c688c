// Package lifecycle is the single writer of order and payment status. Every transition for an
// order runs under that order's lock: load, validate, compare-and-set, record the receipt, then
// publish. Publishing happens only after the stores accepted the change.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/foodorder-pipeline/internal/application"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/exchange"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/order"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/payment"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/receipt"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const (
	engineService   = "lifecycle-engine"
	useCaseSignal   = "lifecycle.apply_payment_signal"
	useCaseOperator = "lifecycle.apply_operator_transition"

	DefaultLockTimeout     = 2 * time.Second
	DefaultConflictRetries = 3
)

// PaymentSignal is a normalized provider notification about one payment transaction.
type PaymentSignal struct {
	// OrderID is optional. When set it must match the order the payment belongs to.
	OrderID       string
	TransactionID string
	Kind          payment.Signal
	Amount        decimal.Decimal
	Reason        string
	Raw           json.RawMessage
}

// OperatorTransition is an admin request to move an order to Target.
type OperatorTransition struct {
	OrderID string
	Target  order.Status
	Actor   string
}

// Outcome describes the state after a call. Duplicate is set when a stored receipt answered it.
type Outcome struct {
	Result        receipt.Result
	Duplicate     bool
	OrderID       string
	PaymentID     string
	OrderStatus   order.Status
	PaymentStatus payment.Status
}

type Options struct {
	LockTimeout     time.Duration
	ConflictRetries int
	Now             func() time.Time
}

type Engine struct {
	orders    order.Repository
	payments  payment.Repository
	receipts  receipt.Store
	publisher *application.EventPublisher
	locker    *Locker
	in        application.Instruments

	mismatch observability.Counter // payment_amount_mismatch_total

	lockTimeout     time.Duration
	conflictRetries int
	now             func() time.Time
}

func NewEngine(
	orders order.Repository,
	payments payment.Repository,
	receipts receipt.Store,
	publisher exchange.Publisher,
	tel observability.Observability,
	opts Options,
) *Engine {
	if tel == nil {
		tel = observability.Nop()
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if opts.ConflictRetries <= 0 {
		opts.ConflictRetries = DefaultConflictRetries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		orders:          orders,
		payments:        payments,
		receipts:        receipts,
		publisher:       application.NewEventPublisher(publisher, tel),
		locker:          NewLocker(),
		in:              application.NewInstruments(tel, engineService),
		mismatch:        tel.Metrics().Counter(observability.MAmountMismatch),
		lockTimeout:     opts.LockTimeout,
		conflictRetries: opts.ConflictRetries,
		now:             opts.Now,
	}
}

// ApplyPaymentSignal applies one provider notification at most once per (transaction, kind).
//
// A redelivered signal returns the stored outcome with Duplicate set. A signal for an order that
// is already delivered or cancelled still settles the payment but leaves the order alone and
// publishes stale_signal. An amount that differs from the recorded one is refused and flagged.
func (e *Engine) ApplyPaymentSignal(ctx context.Context, sig PaymentSignal) (out Outcome, err error) {
	ctx, run := e.in.Begin(ctx, useCaseSignal, "ApplyPaymentSignal",
		attribute.String("payment.transaction_id", sig.TransactionID),
		attribute.String("payment.signal", string(sig.Kind)),
	)
	run.With(
		observability.F("transaction_id", sig.TransactionID),
		observability.F("signal", string(sig.Kind)),
	)
	defer func() {
		classify(run, err)
		run.With(
			observability.F("order_id", out.OrderID),
			observability.F("result", string(out.Result)),
			observability.F("duplicate", out.Duplicate),
		)
		run.End(err)
	}()

	target, ok := sig.Kind.Target()
	if !ok || sig.TransactionID == "" {
		run.Reject("UNSUPPORTED_SIGNAL")
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnsupportedSignal, sig.Kind)
	}
	key := receipt.Key{TransactionID: sig.TransactionID, Signal: sig.Kind}

	if prev, found, rerr := e.replay(ctx, key); rerr != nil {
		return Outcome{}, rerr
	} else if found {
		run.Note("DUPLICATE")
		return prev, nil
	}

	// unserialized read, only used to find the lock key
	p, err := e.payments.FindByTransactionID(ctx, sig.TransactionID)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			return Outcome{}, reject(ReasonNotFound, fmt.Errorf("%w: transaction %s: %w", ErrNotFound, sig.TransactionID, err))
		}
		return Outcome{}, fmt.Errorf("lifecycle: load payment: %w", err)
	}
	if sig.OrderID != "" && sig.OrderID != p.OrderID {
		return Outcome{OrderID: sig.OrderID}, reject(ReasonOrderMismatch,
			fmt.Errorf("%w: transaction %s is for order %s, not %s", ErrPaymentOrderMismatch, sig.TransactionID, p.OrderID, sig.OrderID))
	}

	release, err := e.locker.Acquire(ctx, p.OrderID, e.lockTimeout)
	if err != nil {
		run.Fail("LOCK_TIMEOUT")
		return Outcome{OrderID: p.OrderID}, fmt.Errorf("order %s: %w", p.OrderID, err)
	}
	defer release()

	if prev, found, rerr := e.replay(ctx, key); rerr != nil {
		return Outcome{}, rerr
	} else if found {
		run.Note("DUPLICATE")
		return prev, nil
	}

	var events []exchange.Event
	for attempt := 0; ; attempt++ {
		out, events, err = e.applySignal(ctx, sig, target)
		if err == nil || !isStoreConflict(err) {
			break
		}
		if attempt >= e.conflictRetries {
			run.Fail("CONFLICT_RETRIES_EXHAUSTED")
			return out, fmt.Errorf("%w: %w", ErrConflict, err)
		}
		run.Logger().Debug("signal_conflict_retry", observability.F("attempt", attempt+1))
	}
	if err != nil {
		return out, err
	}

	rec := &receipt.Receipt{
		Key:           key,
		OrderID:       out.OrderID,
		PaymentID:     out.PaymentID,
		Result:        out.Result,
		OrderStatus:   string(out.OrderStatus),
		PaymentStatus: out.PaymentStatus,
		AppliedAt:     e.now().UTC(),
	}
	if perr := e.receipts.Put(ctx, rec); perr != nil {
		run.Logger().Warn("receipt_put_failed",
			observability.F("receipt", key.String()),
			observability.Err(perr),
		)
	}

	if out.Result == receipt.ResultStale {
		run.Note("STALE_SIGNAL")
		run.Logger().Warn("stale_signal",
			observability.F("order_id", out.OrderID),
			observability.F("order_status", string(out.OrderStatus)),
		)
	}
	if perr := e.publisher.Publish(ctx, events...); perr != nil {
		run.With(observability.F("event_publish_error", perr.Error()))
	}
	return out, nil
}

// applySignal runs one validate-then-write attempt. Store conflicts are returned unwrapped so the
// caller can retry on a fresh read.
func (e *Engine) applySignal(ctx context.Context, sig PaymentSignal, target payment.Status) (Outcome, []exchange.Event, error) {
	p, err := e.payments.FindByTransactionID(ctx, sig.TransactionID)
	if err != nil {
		return Outcome{}, nil, fmt.Errorf("lifecycle: load payment: %w", err)
	}
	o, err := e.orders.Get(ctx, p.OrderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return Outcome{OrderID: p.OrderID}, nil, reject(ReasonNotFound, fmt.Errorf("%w: order %s: %w", ErrNotFound, p.OrderID, err))
		}
		return Outcome{OrderID: p.OrderID}, nil, fmt.Errorf("lifecycle: load order: %w", err)
	}

	out := Outcome{
		Result:        receipt.ResultApplied,
		OrderID:       o.ID,
		PaymentID:     p.ID,
		OrderStatus:   o.Status,
		PaymentStatus: p.Status,
	}

	if !sig.Amount.Equal(p.Amount) {
		e.mismatch.Add(1)
		e.flagForReview(ctx, o, p, sig, ReasonAmountMismatch)
		return out, nil, reject(ReasonAmountMismatch,
			fmt.Errorf("%w: recorded %s, signal %s", ErrAmountMismatch, p.Amount.StringFixed(2), sig.Amount.StringFixed(2)))
	}
	// the payment may already be at target when an earlier attempt committed it and then failed
	if p.Status != target && !payment.CanTransition(p.Status, target) {
		return out, nil, reject(ReasonInvalidTransition,
			fmt.Errorf("%w: payment %s -> %s: %w", ErrInvalidTransition, p.Status, target, payment.ErrInvalidTransition))
	}

	stale := o.Status.IsTerminal()
	next, moves := orderTarget(sig.Kind, o.Status)
	if !stale && moves && sig.Kind == payment.SignalApproved && o.PaymentID != "" && o.PaymentID != p.ID {
		e.flagForReview(ctx, o, p, sig, ReasonAlreadyLinked)
		return out, nil, reject(ReasonAlreadyLinked, fmt.Errorf("order %s: %w", o.ID, ErrAlreadyLinked))
	}

	now := e.now().UTC()
	var events []exchange.Event

	var paymentEvent exchange.Event
	if p.Status != target {
		from := p.Status
		ch := payment.StatusChange{From: from, To: target, At: now, Reason: sig.Reason}
		if err := e.payments.CompareAndSetStatus(ctx, p.ID, ch); err != nil {
			return out, nil, err
		}
		if err := p.Apply(ch); err != nil {
			return out, nil, err
		}
		paymentEvent = payment.NewStatusChangedEvent(p, from)
		out.PaymentStatus = p.Status
	}

	switch {
	case stale:
		out.Result = receipt.ResultStale
	case moves:
		from := o.Status
		changed := o.Clone()
		if target == payment.StatusApproved {
			if err := changed.LinkPayment(p.ID); err != nil {
				return out, nil, reject(ReasonAlreadyLinked, err)
			}
		}
		if err := changed.TransitionTo(next, order.TriggerPayment, now); err != nil {
			return out, nil, reject(ReasonInvalidTransition, fmt.Errorf("%w: %w", ErrInvalidTransition, err))
		}
		if target == payment.StatusApproved && o.PaymentID == "" {
			if err := e.orders.LinkPayment(ctx, o.ID, p.ID); err != nil {
				if errors.Is(err, order.ErrAlreadyLinked) {
					return out, nil, reject(ReasonAlreadyLinked, err)
				}
				return out, nil, err
			}
		}
		if err := e.orders.CompareAndSetStatus(ctx, o.ID, from, next, now); err != nil {
			return out, nil, err
		}
		events = append(events, order.NewStatusChangedEvent(changed, from, order.TriggerPayment.String()))
		out.OrderStatus = changed.Status
	}

	if paymentEvent != nil {
		events = append(events, paymentEvent)
	}
	if stale {
		events = append(events, payment.StaleSignalEvent{
			OrderID:       o.ID,
			OrderStatus:   string(o.Status),
			PaymentID:     p.ID,
			TransactionID: sig.TransactionID,
			Signal:        sig.Kind,
		})
	}
	return out, events, nil
}

// orderTarget maps a payment signal to the order status it implies from the current one.
func orderTarget(kind payment.Signal, current order.Status) (order.Status, bool) {
	switch kind {
	case payment.SignalApproved:
		return order.StatusConfirmed, current == order.StatusPending
	case payment.SignalRejected:
		return order.StatusCancelled, current == order.StatusPending
	case payment.SignalRefunded:
		return order.StatusCancelled, !current.IsTerminal() && current != order.StatusUnknown
	}
	return "", false
}

// ApplyOperatorTransition moves an order along the operator edges of the state machine. It never
// touches payment state and publishes order_status_changed only.
func (e *Engine) ApplyOperatorTransition(ctx context.Context, cmd OperatorTransition) (out Outcome, err error) {
	ctx, run := e.in.Begin(ctx, useCaseOperator, "ApplyOperatorTransition",
		attribute.String("order.id", cmd.OrderID),
		attribute.String("order.target_status", string(cmd.Target)),
	)
	run.With(
		observability.F("order_id", cmd.OrderID),
		observability.F("target_status", string(cmd.Target)),
		observability.F("actor", cmd.Actor),
	)
	defer func() {
		classify(run, err)
		run.End(err)
	}()

	out.OrderID = cmd.OrderID
	if cmd.OrderID == "" {
		return out, reject(ReasonNotFound, fmt.Errorf("%w: order id is required", ErrNotFound))
	}
	target := order.ParseStatus(string(cmd.Target))
	actor := cmd.Actor
	if actor == "" {
		actor = order.TriggerOperator.String()
	}

	release, err := e.locker.Acquire(ctx, cmd.OrderID, e.lockTimeout)
	if err != nil {
		run.Fail("LOCK_TIMEOUT")
		return out, fmt.Errorf("order %s: %w", cmd.OrderID, err)
	}
	defer release()

	var evt exchange.Event
	for attempt := 0; ; attempt++ {
		o, gerr := e.orders.Get(ctx, cmd.OrderID)
		if gerr != nil {
			if errors.Is(gerr, order.ErrNotFound) {
				return out, reject(ReasonNotFound, fmt.Errorf("%w: %w", ErrNotFound, gerr))
			}
			return out, fmt.Errorf("lifecycle: load order: %w", gerr)
		}
		out.OrderStatus = o.Status
		out.PaymentID = o.PaymentID

		from := o.Status
		changed := o.Clone()
		now := e.now().UTC()
		if terr := changed.TransitionTo(target, order.TriggerOperator, now); terr != nil {
			return out, reject(ReasonInvalidTransition, fmt.Errorf("%w: %w", ErrInvalidTransition, terr))
		}

		cerr := e.orders.CompareAndSetStatus(ctx, o.ID, from, target, now)
		if cerr == nil {
			out.Result = receipt.ResultApplied
			out.OrderStatus = changed.Status
			evt = order.NewStatusChangedEvent(changed, from, actor)
			break
		}
		if !isStoreConflict(cerr) {
			return out, fmt.Errorf("lifecycle: update order: %w", cerr)
		}
		if attempt >= e.conflictRetries {
			run.Fail("CONFLICT_RETRIES_EXHAUSTED")
			return out, fmt.Errorf("%w: %w", ErrConflict, cerr)
		}
	}

	if perr := e.publisher.Publish(ctx, evt); perr != nil {
		run.With(observability.F("event_publish_error", perr.Error()))
	}
	return out, nil
}

// replay returns the stored outcome for key, if any.
func (e *Engine) replay(ctx context.Context, key receipt.Key) (Outcome, bool, error) {
	rec, err := e.receipts.Get(ctx, key)
	if errors.Is(err, receipt.ErrNotFound) {
		return Outcome{}, false, nil
	}
	if err != nil {
		return Outcome{}, false, fmt.Errorf("lifecycle: load receipt: %w", err)
	}
	return Outcome{
		Result:        rec.Result,
		Duplicate:     true,
		OrderID:       rec.OrderID,
		PaymentID:     rec.PaymentID,
		OrderStatus:   order.ParseStatus(rec.OrderStatus),
		PaymentStatus: rec.PaymentStatus,
	}, true, nil
}

func (e *Engine) flagForReview(ctx context.Context, o *order.Order, p *payment.Payment, sig PaymentSignal, reason string) {
	_ = e.publisher.Publish(ctx, payment.ReviewRequiredEvent{
		OrderID:        o.ID,
		PaymentID:      p.ID,
		TransactionID:  sig.TransactionID,
		Signal:         sig.Kind,
		Reason:         reason,
		RecordedAmount: p.Amount,
		SignalAmount:   sig.Amount,
	})
}

func classify(run *application.Run, err error) {
	if err == nil {
		return
	}
	if reason, ok := IsRejection(err); ok {
		run.Reject(reasonStatus(reason))
	}
}

func reasonStatus(reason string) string {
	switch reason {
	case ReasonInvalidTransition:
		return "INVALID_TRANSITION"
	case ReasonAmountMismatch:
		return "AMOUNT_MISMATCH"
	case ReasonAlreadyLinked:
		return "ALREADY_LINKED"
	case ReasonNotFound:
		return "NOT_FOUND"
	case ReasonOrderMismatch:
		return "ORDER_MISMATCH"
	}
	return "REJECTED"
}
