package lifecycle

import (
	"errors"

	"github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/order"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/payment"
)

var (
	ErrInvalidTransition    = errors.New("lifecycle: invalid transition")
	ErrAmountMismatch       = payment.ErrAmountMismatch
	ErrAlreadyLinked        = order.ErrAlreadyLinked
	ErrUnsupportedSignal    = errors.New("lifecycle: unsupported signal")
	ErrNotFound             = errors.New("lifecycle: order or payment not found")
	ErrPaymentOrderMismatch = errors.New("lifecycle: payment belongs to another order")

	// ErrConflict and ErrLockTimeout are transient; the caller may retry the same signal.
	ErrConflict    = errors.New("lifecycle: conflict retries exhausted")
	ErrLockTimeout = errors.New("lifecycle: timed out waiting for order lock")
)

// Rejection reasons carried by RejectionError.
const (
	ReasonInvalidTransition = "invalid_transition"
	ReasonAmountMismatch    = "amount_mismatch"
	ReasonAlreadyLinked     = "already_linked"
	ReasonNotFound          = "not_found"
	ReasonOrderMismatch     = "order_mismatch"
)

// RejectionError is a terminal refusal of a signal or transition. State is untouched.
type RejectionError struct {
	Reason string
	Err    error
}

func (e *RejectionError) Error() string {
	return "lifecycle: rejected (" + e.Reason + "): " + e.Err.Error()
}

func (e *RejectionError) Unwrap() error { return e.Err }

func reject(reason string, err error) error {
	return &RejectionError{Reason: reason, Err: err}
}

// IsTransient reports whether err is worth retrying later.
func IsTransient(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrLockTimeout)
}

// IsRejection reports whether err is a terminal refusal and returns its reason.
func IsRejection(err error) (string, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}

func isStoreConflict(err error) bool {
	return errors.Is(err, order.ErrConflict) || errors.Is(err, payment.ErrConflict)
}
