// Package receipt records which provider notifications have already been applied,
// so that redelivered webhooks become no-ops.
package receipt

import (
	"context"
	"errors"
	"time"

	"github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/payment"
)

var (
	ErrNotFound = errors.New("receipt: not found")
	ErrExists   = errors.New("receipt: already recorded")
)

// Key is the dedup key of a provider notification.
type Key struct {
	TransactionID string
	Signal        payment.Signal
}

func (k Key) String() string { return k.TransactionID + ":" + string(k.Signal) }

type Result string

const (
	ResultApplied Result = "applied"
	ResultStale   Result = "stale"
)

// Receipt is the result stored for a key on first application.
type Receipt struct {
	Key           Key
	OrderID       string
	PaymentID     string
	Result        Result
	OrderStatus   string
	PaymentStatus payment.Status
	AppliedAt     time.Time
}

// Store persists receipts. Put is first-writer-wins and returns ErrExists for a known key.
type Store interface {
	Get(ctx context.Context, key Key) (*Receipt, error)
	Put(ctx context.Context, r *Receipt) error
	// Evict removes receipts applied before cutoff and returns how many were removed.
	Evict(ctx context.Context, cutoff time.Time) (int, error)
}

// MinRetention is the shortest TTL that still outlives provider redelivery windows.
const MinRetention = 72 * time.Hour
