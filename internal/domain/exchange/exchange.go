// Package exchange defines the fanout publish/subscribe contract for domain events.
//
// Delivery is at-most-once to subscribers connected at publish time. Nothing is persisted,
// and publishing never waits on a slow subscriber.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultName is the fanout topic every service publishes order events to.
const DefaultName = "order_events"

var (
	ErrClosed = errors.New("exchange: closed")
	// ErrUnavailable is returned while the transport is down. Publishing may succeed later.
	ErrUnavailable = errors.New("exchange: unavailable")
)

// Event is any domain event with a name identifier.
type Event interface {
	EventName() string
}

// Message is the wire envelope: {event, payload, at(ms epoch)}.
type Message struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	At      int64           `json:"at"`
}

// NewMessage encodes e as the payload of a message stamped at at.
func NewMessage(e Event, at time.Time) (Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return Message{}, fmt.Errorf("exchange: encode %s: %w", e.EventName(), err)
	}
	return Message{Event: e.EventName(), Payload: payload, At: at.UnixMilli()}, nil
}

// Time returns At as a time.
func (m Message) Time() time.Time { return time.UnixMilli(m.At).UTC() }

// Publisher publishes events to every live subscriber. It is best-effort.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscription is an unbounded stream of messages. C is closed after Close or when the
// subscribing context ends.
type Subscription interface {
	C() <-chan Message
	Close()
}

// Subscriber opens subscriptions. Messages published before Subscribe returns are not seen;
// once it returns without error, later messages are delivered until the subscription ends.
type Subscriber interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

type Exchange interface {
	Publisher
	Subscriber
	Close() error
}
