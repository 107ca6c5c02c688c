// Package memory is an in-process fanout exchange. Each subscriber owns a buffered
// channel; a full buffer drops the message for that subscriber only.
package memory

import (
	"context"
	"sync"
	"time"

	domexchange "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/exchange"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability/logctx"
)

const (
	componentExchange = "exchange"
	defaultBuffer     = 256
)

type Exchange struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscription
	nextID  uint64
	buffer  int
	closed  bool
	now     func() time.Time
	log     observability.Logger
	dropped observability.Counter
}

// New creates an exchange whose subscribers buffer up to buffer messages.
func New(buffer int, tel observability.Observability) *Exchange {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if tel == nil {
		tel = observability.Nop()
	}
	return &Exchange{
		subs:    make(map[uint64]*subscription),
		buffer:  buffer,
		now:     time.Now,
		log:     tel.Logger().With(observability.F("component", componentExchange)),
		dropped: tel.Metrics().Counter(observability.MExchangeDropped),
	}
}

func (x *Exchange) Publish(ctx context.Context, e domexchange.Event) error {
	if e == nil {
		return nil
	}
	msg, err := domexchange.NewMessage(e, x.now())
	if err != nil {
		return err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return domexchange.ErrClosed
	}

	logger := logctx.FromOr(ctx, x.log).With(observability.F("event", msg.Event))
	for id, s := range x.subs {
		select {
		case s.ch <- msg:
		default:
			x.dropped.Add(1, observability.L("reason", "subscriber_full"))
			logger.Warn("event_dropped_slow_subscriber", observability.F("subscriber", id))
		}
	}
	logger.Debug("event_fanned_out", observability.F("subscribers", len(x.subs)))
	return nil
}

func (x *Exchange) Subscribe(ctx context.Context) (domexchange.Subscription, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return nil, domexchange.ErrClosed
	}

	x.nextID++
	s := &subscription{
		id:   x.nextID,
		ch:   make(chan domexchange.Message, x.buffer),
		done: make(chan struct{}),
		x:    x,
	}
	x.subs[s.id] = s

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

// Close disconnects every subscriber. Later publishes fail with ErrClosed.
func (x *Exchange) Close() error {
	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		return nil
	}
	x.closed = true
	subs := make([]*subscription, 0, len(x.subs))
	for _, s := range x.subs {
		subs = append(subs, s)
	}
	x.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	x.log.Info("exchange_closed")
	return nil
}

func (x *Exchange) remove(id uint64) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if s, ok := x.subs[id]; ok {
		delete(x.subs, id)
		close(s.ch)
	}
}

type subscription struct {
	id   uint64
	ch   chan domexchange.Message
	done chan struct{}
	once sync.Once
	x    *Exchange
}

func (s *subscription) C() <-chan domexchange.Message { return s.ch }

func (s *subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.x.remove(s.id)
	})
}
