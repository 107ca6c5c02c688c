// Package amqp publishes and consumes the order event stream over a RabbitMQ fanout exchange.
//
// The connection is owned by the Exchange value and redialed by its own background loop. Publish
// never dials: while the broker is away it fails fast with ErrNotConnected and wakes the loop.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	domexchange "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/exchange"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability/logctx"

	amqp091 "github.com/rabbitmq/amqp091-go"
)

const (
	componentExchange     = "amqp_exchange"
	defaultBuffer         = 256
	defaultReconnectDelay = 2 * time.Second
	defaultDialTimeout    = 5 * time.Second
	heartbeat             = 10 * time.Second
	contentTypeJSON       = "application/json"
)

var ErrNotConnected = fmt.Errorf("amqp: not connected: %w", domexchange.ErrUnavailable)

type Config struct {
	URL            string
	Exchange       string
	Buffer         int
	ReconnectDelay time.Duration
	// DialTimeout bounds the TCP connect and the AMQP handshake of one dial.
	DialTimeout time.Duration
}

// Dialer opens a broker connection. Tests swap it out.
type Dialer func(url string) (*amqp091.Connection, error)

type Exchange struct {
	cfg  Config
	dial Dialer
	now  func() time.Time

	// dialMu serializes dials. It is never held together with mu across network I/O.
	dialMu sync.Mutex

	mu          sync.Mutex
	conn        *amqp091.Connection
	pubCh       *amqp091.Channel
	lost        chan *amqp091.Error
	lastAttempt time.Time
	closed      bool

	kick chan struct{}
	done chan struct{}
	wg   sync.WaitGroup

	log     observability.Logger
	dropped observability.Counter // exchange_dropped_total{reason}
}

func New(cfg Config, tel observability.Observability) *Exchange {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	timeout := cfg.DialTimeout
	return newExchange(cfg, tel, func(url string) (*amqp091.Connection, error) {
		return amqp091.DialConfig(url, amqp091.Config{
			Heartbeat: heartbeat,
			Locale:    "en_US",
			Dial:      amqp091.DefaultDial(timeout),
		})
	})
}

func newExchange(cfg Config, tel observability.Observability, dial Dialer) *Exchange {
	if tel == nil {
		tel = observability.Nop()
	}
	if cfg.Exchange == "" {
		cfg.Exchange = domexchange.DefaultName
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	x := &Exchange{
		cfg:  cfg,
		dial: dial,
		now:  time.Now,
		kick: make(chan struct{}, 1),
		done: make(chan struct{}),
		log: tel.Logger().With(
			observability.F("component", componentExchange),
			observability.F("exchange", cfg.Exchange),
		),
		dropped: tel.Metrics().Counter(observability.MExchangeDropped),
	}
	x.wg.Add(1)
	go x.maintain()
	return x
}

// Connect dials now so a misconfigured URL shows up at startup. A failure is not fatal: the
// background loop keeps redialing when publishers or a lost connection ask for it.
func (x *Exchange) Connect(ctx context.Context) error {
	err := x.redial()
	if err != nil {
		logctx.FromOr(ctx, x.log).Warn("amqp_dial_failed", observability.Err(err))
	}
	return err
}

// maintain redials at most once per ReconnectDelay, when woken by a publisher or when the
// broker drops the connection.
func (x *Exchange) maintain() {
	defer x.wg.Done()
	for {
		x.mu.Lock()
		lost := x.lost
		x.mu.Unlock()

		select {
		case <-x.done:
			return
		case <-x.kick:
		case <-lost:
			x.mu.Lock()
			if x.lost == lost {
				x.lost = nil
			}
			x.mu.Unlock()
			x.log.Warn("amqp_connection_lost")
		}

		x.mu.Lock()
		wait := x.cfg.ReconnectDelay - x.now().Sub(x.lastAttempt)
		x.mu.Unlock()
		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-x.done:
				t.Stop()
				return
			case <-t.C:
			}
		}

		err := x.redial()
		switch {
		case errors.Is(err, domexchange.ErrClosed):
			return
		case err != nil:
			x.log.Warn("amqp_dial_failed", observability.Err(err))
		}
	}
}

func (x *Exchange) wake() {
	select {
	case x.kick <- struct{}{}:
	default:
	}
}

// redial makes sure a live connection and publishing channel exist.
func (x *Exchange) redial() error {
	x.dialMu.Lock()
	defer x.dialMu.Unlock()

	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		return domexchange.ErrClosed
	}
	conn, pubCh := x.conn, x.pubCh
	x.lastAttempt = x.now()
	x.mu.Unlock()

	if conn != nil && !conn.IsClosed() {
		if pubCh != nil && !pubCh.IsClosed() {
			return nil
		}
		ch, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("amqp: open channel: %w", err)
		}
		return x.install(conn, ch, nil)
	}

	conn, err := x.dial(x.cfg.URL)
	if err != nil {
		return fmt.Errorf("amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp: open channel: %w", err)
	}
	if err := declare(ch, x.cfg.Exchange); err != nil {
		_ = conn.Close()
		return err
	}
	if err := x.install(conn, ch, conn.NotifyClose(make(chan *amqp091.Error, 1))); err != nil {
		return err
	}
	x.log.Info("amqp_connected")
	return nil
}

// install stores a fresh connection and channel unless the exchange was closed meanwhile.
func (x *Exchange) install(conn *amqp091.Connection, ch *amqp091.Channel, lost chan *amqp091.Error) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		_ = conn.Close()
		return domexchange.ErrClosed
	}
	x.conn, x.pubCh = conn, ch
	if lost != nil {
		x.lost = lost
	}
	return nil
}

// declare asserts the non-durable fanout exchange. Nothing is persisted.
func declare(ch *amqp091.Channel, name string) error {
	if err := ch.ExchangeDeclare(name, amqp091.ExchangeFanout, false, false, false, false, nil); err != nil {
		return fmt.Errorf("amqp: declare exchange %s: %w", name, err)
	}
	return nil
}

// Publish sends one message when a channel is up. It returns as soon as ctx ends even if the
// broker stalls the write.
func (x *Exchange) Publish(ctx context.Context, e domexchange.Event) error {
	if e == nil {
		return nil
	}
	msg, err := domexchange.NewMessage(e, x.now())
	if err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("amqp: encode %s: %w", msg.Event, err)
	}

	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		return domexchange.ErrClosed
	}
	ch := x.pubCh
	x.mu.Unlock()
	if ch == nil || ch.IsClosed() {
		x.wake()
		return ErrNotConnected
	}

	res := make(chan error, 1)
	go func() {
		res <- ch.PublishWithContext(ctx, x.cfg.Exchange, "", false, false, amqp091.Publishing{
			ContentType: contentTypeJSON,
			Type:        msg.Event,
			Timestamp:   msg.Time(),
			Body:        body,
		})
	}()
	select {
	case err = <-res:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		x.wake()
		return fmt.Errorf("amqp: publish %s: %w", msg.Event, err)
	}
	return nil
}

// Subscribe binds a server-named exclusive queue to the exchange before returning, so every
// message published afterwards reaches it. The queue disappears with the subscriber; after a
// reconnect, messages published while it was away are missed.
func (x *Exchange) Subscribe(ctx context.Context) (domexchange.Subscription, error) {
	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		return nil, domexchange.ErrClosed
	}
	x.wg.Add(1)
	x.mu.Unlock()

	ch, deliveries, err := x.openConsumer()
	if err != nil {
		x.wg.Done()
		return nil, err
	}

	s := &subscription{
		ch:   make(chan domexchange.Message, x.cfg.Buffer),
		stop: make(chan struct{}),
	}
	go func() {
		defer x.wg.Done()
		x.consume(ctx, s, ch, deliveries)
	}()
	return s, nil
}

// consume forwards deliveries and re-opens the consumer after a lost connection. ch and
// deliveries may be nil, in which case it starts by reconnecting.
func (x *Exchange) consume(ctx context.Context, s *subscription, ch *amqp091.Channel, deliveries <-chan amqp091.Delivery) {
	defer close(s.ch)
	logger := logctx.FromOr(ctx, x.log)

	for {
		if deliveries != nil {
			if !x.forward(ctx, s, deliveries, logger) {
				_ = ch.Close()
				return
			}
			logger.Warn("amqp_subscription_lost")
		}
		if !x.pause(ctx, s) {
			return
		}

		var err error
		ch, deliveries, err = x.openConsumer()
		if errors.Is(err, domexchange.ErrClosed) {
			return
		}
		if err != nil {
			logger.Warn("amqp_subscribe_failed", observability.Err(err))
		}
	}
}

// forward copies deliveries until the broker closes them (returns true) or the subscriber is done.
func (x *Exchange) forward(ctx context.Context, s *subscription, deliveries <-chan amqp091.Delivery, logger observability.Logger) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-s.stop:
			return false
		case <-x.done:
			return false
		case d, ok := <-deliveries:
			if !ok {
				return true
			}
			var msg domexchange.Message
			if err := json.Unmarshal(d.Body, &msg); err != nil || msg.Event == "" {
				x.dropped.Add(1, observability.L("reason", "undecodable"))
				logger.Warn("amqp_message_undecodable", observability.F("type", d.Type))
				continue
			}
			select {
			case s.ch <- msg:
			default:
				x.dropped.Add(1, observability.L("reason", "subscriber_full"))
			}
		}
	}
}

func (x *Exchange) openConsumer() (*amqp091.Channel, <-chan amqp091.Delivery, error) {
	x.mu.Lock()
	conn := x.conn
	x.mu.Unlock()
	if conn == nil || conn.IsClosed() {
		if err := x.redial(); err != nil {
			return nil, nil, err
		}
		x.mu.Lock()
		conn = x.conn
		x.mu.Unlock()
		if conn == nil {
			return nil, nil, ErrNotConnected
		}
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("amqp: open channel: %w", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("amqp: declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", x.cfg.Exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("amqp: bind queue: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("amqp: consume: %w", err)
	}
	return ch, deliveries, nil
}

func (x *Exchange) pause(ctx context.Context, s *subscription) bool {
	t := time.NewTimer(x.cfg.ReconnectDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-s.stop:
		return false
	case <-x.done:
		return false
	case <-t.C:
		return true
	}
}

// Close stops the redial loop and every subscriber, then closes the connection.
func (x *Exchange) Close() error {
	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		return nil
	}
	x.closed = true
	close(x.done)
	conn := x.conn
	x.conn, x.pubCh, x.lost = nil, nil, nil
	x.mu.Unlock()

	var err error
	if conn != nil && !conn.IsClosed() {
		err = conn.Close()
	}
	x.wg.Wait()
	x.log.Info("amqp_closed")
	return err
}

type subscription struct {
	ch   chan domexchange.Message
	stop chan struct{}
	once sync.Once
}

func (s *subscription) C() <-chan domexchange.Message { return s.ch }

func (s *subscription) Close() {
	s.once.Do(func() { close(s.stop) })
}
