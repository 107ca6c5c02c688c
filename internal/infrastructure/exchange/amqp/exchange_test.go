package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domexchange "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/exchange"

	amqp091 "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type pinged struct {
	OrderID string `json:"orderId"`
}

func (pinged) EventName() string { return "pinged" }

func failingDialer(calls *atomic.Int32) Dialer {
	return func(string) (*amqp091.Connection, error) {
		calls.Add(1)
		return nil, errors.New("connection refused")
	}
}

// silentBroker accepts TCP connections and never answers the AMQP handshake.
func silentBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return "amqp://guest:guest@" + ln.Addr().String() + "/"
}

func TestPublishWithoutBrokerFailsFastAndThrottlesDials(t *testing.T) {
	var calls atomic.Int32
	x := newExchange(Config{URL: "amqp://nowhere", ReconnectDelay: time.Hour}, nil, failingDialer(&calls))

	err := x.Publish(context.Background(), pinged{OrderID: "O1"})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, err, domexchange.ErrUnavailable)

	// the first wake-up dials in the background, later ones wait out the reconnect delay
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	for range 5 {
		assert.ErrorIs(t, x.Publish(context.Background(), pinged{OrderID: "O1"}), ErrNotConnected)
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, x.Close())
	assert.ErrorIs(t, x.Publish(context.Background(), pinged{}), domexchange.ErrClosed)
}

func TestPublishDoesNotWaitForStalledBroker(t *testing.T) {
	x := New(Config{
		URL:            silentBroker(t),
		ReconnectDelay: 10 * time.Millisecond,
		DialTimeout:    2 * time.Second,
	}, nil)

	// a dial is in flight against a broker that never answers
	dialed := make(chan error, 1)
	go func() { dialed <- x.Connect(context.Background()) }()
	time.Sleep(50 * time.Millisecond)

	for range 3 {
		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		start := time.Now()
		err := x.Publish(ctx, pinged{OrderID: "O1"})
		cancel()
		assert.ErrorIs(t, err, ErrNotConnected)
		assert.Less(t, time.Since(start), 100*time.Millisecond)
	}

	// the handshake is bounded by DialTimeout, not the library default
	select {
	case err := <-dialed:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("dial not bounded by DialTimeout")
	}
	require.NoError(t, x.Close())
}

func TestSubscribeFailsWhileDisconnected(t *testing.T) {
	var calls atomic.Int32
	x := newExchange(Config{ReconnectDelay: time.Hour}, nil, failingDialer(&calls))

	_, err := x.Subscribe(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, x.Close())
	require.NoError(t, x.Close())
	_, err = x.Subscribe(context.Background())
	assert.ErrorIs(t, err, domexchange.ErrClosed)
}

func TestLostSubscriptionRedialsUntilContextEnds(t *testing.T) {
	var calls atomic.Int32
	x := newExchange(Config{ReconnectDelay: 5 * time.Millisecond}, nil, failingDialer(&calls))
	defer x.Close()

	ctx, cancel := context.WithCancel(context.Background())
	s := &subscription{ch: make(chan domexchange.Message, 1), stop: make(chan struct{})}
	go x.consume(ctx, s, nil, nil)

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case _, ok := <-s.C():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription still open after cancel")
	}
}

func TestCloseStopsLostSubscription(t *testing.T) {
	var calls atomic.Int32
	x := newExchange(Config{ReconnectDelay: time.Hour}, nil, failingDialer(&calls))

	s := &subscription{ch: make(chan domexchange.Message, 1), stop: make(chan struct{})}
	done := make(chan struct{})
	go func() {
		defer close(done)
		x.consume(context.Background(), s, nil, nil)
	}()
	require.NoError(t, x.Close())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer kept running after Close")
	}
	_, ok := <-s.C()
	assert.False(t, ok)
}

func TestFanoutThroughRabbitMQ(t *testing.T) {
	if testing.Short() || os.Getenv("FOODORDER_INTEGRATION") == "" {
		t.Skip("set FOODORDER_INTEGRATION=1 to run broker tests")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3.13-alpine",
			ExposedPorts: []string{"5672/tcp"},
			WaitingFor:   wait.ForListeningPort("5672/tcp").WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5672/tcp")
	require.NoError(t, err)
	url := "amqp://guest:guest@" + host + ":" + port.Port() + "/"

	x := New(Config{URL: url, ReconnectDelay: 200 * time.Millisecond}, nil)
	defer x.Close()
	require.Eventually(t, func() bool { return x.Connect(ctx) == nil }, 30*time.Second, 500*time.Millisecond)

	// both queues are bound once Subscribe returns
	a, err := x.Subscribe(ctx)
	require.NoError(t, err)
	b, err := x.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, x.Publish(ctx, pinged{OrderID: "O1"}))

	for _, sub := range []domexchange.Subscription{a, b} {
		select {
		case msg := <-sub.C():
			assert.Equal(t, "pinged", msg.Event)
			var p pinged
			require.NoError(t, json.Unmarshal(msg.Payload, &p))
			assert.Equal(t, "O1", p.OrderID)
		case <-time.After(5 * time.Second):
			t.Fatal("message not fanned out")
		}
	}
}
