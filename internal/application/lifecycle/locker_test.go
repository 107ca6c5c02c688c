package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockerSerializesSameKey(t *testing.T) {
	l := NewLocker()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "O1", time.Second)
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Zero(t, l.Len())
}

func TestLockerTimeoutAndCancel(t *testing.T) {
	l := NewLocker()
	release, err := l.Acquire(context.Background(), "O1", 0)
	require.NoError(t, err)

	_, err = l.Acquire(context.Background(), "O1", 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Acquire(ctx, "O1", time.Second)
	assert.ErrorIs(t, err, context.Canceled)

	other, err := l.Acquire(context.Background(), "O2", 10*time.Millisecond)
	require.NoError(t, err)
	other()

	release()
	release()
	assert.Zero(t, l.Len())

	again, err := l.Acquire(context.Background(), "O1", 10*time.Millisecond)
	require.NoError(t, err)
	again()
}
