package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphore_AcquireRelease(t *testing.T) {
	t.Parallel()

	s := NewSemaphore("test", 2)
	ctx := context.Background()

	require.NoError(t, s.Acquire(ctx))
	assert.Equal(t, 1, s.AvailablePermits())
	require.NoError(t, s.Acquire(ctx))
	assert.Equal(t, 0, s.AvailablePermits())
	assert.False(t, s.TryAcquire())

	s.Release()
	assert.True(t, s.TryAcquire())
	s.Release()
	s.Release()
	assert.Equal(t, 2, s.AvailablePermits())
	assert.Equal(t, 2, s.Capacity())
}

func TestSemaphore_AcquireHonoursContext(t *testing.T) {
	t.Parallel()

	s := NewSemaphore("test", 1)
	require.True(t, s.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, s.AvailablePermits())
}

func TestSemaphore_FIFO(t *testing.T) {
	t.Parallel()

	s := NewSemaphore("test", 1)
	require.True(t, s.TryAcquire())

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Acquire(context.Background()))
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			s.Release()
		}(i)
		// Give each waiter time to queue before the next one.
		time.Sleep(10 * time.Millisecond)
	}

	s.Release()
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestSemaphore_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	s := NewSemaphore("test", 3)

	var current, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Acquire(context.Background()))
			defer s.Release()

			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			current.Add(-1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, 3, s.AvailablePermits())
}

func TestNewSemaphore_NonPositivePermits(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, NewSemaphore("zero", 0).Capacity())
}
