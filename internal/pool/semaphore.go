package pool

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Semaphore is a fair counting semaphore. Waiters are admitted in the order
// they called Acquire.
type Semaphore struct {
	name     string
	capacity int64
	inUse    atomic.Int64
	weighted *semaphore.Weighted
}

// NewSemaphore creates a semaphore with the given number of permits.
func NewSemaphore(name string, permits int) *Semaphore {
	if permits <= 0 {
		permits = 1
	}
	return &Semaphore{
		name:     name,
		capacity: int64(permits),
		weighted: semaphore.NewWeighted(int64(permits)),
	}
}

// Acquire blocks until a permit is available or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	if err := s.weighted.Acquire(ctx, 1); err != nil {
		return err
	}
	s.inUse.Add(1)
	return nil
}

// TryAcquire takes a permit without blocking and reports whether it did.
func (s *Semaphore) TryAcquire() bool {
	if !s.weighted.TryAcquire(1) {
		return false
	}
	s.inUse.Add(1)
	return true
}

// Release returns a permit. Releasing more permits than were acquired panics.
func (s *Semaphore) Release() {
	s.inUse.Add(-1)
	s.weighted.Release(1)
}

// AvailablePermits returns the number of free permits.
func (s *Semaphore) AvailablePermits() int {
	return int(s.capacity - s.inUse.Load())
}

// Capacity returns the total number of permits.
func (s *Semaphore) Capacity() int {
	return int(s.capacity)
}

// Name returns the semaphore name.
func (s *Semaphore) Name() string {
	return s.name
}
