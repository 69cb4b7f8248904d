package pool

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockTask records how the pool treated it.
type mockTask struct {
	runFn     func()
	ran       atomic.Bool
	discarded chan error
}

func newMockTask(fn func()) *mockTask {
	return &mockTask{runFn: fn, discarded: make(chan error, 1)}
}

func (m *mockTask) Run() {
	m.ran.Store(true)
	if m.runFn != nil {
		m.runFn()
	}
}

func (m *mockTask) Discard(err error) {
	m.discarded <- err
}

func newTestPool(t *testing.T, cfg Config) *Pool {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "test"
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = time.Minute
	}
	if cfg.AwaitTermination == 0 {
		cfg.AwaitTermination = time.Second
	}
	p, err := New(cfg, setupTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p
}

// blockWorkers occupies n workers until the returned function is called.
func blockWorkers(t *testing.T, p *Pool, n int) func() {
	t.Helper()
	release := make(chan struct{})
	started := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		require.NoError(t, p.Submit(TaskFunc(func() {
			started <- struct{}{}
			<-release
		})))
	}
	for i := 0; i < n; i++ {
		<-started
	}
	return func() { close(release) }
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []Config{
		{Name: "neg-core", CoreSize: -1, MaxSize: 1, KeepAlive: time.Second},
		{Name: "zero-max", CoreSize: 0, MaxSize: 0, KeepAlive: time.Second},
		{Name: "core-over-max", CoreSize: 3, MaxSize: 2, KeepAlive: time.Second},
		{Name: "neg-queue", CoreSize: 1, MaxSize: 1, QueueCapacity: -1, KeepAlive: time.Second},
		{Name: "no-keepalive", CoreSize: 1, MaxSize: 1},
	}

	for _, cfg := range tests {
		_, err := New(cfg, setupTestLogger())
		assert.Error(t, err, cfg.Name)
	}
}

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	for _, p := range []Policy{CallerRuns, DiscardOldest, Abort} {
		parsed, err := ParsePolicy(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}

	_, err := ParsePolicy("drop-everything")
	assert.Error(t, err)
}

func TestPool_Submit_RunsTask(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, Config{CoreSize: 2, MaxSize: 2, QueueCapacity: 4})

	done := make(chan struct{})
	require.NoError(t, p.Submit(TaskFunc(func() { close(done) })))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}

	assert.Eventually(t, func() bool { return p.Stats().Completed == 1 }, time.Second, 5*time.Millisecond)
}

func TestPool_GrowsBeyondCoreOnlyWhenQueueFull(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, Config{CoreSize: 1, MaxSize: 3, QueueCapacity: 2, Policy: Abort})
	release := blockWorkers(t, p, 1)
	defer release()

	require.NoError(t, p.Submit(newMockTask(nil)))
	require.NoError(t, p.Submit(newMockTask(nil)))

	stats := p.Stats()
	assert.Equal(t, 1, stats.PoolSize)
	assert.Equal(t, 2, stats.QueueDepth)

	extra := make(chan struct{})
	require.NoError(t, p.Submit(TaskFunc(func() { close(extra) })))
	<-extra
	assert.Equal(t, 2, p.Stats().PoolSize)
}

func TestPool_CallerRunsWhenSaturated(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, Config{CoreSize: 1, MaxSize: 1, QueueCapacity: 1, Policy: CallerRuns})
	release := blockWorkers(t, p, 1)
	defer release()

	queued := newMockTask(nil)
	require.NoError(t, p.Submit(queued))

	inline := newMockTask(nil)
	require.NoError(t, p.Submit(inline))

	// Submit returns only after the caller ran the task itself.
	assert.True(t, inline.ran.Load())
	assert.False(t, queued.ran.Load())
	assert.Equal(t, int64(1), p.Stats().CallerRuns)
	assert.Equal(t, int64(0), p.Stats().Rejected)
}

func TestPool_DiscardOldestWhenSaturated(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, Config{CoreSize: 1, MaxSize: 1, QueueCapacity: 1, Policy: DiscardOldest})
	release := blockWorkers(t, p, 1)

	oldest := newMockTask(nil)
	require.NoError(t, p.Submit(oldest))

	newest := newMockTask(nil)
	require.NoError(t, p.Submit(newest))

	select {
	case err := <-oldest.discarded:
		assert.ErrorIs(t, err, ErrEvicted)
	case <-time.After(time.Second):
		t.Fatal("oldest task was not discarded")
	}

	release()
	assert.Eventually(t, newest.ran.Load, time.Second, 5*time.Millisecond)
	assert.False(t, oldest.ran.Load())
	assert.Equal(t, int64(1), p.Stats().Evicted)
}

func TestPool_AbortWhenSaturated(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, Config{CoreSize: 1, MaxSize: 1, QueueCapacity: 1, Policy: Abort})
	release := blockWorkers(t, p, 1)
	defer release()

	require.NoError(t, p.Submit(newMockTask(nil)))

	rejected := newMockTask(nil)
	err := p.Submit(rejected)
	assert.ErrorIs(t, err, ErrRejected)
	assert.False(t, rejected.ran.Load())
	assert.Equal(t, int64(1), p.Stats().Rejected)
}

func TestPool_PanicDoesNotKillWorker(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, Config{CoreSize: 1, MaxSize: 1, QueueCapacity: 4})

	require.NoError(t, p.Submit(TaskFunc(func() { panic("boom") })))

	done := make(chan struct{})
	require.NoError(t, p.Submit(TaskFunc(func() { close(done) })))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker died after panic")
	}
	assert.Eventually(t, func() bool { return p.Stats().Active == 0 }, time.Second, 5*time.Millisecond)
}

func TestPool_KeepAliveRetiresExtraWorkers(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, Config{
		CoreSize:      1,
		MaxSize:       3,
		QueueCapacity: 0,
		KeepAlive:     20 * time.Millisecond,
	})

	release := blockWorkers(t, p, 3)
	assert.Equal(t, 3, p.Stats().PoolSize)
	release()

	assert.Eventually(t, func() bool { return p.Stats().PoolSize == 1 }, time.Second, 10*time.Millisecond)
}

func TestPool_ShutdownDrainsQueue(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, Config{CoreSize: 1, MaxSize: 1, QueueCapacity: 5})
	release := blockWorkers(t, p, 1)

	var ran atomic.Int32
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Submit(TaskFunc(func() { ran.Add(1) })))
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		release()
	}()

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int32(3), ran.Load())
	assert.ErrorIs(t, p.Submit(newMockTask(nil)), ErrPoolClosed)
}

func TestPool_ShutdownTimeoutDiscardsQueued(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, Config{
		CoreSize:         1,
		MaxSize:          1,
		QueueCapacity:    2,
		AwaitTermination: 30 * time.Millisecond,
	})
	release := blockWorkers(t, p, 1)
	defer release()

	queued := newMockTask(nil)
	require.NoError(t, p.Submit(queued))

	err := p.Shutdown(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, <-queued.discarded, ErrPoolClosed)
}
