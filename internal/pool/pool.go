package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Common errors returned by Pool
var (
	ErrRejected   = errors.New("task rejected by saturated pool")
	ErrPoolClosed = errors.New("pool is shut down")
	ErrEvicted    = errors.New("task evicted by newer submission")
)

// Task is a unit of work executed by a Pool.
type Task interface {
	// Run executes the task. A panic is recovered by the pool.
	Run()

	// Discard is called instead of Run when the pool drops a queued task,
	// either through eviction or shutdown. It lets the task release
	// anything it acquired before submission.
	Discard(err error)
}

// TaskFunc adapts a function to the Task interface. Discard is a no-op.
type TaskFunc func()

// Run calls f.
func (f TaskFunc) Run() { f() }

// Discard does nothing.
func (f TaskFunc) Discard(error) {}

// Stats is a point-in-time view of a pool.
type Stats struct {
	Name          string  `json:"name"`
	Active        int     `json:"active"`
	PoolSize      int     `json:"pool_size"`
	QueueDepth    int     `json:"queue_depth"`
	QueueCapacity int     `json:"queue_capacity"`
	Completed     int64   `json:"completed"`
	Rejected      int64   `json:"rejected"`
	Evicted       int64   `json:"evicted"`
	CallerRuns    int64   `json:"caller_runs"`
	Utilization   float64 `json:"utilization"`
}

// Pool is a bounded worker pool with a saturation policy.
type Pool struct {
	cfg    Config
	logger *slog.Logger

	// mu guards queue, workers and closed
	mu      sync.Mutex
	queue   []Task
	workers int
	closed  bool

	// wake carries one token per enqueued task to idle workers
	wake chan struct{}

	// done is closed on shutdown to release idle workers
	done chan struct{}

	wg sync.WaitGroup

	active     atomic.Int64
	completed  atomic.Int64
	rejected   atomic.Int64
	evicted    atomic.Int64
	callerRuns atomic.Int64
}

// New creates a pool. Workers are started lazily on submission.
func New(cfg Config, logger *slog.Logger) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.AwaitTermination <= 0 {
		cfg.AwaitTermination = 30 * time.Second
	}

	return &Pool{
		cfg:    cfg,
		logger: logger.With("component", "pool", "pool", cfg.Name),
		queue:  make([]Task, 0, cfg.QueueCapacity),
		wake:   make(chan struct{}, cfg.MaxSize+cfg.QueueCapacity),
		done:   make(chan struct{}),
	}, nil
}

// Config returns the pool configuration.
func (p *Pool) Config() Config {
	return p.cfg
}

// Submit hands a task to the pool. Below the core size a new worker is
// started; otherwise the task is queued; with a full queue a worker up to
// the max size is added; beyond that the saturation policy decides.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}

	if p.workers < p.cfg.CoreSize {
		p.startWorkerLocked(task)
		p.mu.Unlock()
		return nil
	}

	if len(p.queue) < p.cfg.QueueCapacity {
		p.queue = append(p.queue, task)
		if p.workers == 0 {
			p.startWorkerLocked(nil)
		}
		p.mu.Unlock()
		p.signal()
		return nil
	}

	if p.workers < p.cfg.MaxSize {
		p.startWorkerLocked(task)
		p.mu.Unlock()
		return nil
	}

	switch p.cfg.Policy {
	case CallerRuns:
		p.mu.Unlock()
		p.callerRuns.Add(1)
		p.logger.Debug("pool saturated, running task on caller")
		p.execute(task)
		return nil

	case DiscardOldest:
		if len(p.queue) == 0 {
			p.mu.Unlock()
			p.rejected.Add(1)
			return fmt.Errorf("%w: %s has no queue to evict from", ErrRejected, p.cfg.Name)
		}
		oldest := p.queue[0]
		p.queue[0] = nil
		p.queue = append(p.queue[1:], task)
		p.mu.Unlock()
		p.evicted.Add(1)
		p.logger.Warn("pool saturated, evicted oldest queued task")
		oldest.Discard(ErrEvicted)
		p.signal()
		return nil

	default:
		p.mu.Unlock()
		p.rejected.Add(1)
		return fmt.Errorf("%w: %s at %d workers with %d queued",
			ErrRejected, p.cfg.Name, p.cfg.MaxSize, p.cfg.QueueCapacity)
	}
}

// Shutdown stops accepting tasks, lets the workers drain the queue and
// waits for them until ctx is done or AwaitTermination elapses. Tasks still
// queued at that point are discarded with ErrPoolClosed.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.AwaitTermination)
	defer cancel()

	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		p.logger.Info("pool terminated")
		return nil
	case <-ctx.Done():
	}

	p.mu.Lock()
	leftover := p.queue
	p.queue = nil
	p.mu.Unlock()

	for _, t := range leftover {
		t.Discard(ErrPoolClosed)
	}

	p.logger.Warn("pool did not terminate in time",
		"discarded", len(leftover),
		"active", p.active.Load())
	return fmt.Errorf("pool %s: %w", p.cfg.Name, ctx.Err())
}

// Stats returns the live gauges of the pool.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	depth := len(p.queue)
	size := p.workers
	p.mu.Unlock()

	active := int(p.active.Load())
	return Stats{
		Name:          p.cfg.Name,
		Active:        active,
		PoolSize:      size,
		QueueDepth:    depth,
		QueueCapacity: p.cfg.QueueCapacity,
		Completed:     p.completed.Load(),
		Rejected:      p.rejected.Load(),
		Evicted:       p.evicted.Load(),
		CallerRuns:    p.callerRuns.Load(),
		Utilization:   float64(active) / float64(p.cfg.MaxSize),
	}
}

func (p *Pool) startWorkerLocked(first Task) {
	p.workers++
	p.wg.Add(1)
	go p.worker(first)
}

func (p *Pool) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pool) worker(first Task) {
	defer p.wg.Done()

	if first != nil {
		p.execute(first)
	}

	for {
		task, ok := p.next()
		if !ok {
			return
		}
		p.execute(task)
	}
}

// next blocks until a task is queued. It returns false when the worker
// should exit: the pool is closed and drained, or the worker sat idle for
// KeepAlive while the pool is above its core size.
func (p *Pool) next() (Task, bool) {
	timer := time.NewTimer(p.cfg.KeepAlive)
	defer timer.Stop()

	for {
		p.mu.Lock()
		if len(p.queue) > 0 {
			task := p.queue[0]
			p.queue[0] = nil
			p.queue = p.queue[1:]
			p.mu.Unlock()
			return task, true
		}
		if p.closed {
			p.workers--
			p.mu.Unlock()
			return nil, false
		}
		p.mu.Unlock()

		select {
		case <-p.wake:
		case <-p.done:
		case <-timer.C:
			p.mu.Lock()
			if len(p.queue) == 0 && p.workers > p.cfg.CoreSize {
				p.workers--
				p.mu.Unlock()
				return nil, false
			}
			p.mu.Unlock()
			timer.Reset(p.cfg.KeepAlive)
		}
	}
}

func (p *Pool) execute(task Task) {
	p.active.Add(1)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", "panic", fmt.Sprint(r))
		}
		p.active.Add(-1)
		p.completed.Add(1)
	}()

	task.Run()
}
