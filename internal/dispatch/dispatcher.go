package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/media-pipeline/internal/domain"
	"github.com/phrazzld/media-pipeline/internal/events"
	"github.com/phrazzld/media-pipeline/internal/job"
	"github.com/phrazzld/media-pipeline/internal/pool"
	"github.com/phrazzld/media-pipeline/internal/store"
)

// Source is the event source of everything the dispatcher publishes.
const Source = "dispatcher"

const (
	// MinBatchSize and MaxBatchSize bound SetBatchSize.
	MinBatchSize = 1
	MaxBatchSize = 100

	stuckBatchLimit = 100
)

// Common errors returned by the dispatcher.
var (
	ErrInvalidBatchSize = fmt.Errorf("batch size must be between %d and %d", MinBatchSize, MaxBatchSize)
	ErrInvalidConfig    = errors.New("invalid dispatcher configuration")

	// ErrNoJob is returned by Dispatch when no registered job accepts the
	// artifact in its current status.
	ErrNoJob = errors.New("no job accepts artifact")

	// ErrInFlight is returned by Dispatch when a unit for the artifact is
	// already running.
	ErrInFlight = errors.New("artifact already in flight")

	// ErrSaturated is returned by Dispatch when every active slot is taken.
	ErrSaturated = errors.New("dispatcher at max concurrent jobs")

	// ErrRejected is returned by Dispatch when the unit never reached a
	// worker: the permit wait was cancelled or the pool refused it.
	ErrRejected = errors.New("dispatch unit rejected")
)

// Config controls the dispatcher.
type Config struct {
	Enabled           bool
	Interval          time.Duration
	BatchSize         int
	MaxConcurrentJobs int

	// MaxRetries is the per-artifact failure budget of the batch path
	MaxRetries int

	// RetryAfter is the cool-down between a failure and the next attempt
	RetryAfter time.Duration

	StuckAfter    time.Duration
	StuckInterval time.Duration

	// Topic receives follow-up requests, StatusTopic receives
	// STATUS_CHANGED notifications
	Topic       string
	StatusTopic string
}

// DefaultConfig returns the dispatcher defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		Interval:          5 * time.Second,
		BatchSize:         5,
		MaxConcurrentJobs: 3,
		MaxRetries:        3,
		RetryAfter:        5 * time.Second,
		StuckAfter:        30 * time.Minute,
		StuckInterval:     5 * time.Minute,
		Topic:             "media.processing",
		StatusTopic:       "media.processing.status",
	}
}

func (c Config) validate() error {
	switch {
	case c.MaxConcurrentJobs < 1:
		return fmt.Errorf("%w: max concurrent jobs must be at least 1", ErrInvalidConfig)
	case c.BatchSize < MinBatchSize || c.BatchSize > MaxBatchSize:
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrInvalidBatchSize)
	case c.Interval <= 0:
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: max retries cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// Dispatcher schedules artifacts onto the resource pools.
type Dispatcher struct {
	cfg      Config
	store    store.ArtifactStore
	registry *job.Registry
	pools    *pool.Manager
	pub      events.Publisher
	logger   *slog.Logger
	metrics  *metrics

	enabled   atomic.Bool
	batchSize atomic.Int32
	active    atomic.Int32

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
	units    sync.WaitGroup

	// life bounds permit acquisition; Stop cancels it
	life context.Context
	stop context.CancelFunc

	dispatched atomic.Int64
	succeeded  atomic.Int64
	failed     atomic.Int64
	skipped    atomic.Int64
	rejected   atomic.Int64
	reclaimed  atomic.Int64
}

// New creates a dispatcher. pub may be nil, in which case no events are
// published.
func New(
	cfg Config,
	artifacts store.ArtifactStore,
	registry *job.Registry,
	pools *pool.Manager,
	pub events.Publisher,
	logger *slog.Logger,
) (*Dispatcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if artifacts == nil || registry == nil || pools == nil {
		return nil, fmt.Errorf("%w: store, registry and pools are required", ErrInvalidConfig)
	}
	if cfg.StatusTopic == "" {
		cfg.StatusTopic = cfg.Topic
	}

	life, stop := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:      cfg,
		store:    artifacts,
		registry: registry,
		pools:    pools,
		pub:      pub,
		logger:   logger.With("component", "dispatcher"),
		metrics:  newMetrics(),
		inFlight: make(map[uuid.UUID]struct{}),
		life:     life,
		stop:     stop,
	}
	d.enabled.Store(cfg.Enabled)
	d.batchSize.Store(int32(cfg.BatchSize))

	return d, nil
}

// Run ticks at the configured interval and reclaims stuck artifacts until
// ctx is done. Unit failures never stop the loop.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher started",
		"interval", d.cfg.Interval,
		"batch_size", d.BatchSize(),
		"max_concurrent_jobs", d.cfg.MaxConcurrentJobs,
		"enabled", d.Enabled())

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	var stuck <-chan time.Time
	if d.cfg.StuckInterval > 0 && d.cfg.StuckAfter > 0 {
		t := time.NewTicker(d.cfg.StuckInterval)
		defer t.Stop()
		stuck = t.C
	}

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped")
			return nil
		case <-ticker.C:
			if _, err := d.Tick(ctx); err != nil && ctx.Err() == nil {
				d.logger.Error("batch tick failed", "error", err)
			}
		case <-stuck:
			if _, err := d.ReclaimStuck(ctx); err != nil && ctx.Err() == nil {
				d.logger.Error("stuck artifact reclaim failed", "error", err)
			}
		}
	}
}

// Tick runs one scheduling pass and returns the number of units started.
func (d *Dispatcher) Tick(ctx context.Context) (int, error) {
	if !d.Enabled() {
		d.logger.Debug("batch processing paused, skipping tick")
		return 0, nil
	}

	available := d.cfg.MaxConcurrentJobs - int(d.active.Load())
	if available <= 0 {
		d.logger.Debug("no free slots, skipping tick",
			"active", d.active.Load(),
			"max_concurrent_jobs", d.cfg.MaxConcurrentJobs)
		return 0, nil
	}

	limit := min(d.BatchSize(), available)
	eligible, err := d.store.FindEligibleForProcessing(ctx, limit, d.cfg.MaxRetries, d.cfg.RetryAfter)
	if err != nil {
		return 0, fmt.Errorf("failed to find eligible artifacts: %w", err)
	}

	started := 0
	for _, a := range eligible {
		_, err := d.start(a)
		switch {
		case err == nil:
			started++
		case errors.Is(err, ErrSaturated):
			// remaining artifacts stay eligible for the next tick
			return started, nil
		default:
			d.logger.Debug("artifact skipped",
				"artifact_id", a.ID,
				"status", a.Status,
				"reason", err)
		}
	}

	if started > 0 {
		d.logger.Info("batch dispatched",
			"started", started,
			"eligible", len(eligible),
			"active", d.active.Load())
	}
	return started, nil
}

// Dispatch starts a unit for one artifact and waits until its pool has
// accepted it. It returns ErrNoJob, ErrInFlight or ErrSaturated when no unit
// was started, and ErrRejected when the unit never reached a worker.
func (d *Dispatcher) Dispatch(ctx context.Context, id uuid.UUID) error {
	a, err := d.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load artifact %s: %w", id, err)
	}

	u, err := d.start(a)
	if err != nil {
		return err
	}

	select {
	case err := <-u.accepted:
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrRejected, id, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// start selects a job, claims the artifact and an active slot, and hands the
// unit to its pool from a separate goroutine so a saturated semaphore never
// blocks a tick. The unit reports the hand-off on its accepted channel.
func (d *Dispatcher) start(a *domain.Artifact) (*unit, error) {
	j, ok := d.registry.Select(a)
	if !ok {
		d.skipped.Add(1)
		return nil, fmt.Errorf("%w: %s in %s", ErrNoJob, a.ID, a.Status)
	}

	if !d.claim(a.ID) {
		d.skipped.Add(1)
		return nil, ErrInFlight
	}
	if !d.reserve() {
		d.unclaim(a.ID)
		return nil, ErrSaturated
	}

	d.dispatched.Add(1)
	d.metrics.dispatched.WithLabelValues(j.Name()).Inc()
	d.logger.Debug("dispatching artifact",
		"artifact_id", a.ID,
		"job", j.Name(),
		"pool", j.Pool(),
		"estimated_duration", j.EstimatedDuration(a))

	u := newUnit(d, j, a)
	d.units.Add(1)
	go d.submit(u)
	return u, nil
}

func (d *Dispatcher) submit(u *unit) {
	kind := u.job.Pool()
	sem, p := d.pools.Semaphore(kind), d.pools.Pool(kind)
	if sem == nil || p == nil {
		u.Discard(fmt.Errorf("no resource pool %q for job %s", kind, u.job.Name()))
		return
	}

	if err := sem.Acquire(d.life); err != nil {
		u.Discard(err)
		return
	}
	u.sem = sem

	if err := p.Submit(u); err != nil {
		u.Discard(err)
		return
	}
	u.accept(nil)
}

// reserve takes an active slot unless the ceiling is reached.
func (d *Dispatcher) reserve() bool {
	for {
		cur := d.active.Load()
		if int(cur) >= d.cfg.MaxConcurrentJobs {
			return false
		}
		if d.active.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

func (d *Dispatcher) claim(id uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inFlight[id]; busy {
		return false
	}
	d.inFlight[id] = struct{}{}
	return true
}

func (d *Dispatcher) unclaim(id uuid.UUID) {
	d.mu.Lock()
	delete(d.inFlight, id)
	d.mu.Unlock()
}

func (d *Dispatcher) isInFlight(id uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, busy := d.inFlight[id]
	return busy
}

// ReclaimStuck records a failure for every artifact that sat in an
// in-progress status longer than StuckAfter without a live unit, so it
// re-enters through the retry path.
func (d *Dispatcher) ReclaimStuck(ctx context.Context) (int, error) {
	stuck, err := d.store.FindStuck(ctx, d.cfg.StuckAfter, stuckBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to find stuck artifacts: %w", err)
	}

	reclaimed := 0
	for _, a := range stuck {
		if d.isInFlight(a.ID) {
			continue
		}

		reason := fmt.Sprintf("stuck in %s for more than %s", a.Status, d.cfg.StuckAfter)
		exhausted, err := d.store.RecordFailure(ctx, a.ID, a.Status, reason, d.cfg.MaxRetries)
		if errors.Is(err, store.ErrStatusConflict) {
			d.logger.Debug("stuck artifact moved on before reclaim",
				"artifact_id", a.ID,
				"status", a.Status)
			continue
		}
		if err != nil {
			d.logger.Error("failed to reclaim stuck artifact",
				"artifact_id", a.ID,
				"status", a.Status,
				"error", err)
			continue
		}

		reclaimed++
		d.reclaimed.Add(1)
		d.logger.Warn("reclaimed stuck artifact",
			"artifact_id", a.ID,
			"status", a.Status,
			"retries_exhausted", exhausted)
		d.publishStatus(ctx, a.ID, a.Status, domain.StatusFailed, reason)
	}

	return reclaimed, nil
}

// Pause stops scheduled ticks. Running units and event-driven dispatch are
// not affected.
func (d *Dispatcher) Pause() {
	if d.enabled.CompareAndSwap(true, false) {
		d.logger.Info("batch processing paused")
	}
}

// Resume re-enables scheduled ticks.
func (d *Dispatcher) Resume() {
	if d.enabled.CompareAndSwap(false, true) {
		d.logger.Info("batch processing resumed")
	}
}

// Enabled reports whether scheduled ticks run.
func (d *Dispatcher) Enabled() bool {
	return d.enabled.Load()
}

// BatchSize returns the current batch size.
func (d *Dispatcher) BatchSize() int {
	return int(d.batchSize.Load())
}

// SetBatchSize changes how many artifacts one tick selects at most.
func (d *Dispatcher) SetBatchSize(n int) error {
	if n < MinBatchSize || n > MaxBatchSize {
		return ErrInvalidBatchSize
	}
	old := d.batchSize.Swap(int32(n))
	d.logger.Info("batch size changed", "from", old, "to", n)
	return nil
}

// Active returns the number of units holding an active slot.
func (d *Dispatcher) Active() int {
	return int(d.active.Load())
}

// Wait blocks until every started unit has finished.
func (d *Dispatcher) Wait() {
	d.units.Wait()
}

// Stop cancels units still waiting for a semaphore permit. Units already
// running are unaffected; use Wait to wait for them.
func (d *Dispatcher) Stop() {
	d.stop()
}
