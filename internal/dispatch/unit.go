package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/phrazzld/media-pipeline/internal/domain"
	"github.com/phrazzld/media-pipeline/internal/job"
	"github.com/phrazzld/media-pipeline/internal/pool"
	"github.com/phrazzld/media-pipeline/internal/redact"
	"github.com/phrazzld/media-pipeline/internal/store"
)

// unit is one artifact on its way through one job. It implements pool.Task.
type unit struct {
	d        *Dispatcher
	job      job.Job
	artifact *domain.Artifact

	// sem is set once the permit is held
	sem *pool.Semaphore

	// accepted receives nil once the pool took the unit, or the reason it
	// never ran
	accepted   chan error
	acceptOnce sync.Once

	once sync.Once
}

func newUnit(d *Dispatcher, j job.Job, a *domain.Artifact) *unit {
	return &unit{d: d, job: j, artifact: a, accepted: make(chan error, 1)}
}

var _ pool.Task = (*unit)(nil)

// Run executes the unit on a pool worker, or on the submitting goroutine
// under the caller-runs policy.
func (u *unit) Run() {
	u.accept(nil)
	defer u.finish()

	d, a := u.d, u.artifact
	ctx := context.WithoutCancel(d.life)
	log := d.logger.With(
		slog.String("artifact_id", a.ID.String()),
		slog.String("job", u.job.Name()))

	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked",
				"panic", r,
				"stack", string(debug.Stack()))
			u.fail(ctx, log, fmt.Errorf("panic: %v", r))
		}
	}()

	u.execute(ctx, log)
}

func (u *unit) execute(ctx context.Context, log *slog.Logger) {
	d, a := u.d, u.artifact
	from, running := a.Status, u.job.InProgressStatus()

	if err := d.store.UpdateStatus(ctx, a.ID, from, running); err != nil {
		d.skipped.Add(1)
		if errors.Is(err, store.ErrStatusConflict) {
			log.Debug("artifact claimed elsewhere", "expected_status", from)
			return
		}
		log.Error("failed to start job",
			"from", from,
			"to", running,
			"error", err)
		return
	}
	a.Status = running
	d.publishStatus(ctx, a.ID, from, running, "")

	start := time.Now()
	err := u.job.Process(ctx, a)
	d.metrics.duration.WithLabelValues(u.job.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		u.fail(ctx, log, err)
		return
	}

	done := u.job.CompletedStatus()
	if err := d.store.UpdateStatus(ctx, a.ID, running, done); err != nil {
		d.failed.Add(1)
		d.metrics.outcomes.WithLabelValues(u.job.Name(), "lost").Inc()
		log.Error("failed to record job completion",
			"from", running,
			"to", done,
			"error", err)
		return
	}
	a.Status = done

	d.succeeded.Add(1)
	d.metrics.outcomes.WithLabelValues(u.job.Name(), "succeeded").Inc()
	log.Info("job completed",
		"status", done,
		"duration_ms", time.Since(start).Milliseconds())
	d.publishStatus(ctx, a.ID, running, done, "")

	if c, ok := u.job.(job.Chainer); ok {
		if next, ok := c.Next(a); ok {
			d.publishFollowUp(ctx, a.ID, next)
		}
	}
}

// fail records a handled failure. The stored reason is redacted and
// truncated.
func (u *unit) fail(ctx context.Context, log *slog.Logger, cause error) {
	d, a := u.d, u.artifact
	reason := redact.Reason(cause)

	d.failed.Add(1)
	d.metrics.outcomes.WithLabelValues(u.job.Name(), "failed").Inc()

	exhausted, err := d.store.RecordFailure(ctx, a.ID, a.Status, reason, d.cfg.MaxRetries)
	if errors.Is(err, store.ErrStatusConflict) {
		log.Warn("job failure not recorded, artifact moved on",
			"status", a.Status,
			"reason", reason)
		return
	}
	if err != nil {
		log.Error("failed to record job failure",
			"reason", reason,
			"error", err)
		return
	}

	log.Warn("job failed",
		"status", a.Status,
		"reason", reason,
		"retries_exhausted", exhausted)
	d.publishStatus(ctx, a.ID, a.Status, domain.StatusFailed, reason)
	a.Status = domain.StatusFailed
}

// Discard is called when the unit never runs: the permit wait was cancelled,
// or the pool rejected, evicted or dropped it at shutdown. A Dispatch caller
// still waiting gets the error. The artifact keeps its status, and every
// status a job accepts is selected again by the next tick.
func (u *unit) Discard(err error) {
	u.accept(err)
	u.d.rejected.Add(1)
	u.d.metrics.outcomes.WithLabelValues(u.job.Name(), "rejected").Inc()
	u.d.logger.Warn("dispatch unit discarded",
		"artifact_id", u.artifact.ID,
		"job", u.job.Name(),
		"error", err)
	u.finish()
}

// accept reports the hand-off outcome. Only the first call counts.
func (u *unit) accept(err error) {
	u.acceptOnce.Do(func() { u.accepted <- err })
}

// finish returns the permit, the active slot and the in-flight claim. It is
// safe to call more than once.
func (u *unit) finish() {
	u.once.Do(func() {
		if u.sem != nil {
			u.sem.Release()
		}
		u.d.active.Add(-1)
		u.d.unclaim(u.artifact.ID)
		u.d.units.Done()
	})
}
