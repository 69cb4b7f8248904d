package dispatch

import (
	"context"
	"fmt"

	"github.com/phrazzld/media-pipeline/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	dispatched *prometheus.CounterVec
	outcomes   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

func newMetrics() *metrics {
	return &metrics{
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_dispatch_units_total",
			Help: "Dispatch units started, by job.",
		}, []string{"job"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_dispatch_outcomes_total",
			Help: "Finished dispatch units, by job and outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "media_job_duration_seconds",
			Help:    "Time spent in Process, by job.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"job"}),
	}
}

// RegisterMetrics exposes dispatcher counters and gauges on reg.
func (d *Dispatcher) RegisterMetrics(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		d.metrics.dispatched,
		d.metrics.outcomes,
		d.metrics.duration,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "media_dispatch_active",
			Help: "Dispatch units holding an active slot.",
		}, func() float64 { return float64(d.Active()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "media_dispatch_enabled",
			Help: "1 when scheduled batch processing is enabled.",
		}, func() float64 {
			if d.Enabled() {
				return 1
			}
			return 0
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "media_dispatch_reclaimed_total",
			Help: "Stuck artifacts returned to the retry path.",
		}, func() float64 { return float64(d.reclaimed.Load()) }),
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Statistics is a point-in-time view of the dispatcher and the ledger.
type Statistics struct {
	Enabled           bool `json:"enabled"`
	BatchSize         int  `json:"batch_size"`
	ActiveJobs        int  `json:"active_jobs"`
	MaxConcurrentJobs int  `json:"max_concurrent_jobs"`

	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`

	Dispatched int64 `json:"dispatched"`
	Succeeded  int64 `json:"succeeded"`
	Failures   int64 `json:"failures"`
	Skipped    int64 `json:"skipped"`
	Rejected   int64 `json:"rejected"`
	Reclaimed  int64 `json:"reclaimed"`

	ByStatus map[domain.ProcessingStatus]int `json:"by_status"`
}

// Statistics reports dispatcher counters and ledger counts.
func (d *Dispatcher) Statistics(ctx context.Context) (Statistics, error) {
	counts, err := d.store.CountByStatus(ctx)
	if err != nil {
		return Statistics{}, fmt.Errorf("failed to count artifacts: %w", err)
	}

	s := Statistics{
		Enabled:           d.Enabled(),
		BatchSize:         d.BatchSize(),
		ActiveJobs:        d.Active(),
		MaxConcurrentJobs: d.cfg.MaxConcurrentJobs,
		Dispatched:        d.dispatched.Load(),
		Succeeded:         d.succeeded.Load(),
		Failures:          d.failed.Load(),
		Skipped:           d.skipped.Load(),
		Rejected:          d.rejected.Load(),
		Reclaimed:         d.reclaimed.Load(),
		ByStatus:          counts,
	}

	for status, n := range counts {
		switch {
		case status == domain.StatusUploaded || status == domain.StatusPending,
			status == domain.StatusAnalysisPending:
			s.Pending += n
		case status.IsInProgress():
			s.Processing += n
		case status == domain.StatusCompleted || status == domain.StatusVectorCompleted:
			s.Completed += n
		case status == domain.StatusFailed:
			s.Failed += n
		}
	}

	return s, nil
}
