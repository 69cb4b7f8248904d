package pool

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Kind names one of the resource pools.
type Kind string

// Resource pool kinds
const (
	Conversion Kind = "conversion"
	Analysis   Kind = "analysis"
	Image      Kind = "image"
	Batch      Kind = "batch"
)

// Kinds lists every pool kind in a stable order.
var Kinds = []Kind{Conversion, Analysis, Image, Batch}

// Spec pairs a pool configuration with the size of its admission semaphore.
type Spec struct {
	Pool    Config
	Permits int
}

// DefaultSpecs returns the default sizing of the four resource pools.
func DefaultSpecs() map[Kind]Spec {
	return map[Kind]Spec{
		Conversion: {
			Pool: Config{
				Name:             string(Conversion),
				CoreSize:         5,
				MaxSize:          10,
				QueueCapacity:    50,
				KeepAlive:        60 * time.Second,
				AwaitTermination: 30 * time.Second,
				Policy:           CallerRuns,
			},
			Permits: 8,
		},
		Analysis: {
			Pool: Config{
				Name:             string(Analysis),
				CoreSize:         2,
				MaxSize:          4,
				QueueCapacity:    20,
				KeepAlive:        300 * time.Second,
				AwaitTermination: 60 * time.Second,
				Policy:           DiscardOldest,
			},
			Permits: 2,
		},
		Image: {
			Pool: Config{
				Name:             string(Image),
				CoreSize:         3,
				MaxSize:          6,
				QueueCapacity:    30,
				KeepAlive:        120 * time.Second,
				AwaitTermination: 45 * time.Second,
				Policy:           CallerRuns,
			},
			Permits: 4,
		},
		Batch: {
			Pool: Config{
				Name:             string(Batch),
				CoreSize:         2,
				MaxSize:          4,
				QueueCapacity:    25,
				KeepAlive:        180 * time.Second,
				AwaitTermination: 30 * time.Second,
				Policy:           Abort,
			},
			Permits: 3,
		},
	}
}

// Snapshot describes one pool and its semaphore for operators.
type Snapshot struct {
	Kind             Kind    `json:"kind"`
	CoreSize         int     `json:"core_size"`
	MaxSize          int     `json:"max_size"`
	QueueCapacity    int     `json:"queue_capacity"`
	KeepAliveSeconds float64 `json:"keep_alive_seconds"`
	Policy           string  `json:"policy"`
	Permits          int     `json:"permits"`
	AvailablePermits int     `json:"available_permits"`
	Stats            Stats   `json:"stats"`
}

// Manager owns one pool and one semaphore per Kind.
type Manager struct {
	pools      map[Kind]*Pool
	semaphores map[Kind]*Semaphore
	logger     *slog.Logger
}

// NewManager builds every pool in specs. All four kinds must be present.
func NewManager(specs map[Kind]Spec, logger *slog.Logger) (*Manager, error) {
	m := &Manager{
		pools:      make(map[Kind]*Pool, len(Kinds)),
		semaphores: make(map[Kind]*Semaphore, len(Kinds)),
		logger:     logger,
	}

	for _, kind := range Kinds {
		spec, ok := specs[kind]
		if !ok {
			return nil, fmt.Errorf("missing configuration for pool %s", kind)
		}
		if spec.Pool.Name == "" {
			spec.Pool.Name = string(kind)
		}

		p, err := New(spec.Pool, logger)
		if err != nil {
			return nil, err
		}
		m.pools[kind] = p
		m.semaphores[kind] = NewSemaphore(string(kind), spec.Permits)

		logger.Info("resource pool configured",
			"pool", kind,
			"core_size", spec.Pool.CoreSize,
			"max_size", spec.Pool.MaxSize,
			"queue_capacity", spec.Pool.QueueCapacity,
			"policy", spec.Pool.Policy.String(),
			"permits", spec.Permits)
	}

	return m, nil
}

// Pool returns the pool of the given kind, or nil.
func (m *Manager) Pool(kind Kind) *Pool {
	return m.pools[kind]
}

// Semaphore returns the admission semaphore of the given kind, or nil.
func (m *Manager) Semaphore(kind Kind) *Semaphore {
	return m.semaphores[kind]
}

// Snapshot returns configuration and live gauges for every pool.
func (m *Manager) Snapshot() []Snapshot {
	out := make([]Snapshot, 0, len(Kinds))
	for _, kind := range Kinds {
		p, s := m.pools[kind], m.semaphores[kind]
		cfg := p.Config()
		out = append(out, Snapshot{
			Kind:             kind,
			CoreSize:         cfg.CoreSize,
			MaxSize:          cfg.MaxSize,
			QueueCapacity:    cfg.QueueCapacity,
			KeepAliveSeconds: cfg.KeepAlive.Seconds(),
			Policy:           cfg.Policy.String(),
			Permits:          s.Capacity(),
			AvailablePermits: s.AvailablePermits(),
			Stats:            p.Stats(),
		})
	}
	return out
}

// Shutdown shuts every pool down concurrently, each bounded by its own
// AwaitTermination.
func (m *Manager) Shutdown(ctx context.Context) error {
	var g errgroup.Group
	for _, kind := range Kinds {
		p := m.pools[kind]
		g.Go(func() error {
			return p.Shutdown(ctx)
		})
	}
	if err := g.Wait(); err != nil {
		m.logger.Error("resource pools did not shut down cleanly", "error", err)
		return err
	}
	m.logger.Info("resource pools shut down")
	return nil
}
