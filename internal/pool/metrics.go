package pool

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RegisterMetrics exposes per-pool gauges on reg.
func (m *Manager) RegisterMetrics(reg prometheus.Registerer) error {
	for _, kind := range Kinds {
		p, s := m.pools[kind], m.semaphores[kind]
		labels := prometheus.Labels{"pool": string(kind)}

		collectors := []prometheus.Collector{
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name:        "media_pool_active",
				Help:        "Tasks currently running in the pool.",
				ConstLabels: labels,
			}, func() float64 { return float64(p.Stats().Active) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name:        "media_pool_queue_depth",
				Help:        "Tasks waiting in the pool queue.",
				ConstLabels: labels,
			}, func() float64 { return float64(p.Stats().QueueDepth) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name:        "media_pool_utilization",
				Help:        "Running tasks divided by the maximum pool size.",
				ConstLabels: labels,
			}, func() float64 { return p.Stats().Utilization }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name:        "media_semaphore_available",
				Help:        "Free admission permits of the pool semaphore.",
				ConstLabels: labels,
			}, func() float64 { return float64(s.AvailablePermits()) }),
		}

		for _, c := range collectors {
			if err := reg.Register(c); err != nil {
				return err
			}
		}
	}
	return nil
}
