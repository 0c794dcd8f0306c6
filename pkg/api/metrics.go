package api

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// tickTimeWeight is the EWMA weight applied to each new tick-time sample.
const tickTimeWeight = 0.1

// Metrics tracks pipeline counters, mirrored into Prometheus collectors.
type Metrics struct {
	mu                   sync.Mutex
	totalTicks           int64
	totalAgentsProcessed int64
	totalObservations    int64
	avgTickTimeMS        float64

	promTicks        prometheus.Counter
	promAgents       prometheus.Counter
	promObservations prometheus.Counter
	promTickTime     prometheus.Histogram
}

// NewMetrics creates the counters and registers the Prometheus collectors
// on the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		promTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_ticks_total",
			Help: "Total simulation ticks processed.",
		}),
		promAgents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_agents_processed_total",
			Help: "Total per-agent decisions dispatched.",
		}),
		promObservations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_observations_total",
			Help: "Total observations processed.",
		}),
		promTickTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arena_tick_duration_ms",
			Help:    "Wall time spent processing one tick, in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.promTicks, m.promAgents, m.promObservations, m.promTickTime)
	}
	return m
}

// RecordTick folds one completed tick into the counters.
func (m *Metrics) RecordTick(agents int, elapsedMS float64) {
	m.mu.Lock()
	m.totalTicks++
	m.totalAgentsProcessed += int64(agents)
	m.totalObservations += int64(agents)
	m.avgTickTimeMS = m.avgTickTimeMS*(1-tickTimeWeight) + elapsedMS*tickTimeWeight
	m.mu.Unlock()

	m.promTicks.Inc()
	m.promAgents.Add(float64(agents))
	m.promObservations.Add(float64(agents))
	m.promTickTime.Observe(elapsedMS)
}

// RecordObservation counts one single-agent /observe round trip.
func (m *Metrics) RecordObservation() {
	m.mu.Lock()
	m.totalObservations++
	m.mu.Unlock()
	m.promObservations.Inc()
}

// Snapshot returns the JSON-facing metrics map.
func (m *Metrics) Snapshot() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]any{
		"total_ticks":                  m.totalTicks,
		"total_agents_processed":       m.totalAgentsProcessed,
		"total_observations_processed": m.totalObservations,
		"avg_tick_time_ms":             m.avgTickTimeMS,
	}
}
