package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors a Machine updates.
// One Metrics may be shared by many machines; series are labelled by
// machine name.
type Metrics struct {
	dispatches  *prometheus.CounterVec
	transitions *prometheus.CounterVec
	spiesFired  *prometheus.CounterVec
	errors      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statewire",
			Subsystem: "machine",
			Name:      "dispatch_total",
			Help:      "Dispatch cycles by kind and outcome.",
		}, []string{"machine", "kind", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statewire",
			Subsystem: "machine",
			Name:      "transitions_total",
			Help:      "State changes by source and target state.",
		}, []string{"machine", "from", "to"}),
		spiesFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statewire",
			Subsystem: "machine",
			Name:      "spies_fired_total",
			Help:      "Spy connections fired.",
		}, []string{"machine"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statewire",
			Subsystem: "machine",
			Name:      "errors_total",
			Help:      "Runtime errors by code.",
		}, []string{"machine", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "statewire",
			Subsystem: "machine",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent in one dispatch cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"machine"}),
	}

	if reg != nil {
		reg.MustRegister(m.dispatches, m.transitions, m.spiesFired, m.errors, m.duration)
	}
	return m
}

// Dispatches returns the dispatch counter, for tests and exporters.
func (m *Metrics) Dispatches() *prometheus.CounterVec { return m.dispatches }

// Transitions returns the transition counter.
func (m *Metrics) Transitions() *prometheus.CounterVec { return m.transitions }

// SpiesFired returns the spy counter.
func (m *Metrics) SpiesFired() *prometheus.CounterVec { return m.spiesFired }

// Errors returns the error counter.
func (m *Metrics) Errors() *prometheus.CounterVec { return m.errors }
