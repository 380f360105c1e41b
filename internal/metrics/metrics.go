// Package metrics exposes the notifier's prometheus instruments.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Call outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeFailed      = "failed"
	OutcomeUnavailable = "unavailable"
)

// Metrics groups the counters the dispatcher and config loader update. All
// methods are safe on a nil receiver.
type Metrics struct {
	dispatches   prometheus.Counter
	calls        *prometheus.CounterVec
	skipped      *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	reloads      *prometheus.CounterVec
}

// New registers the instruments on reg. Pass prometheus.DefaultRegisterer for
// the process-wide registry, or a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		dispatches: f.NewCounter(prometheus.CounterOpts{
			Name: "uninotifier_dispatch_total",
			Help: "Send requests processed.",
		}),
		calls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "uninotifier_invocation_total",
			Help: "Invocations issued by mechanism domain, kind and outcome.",
		}, []string{"domain", "kind", "outcome"}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "uninotifier_destination_skipped_total",
			Help: "Destinations or recipients skipped, by reason.",
		}, []string{"reason"}),
		callDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "uninotifier_invocation_duration_seconds",
			Help:    "Duration of individual invocations.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"domain"}),
		reloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "uninotifier_config_reload_total",
			Help: "Config reload attempts by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) Dispatch() {
	if m == nil {
		return
	}
	m.dispatches.Inc()
}

// Call records one finished invocation.
func (m *Metrics) Call(domain, kind, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(domain, kind, outcome).Inc()
	m.callDuration.WithLabelValues(domain).Observe(took.Seconds())
}

func (m *Metrics) Skipped(reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) Reload(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "rejected"
	}
	m.reloads.WithLabelValues(result).Inc()
}
