package scanner

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Frame outcomes.
const (
	outcomeProcessed = "processed"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
)

// Metrics counts what the controller does. A nil *Metrics records nothing.
type Metrics struct {
	Frames       *prometheus.CounterVec
	Scans        prometheus.Counter
	BindFailures prometheus.Counter
	State        prometheus.Gauge
}

// NewMetrics creates unregistered metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanbox_frames_total",
			Help: "Frames received by the controller by outcome.",
		}, []string{"outcome"}),
		Scans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanbox_scans_total",
			Help: "Payloads presented.",
		}),
		BindFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanbox_bind_failures_total",
			Help: "Failed attempts to start a camera session.",
		}),
		State: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scanbox_state",
			Help: "Current lifecycle state (0 idle .. 5 closed).",
		}),
	}
}

// Collectors returns all metrics for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Frames, m.Scans, m.BindFailures, m.State}
}

func (m *Metrics) frame(outcome string) {
	if m != nil {
		m.Frames.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) scan() {
	if m != nil {
		m.Scans.Inc()
	}
}

func (m *Metrics) bindFailure() {
	if m != nil {
		m.BindFailures.Inc()
	}
}

func (m *Metrics) state(s State) {
	if m != nil {
		m.State.Set(float64(s))
	}
}
