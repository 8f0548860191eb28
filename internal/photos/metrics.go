package photos

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tendant/island-photos/pkg/schema"
)

const (
	outcomeDone       = "done"
	outcomeFailed     = "failed"
	outcomeSuperseded = "superseded"
)

// Metrics are the pipeline's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Runs     *prometheus.CounterVec
	Failures *prometheus.CounterVec
	Dropped  prometheus.Counter
	Duration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "island_photos",
			Subsystem: "thumbnail",
			Name:      "runs_total",
			Help:      "Thumbnail jobs by outcome.",
		}, []string{"outcome"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "island_photos",
			Subsystem: "thumbnail",
			Name:      "failures_total",
			Help:      "Failed thumbnail jobs by the stage they failed in.",
		}, []string{"stage"}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "island_photos",
			Subsystem: "thumbnail",
			Name:      "queue_dropped_total",
			Help:      "Jobs rejected because the queue was full or closed.",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "island_photos",
			Subsystem: "thumbnail",
			Name:      "duration_seconds",
			Help:      "Wall time of thumbnail jobs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Runs, m.Failures, m.Dropped, m.Duration)
	}
	return m
}

func (m *Metrics) observe(outcome string, stage schema.ProcessingStage, d time.Duration) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(outcome).Inc()
	if outcome == outcomeFailed {
		m.Failures.WithLabelValues(string(stage)).Inc()
	}
	m.Duration.Observe(d.Seconds())
}

func (m *Metrics) dropped() {
	if m == nil {
		return
	}
	m.Dropped.Inc()
}
