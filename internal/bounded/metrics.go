// SPDX-License-Identifier: MPL-2.0

package bounded

import (
	"errors"
	"time"

	"github.com/datafy/datafy/pkg/artifact"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts bounded call outcomes and records their duration.
type Metrics struct {
	outcomes *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the executor collectors with reg. Collectors that are
// already registered are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	outcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "datafy",
			Subsystem: "bounded",
			Name:      "outcomes_total",
			Help:      "Bounded fetch calls by execution mode, outcome status and failure kind.",
		},
		[]string{"mode", "status", "kind"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "datafy",
			Subsystem: "bounded",
			Name:      "call_duration_seconds",
			Help:      "Wall-clock duration of bounded fetch calls.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"mode", "status"},
	)

	if err := reg.Register(outcomes); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		outcomes = already.ExistingCollector.(*prometheus.CounterVec)
	}
	if err := reg.Register(duration); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		duration = already.ExistingCollector.(*prometheus.HistogramVec)
	}
	return &Metrics{outcomes: outcomes, duration: duration}, nil
}

// Observe records one finished call.
func (m *Metrics) Observe(mode Mode, out artifact.Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(string(mode), string(out.Status), string(out.Kind)).Inc()
	m.duration.WithLabelValues(string(mode), string(out.Status)).Observe(elapsed.Seconds())
}
