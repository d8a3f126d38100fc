// Package metrics exposes Prometheus instrumentation for the executor
// and the session collector.
//
// A Recorder is registered against a caller-supplied registry rather
// than the global default, so every session or test can own an
// isolated set of series. All methods are no-ops on a nil *Recorder.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tally"

// Result label values for tally_superblocks_total.
const (
	ResultPass = "pass"
	ResultFail = "fail"
)

// Recorder holds the tally metric series.
type Recorder struct {
	superblocks *prometheus.CounterVec
	duration    prometheus.Histogram
	steals      prometheus.Counter
	flushes     prometheus.Counter
	violations  *prometheus.CounterVec
}

// NewRecorder creates and registers the tally series on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		// Labels: result (pass, fail)
		superblocks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "superblocks_total",
			Help:      "Superblocks executed, by result",
		}, []string{"result"}),

		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "superblock_duration_seconds",
			Help:      "Wall time spent running one superblock",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),

		steals: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steals_total",
			Help:      "Superblocks taken from another worker's queue",
		}),

		flushes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Counter flushes merged into the session aggregate",
		}),

		// Labels: kind (violation variant), action (stop, log_and_continue)
		violations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_total",
			Help:      "Coverage violations recorded, by kind and action",
		}, []string{"kind", "action"}),
	}
}

// ObserveSuperblock records one executed superblock.
func (r *Recorder) ObserveSuperblock(success bool, elapsed time.Duration) {
	if r == nil {
		return
	}
	result := ResultPass
	if !success {
		result = ResultFail
	}
	r.superblocks.WithLabelValues(result).Inc()
	r.duration.Observe(elapsed.Seconds())
}

// ObserveSteal records one successful steal.
func (r *Recorder) ObserveSteal() {
	if r == nil {
		return
	}
	r.steals.Inc()
}

// ObserveFlush records one merged counter flush.
func (r *Recorder) ObserveFlush() {
	if r == nil {
		return
	}
	r.flushes.Inc()
}

// ObserveViolation records one violation.
func (r *Recorder) ObserveViolation(kind, action string) {
	if r == nil {
		return
	}
	r.violations.WithLabelValues(kind, action).Inc()
}
