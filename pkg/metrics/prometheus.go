package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	reports     *prometheus.CounterVec
	conflicts   prometheus.Gauge
	decisions   *prometheus.CounterVec
	dataQuality *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	trains      prometheus.Gauge
	latency     *prometheus.HistogramVec
}

var (
	defaultRecorder *Recorder
	defaultOnce     sync.Once
)

// New returns the process-wide recorder registered on the default registry.
func New() *Recorder {
	defaultOnce.Do(func() {
		defaultRecorder = NewWithRegistry(prometheus.DefaultRegisterer)
	})
	return defaultRecorder
}

// NewWithRegistry registers a recorder on reg. Tests pass a fresh
// prometheus.NewRegistry().
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		reports: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trainctl_status_reports_total",
				Help: "Status reports by result (accepted, stale, invalid)",
			},
			[]string{"result"},
		),
		conflicts: f.NewGauge(prometheus.GaugeOpts{
			Name: "trainctl_conflicts_current",
			Help: "Conflicts found by the last detection pass",
		}),
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trainctl_decisions_total",
				Help: "Decisions issued by action",
			},
			[]string{"action"},
		),
		dataQuality: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trainctl_data_quality_issues_total",
				Help: "Trains excluded from detection by reason",
			},
			[]string{"reason"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trainctl_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		trains: f.NewGauge(prometheus.GaugeOpts{
			Name: "trainctl_trains_tracked",
			Help: "Trains currently held in the state store",
		}),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trainctl_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordReport(result string) {
	r.reports.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordConflicts(n int) {
	r.conflicts.Set(float64(n))
}

func (r *Recorder) RecordDecision(action string) {
	r.decisions.WithLabelValues(action).Inc()
}

func (r *Recorder) RecordDataQuality(reason string) {
	r.dataQuality.WithLabelValues(reason).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) SetTrains(n int) {
	r.trains.Set(float64(n))
}
