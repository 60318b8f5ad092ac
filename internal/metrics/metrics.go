package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels runs and diagnoses that completed.
	OutcomeSuccess = "success"
	// OutcomeError labels runs and diagnoses that failed.
	OutcomeError = "error"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flakewatch",
			Name:      "runs_total",
			Help:      "Total number of monitored runs executed, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	samplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flakewatch",
			Name:      "samples_total",
			Help:      "Total number of resource samples collected, partitioned by dimension.",
		},
		[]string{"dimension"},
	)

	sampleReadFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flakewatch",
			Name:      "sample_read_failures_total",
			Help:      "Metric reads that failed and left a gap, partitioned by dimension.",
		},
		[]string{"dimension"},
	)

	diagnosisDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "flakewatch",
			Name:      "diagnosis_seconds",
			Help:      "Diagnosis latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8},
		},
	)
)

// Register attaches flakewatch collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		runsTotal,
		samplesTotal,
		sampleReadFailuresTotal,
		diagnosisDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRun records a completed run with its outcome label.
func ObserveRun(outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	runsTotal.WithLabelValues(label).Inc()
}

// ObserveSample counts one collected sample for a dimension.
func ObserveSample(dimension string) {
	samplesTotal.WithLabelValues(dimension).Inc()
}

// ObserveReadFailure counts one failed metric read for a dimension.
func ObserveReadFailure(dimension string) {
	sampleReadFailuresTotal.WithLabelValues(dimension).Inc()
}

// ObserveDiagnosis records a diagnosis duration.
func ObserveDiagnosis(duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	diagnosisDurationSeconds.Observe(duration.Seconds())
}
