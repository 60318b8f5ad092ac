package models

import "time"

// Layer categorises a root cause of flakiness.
type Layer string

const (
	LayerTiming               Layer = "timing"
	LayerResourceContention   Layer = "resource_contention"
	LayerEnvironment          Layer = "environment"
	LayerExternalIntegration  Layer = "external_integration"
	LayerStateIsolation       Layer = "state_isolation"
	LayerNondeterministic     Layer = "nondeterministic"
	LayerAssertionSensitivity Layer = "assertion_sensitivity"
	LayerUnclassified         Layer = "unclassified"
)

// EvidenceRef points at the concrete observation backing a layer assignment.
type EvidenceRef struct {
	RunID     string      `json:"run_id"`
	TestID    string      `json:"test_id,omitempty"`
	Dimension DimensionID `json:"dimension,omitempty"`
	Attribute string      `json:"attribute,omitempty"`
	Note      string      `json:"note"`
}

// FlakyTestRecord is the per-test classifier verdict. Derived from a run set,
// never persisted independently of it.
type FlakyTestRecord struct {
	TestID           string        `json:"test_id"`
	ObservedStatuses []TestStatus  `json:"observed_statuses"`
	Layers           []Layer       `json:"layers"`
	Evidence         []EvidenceRef `json:"evidence,omitempty"`
}

// HasLayer reports whether the record carries the given layer.
func (r FlakyTestRecord) HasLayer(layer Layer) bool {
	for _, l := range r.Layers {
		if l == layer {
			return true
		}
	}
	return false
}

// ConfidenceAssessment summarises one dimension's sampled values over a run
// set. Sufficient is false when the sample count fell below the dimension's
// minimum, in which case the interval fields are unset.
type ConfidenceAssessment struct {
	Dimension     DimensionID `json:"dimension"`
	PointEstimate float64     `json:"point_estimate"`
	LowerBound    float64     `json:"lower_bound"`
	UpperBound    float64     `json:"upper_bound"`
	StdDev        float64     `json:"std_dev"`
	SampleSize    int         `json:"sample_size"`
	Sufficient    bool        `json:"sufficient"`
}

// CorrelationEntry records the Pearson coefficient between two dimensions.
type CorrelationEntry struct {
	DimensionA  DimensionID `json:"dimension_a"`
	DimensionB  DimensionID `json:"dimension_b"`
	Coefficient float64     `json:"coefficient"`
	Degenerate  bool        `json:"degenerate,omitempty"`
}

// ConfidenceLabel buckets an overall confidence score.
type ConfidenceLabel string

const (
	ConfidenceVeryHigh     ConfidenceLabel = "very_high"
	ConfidenceHigh         ConfidenceLabel = "high"
	ConfidenceModerate     ConfidenceLabel = "moderate"
	ConfidenceLow          ConfidenceLabel = "low"
	ConfidenceInconclusive ConfidenceLabel = "inconclusive"
)

// OverallConfidence carries the Bayesian diagnostic confidence.
type OverallConfidence struct {
	Score float64         `json:"score"`
	Label ConfidenceLabel `json:"label"`
}

// LayerSummary aggregates how often a layer was assigned across the run set.
type LayerSummary struct {
	Layer      Layer   `json:"layer"`
	TestCount  int     `json:"test_count"`
	Prevalence float64 `json:"prevalence"`
}

// TrendSummary describes the direction of run durations across the set.
type TrendSummary struct {
	Direction  string `json:"direction"`
	LongestRun int    `json:"longest_run"`
	Detected   bool   `json:"detected"`
}

// DiagnosisReport is the structured result handed to the rendering layer.
// DataGaps distinguishes degraded analysis from a genuine all-clear.
type DiagnosisReport struct {
	GeneratedAt          time.Time              `json:"generated_at"`
	RunCount             int                    `json:"run_count"`
	FlakyTests           []FlakyTestRecord      `json:"flaky_tests"`
	DimensionAssessments []ConfidenceAssessment `json:"dimension_assessments"`
	Correlations         []CorrelationEntry     `json:"correlations"`
	LayerSummaries       []LayerSummary         `json:"layer_summaries,omitempty"`
	DurationTrend        TrendSummary           `json:"duration_trend"`
	OverallConfidence    OverallConfidence      `json:"overall_confidence"`
	DataGaps             []string               `json:"data_gaps,omitempty"`
}
