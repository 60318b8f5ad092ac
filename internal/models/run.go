package models

import "time"

// Sample is a single timestamped measurement for one dimension. Immutable once
// recorded; only the sampler produces them.
type Sample struct {
	Timestamp time.Time   `json:"timestamp"`
	Dimension DimensionID `json:"dimension"`
	Value     float64     `json:"value"`
}

// TimeSeries is the ordered sample sequence for one dimension over one run.
// Append-only while the run is live, frozen once the RunResult is assembled.
type TimeSeries struct {
	Dimension DimensionID `json:"dimension"`
	Samples   []Sample    `json:"samples"`
}

// Append adds a sample, dropping it if it would duplicate the previous
// timestamp for this dimension.
func (ts *TimeSeries) Append(s Sample) {
	if n := len(ts.Samples); n > 0 && ts.Samples[n-1].Timestamp.Equal(s.Timestamp) {
		return
	}
	ts.Samples = append(ts.Samples, s)
}

// Values returns the raw measurement values in sample order.
func (ts TimeSeries) Values() []float64 {
	values := make([]float64, 0, len(ts.Samples))
	for _, s := range ts.Samples {
		values = append(values, s.Value)
	}
	return values
}

// Window returns the samples falling inside [start, end].
func (ts TimeSeries) Window(start, end time.Time) []Sample {
	window := make([]Sample, 0)
	for _, s := range ts.Samples {
		if s.Timestamp.Before(start) || s.Timestamp.After(end) {
			continue
		}
		window = append(window, s)
	}
	return window
}

// TestStatus is the outcome category for one test in one run.
type TestStatus string

const (
	StatusPass    TestStatus = "pass"
	StatusFail    TestStatus = "fail"
	StatusError   TestStatus = "error"
	StatusSkipped TestStatus = "skipped"
)

// TestOutcome records one test's result within a single run.
type TestOutcome struct {
	TestID           string        `json:"test_id"`
	Status           TestStatus    `json:"status"`
	Duration         time.Duration `json:"duration"`
	FailureSignature string        `json:"failure_signature,omitempty"`
}

// ExitStatus describes how the monitored process terminated.
type ExitStatus string

const (
	ExitSuccess ExitStatus = "success"
	ExitFailure ExitStatus = "failure"
	ExitTimeout ExitStatus = "timeout"
	ExitKilled  ExitStatus = "killed"
)

// RunResult is the complete record of one monitored execution. Assembled
// exactly once by the recorder and never mutated afterwards.
type RunResult struct {
	RunID       string                     `json:"run_id"`
	StartTime   time.Time                  `json:"start_time"`
	EndTime     time.Time                  `json:"end_time"`
	ExitStatus  ExitStatus                 `json:"exit_status"`
	ExitCode    int                        `json:"exit_code"`
	TimeSeries  map[DimensionID]TimeSeries `json:"time_series"`
	Outcomes    []TestOutcome              `json:"outcomes"`
	Environment map[string]float64         `json:"environment,omitempty"`
	RawOutput   string                     `json:"-"`
}

// Duration is the wall-clock span of the run.
func (r RunResult) Duration() time.Duration {
	if r.EndTime.Before(r.StartTime) {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// OutcomeFor returns the outcome for testID, if the run recorded one.
func (r RunResult) OutcomeFor(testID string) (TestOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.TestID == testID {
			return o, true
		}
	}
	return TestOutcome{}, false
}
