package stats

import (
	"errors"
	"math"
	"testing"

	"github.com/flakewatch/flakewatch/internal/models"
)

func TestConfidenceIntervalBoundsContainMean(t *testing.T) {
	values := []float64{10, 12, 9, 11, 13, 10, 12}

	assessment, err := ConfidenceInterval(models.DimensionCPUUtilization, values, 5)
	if err != nil {
		t.Fatalf("confidence interval: %v", err)
	}
	if !assessment.Sufficient {
		t.Fatalf("expected sufficient assessment")
	}
	if assessment.LowerBound > assessment.PointEstimate || assessment.PointEstimate > assessment.UpperBound {
		t.Fatalf("mean %f outside interval [%f, %f]", assessment.PointEstimate, assessment.LowerBound, assessment.UpperBound)
	}
	if assessment.SampleSize != len(values) {
		t.Fatalf("expected sample size %d, got %d", len(values), assessment.SampleSize)
	}
}

func TestConfidenceIntervalEmptyInput(t *testing.T) {
	_, err := ConfidenceInterval(models.DimensionCPUUtilization, nil, 5)
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestConfidenceIntervalInsufficientData(t *testing.T) {
	assessment, err := ConfidenceInterval(models.DimensionMemoryUtilization, []float64{1, 2}, 5)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if assessment.Sufficient {
		t.Fatalf("insufficient assessment must not be marked sufficient")
	}
	if assessment.SampleSize != 2 {
		t.Fatalf("expected reported sample size 2, got %d", assessment.SampleSize)
	}
}

func TestCorrelationSymmetry(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	ys := []float64{2, 4, 5, 4, 6}

	ab, err := Correlation(xs, ys)
	if err != nil {
		t.Fatalf("correlation: %v", err)
	}
	ba, err := Correlation(ys, xs)
	if err != nil {
		t.Fatalf("correlation: %v", err)
	}
	if math.Abs(ab.Coefficient-ba.Coefficient) > 1e-12 {
		t.Fatalf("correlation not symmetric: %f vs %f", ab.Coefficient, ba.Coefficient)
	}
}

func TestCorrelationSelf(t *testing.T) {
	xs := []float64{3, 1, 4, 1, 5, 9, 2, 6}

	result, err := Correlation(xs, xs)
	if err != nil {
		t.Fatalf("correlation: %v", err)
	}
	if math.Abs(result.Coefficient-1) > 1e-9 {
		t.Fatalf("self correlation expected 1, got %f", result.Coefficient)
	}
}

func TestCorrelationConstantSeries(t *testing.T) {
	result, err := Correlation([]float64{5, 5, 5, 5}, []float64{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("correlation: %v", err)
	}
	if !result.Degenerate {
		t.Fatalf("expected degenerate flag for constant series")
	}
	if result.Coefficient != 0 {
		t.Fatalf("expected coefficient 0, got %f", result.Coefficient)
	}
}

func TestCorrelationLengthMismatch(t *testing.T) {
	_, err := Correlation([]float64{1, 2, 3}, []float64{1, 2})
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestSignificanceTestDetectsShift(t *testing.T) {
	before := []float64{100, 102, 98, 101, 99}
	after := []float64{150, 148, 152, 151, 149}

	result, err := SignificanceTest(before, after)
	if err != nil {
		t.Fatalf("significance test: %v", err)
	}
	if result.TStatistic <= 0 {
		t.Fatalf("expected positive t statistic for upward shift, got %f", result.TStatistic)
	}
	if result.DegreesOfFreedom != 8 {
		t.Fatalf("expected 8 degrees of freedom, got %d", result.DegreesOfFreedom)
	}
}

func TestSignificanceTestIdenticalConstantGroups(t *testing.T) {
	result, err := SignificanceTest([]float64{5, 5, 5}, []float64{5, 5})
	if err != nil {
		t.Fatalf("significance test: %v", err)
	}
	if result.TStatistic != 0 {
		t.Fatalf("expected zero t statistic, got %f", result.TStatistic)
	}
}

func TestSignificanceTestRejectsEmpty(t *testing.T) {
	if _, err := SignificanceTest(nil, []float64{1, 2}); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestTrendDetectIncreasing(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6}

	result, err := TrendDetect(values, 3)
	if err != nil {
		t.Fatalf("trend detect: %v", err)
	}
	if !result.Detected || result.Direction != TrendIncreasing {
		t.Fatalf("expected detected increasing trend, got %+v", result)
	}
	if result.LongestRun != 6 {
		t.Fatalf("expected run of 6, got %d", result.LongestRun)
	}
}

func TestTrendDetectStable(t *testing.T) {
	values := []float64{5, 6, 5, 6, 5, 6}

	result, err := TrendDetect(values, 3)
	if err != nil {
		t.Fatalf("trend detect: %v", err)
	}
	if result.Detected || result.Direction != TrendStable {
		t.Fatalf("expected stable trend, got %+v", result)
	}
}

func TestBayesianConfidenceStrongEvidence(t *testing.T) {
	score, err := BayesianConfidence(0.5, 0.8, 0.9, 0.9)
	if err != nil {
		t.Fatalf("bayesian confidence: %v", err)
	}
	if score.Score < 0.75 {
		t.Fatalf("expected score >= 0.75, got %f", score.Score)
	}
	if score.Label != models.ConfidenceHigh && score.Label != models.ConfidenceVeryHigh {
		t.Fatalf("expected high or very_high label, got %s", score.Label)
	}
}

func TestBayesianConfidenceContradictingEvidence(t *testing.T) {
	score, err := BayesianConfidence(0.5, -0.8, 0.9, 1.0)
	if err != nil {
		t.Fatalf("bayesian confidence: %v", err)
	}
	if score.Score >= 0.5 {
		t.Fatalf("expected score below prior, got %f", score.Score)
	}
}

func TestBayesianConfidenceRejectsBadPrior(t *testing.T) {
	if _, err := BayesianConfidence(0, 0.5, 0.5, 0.5); err == nil {
		t.Fatalf("expected error for prior of 0")
	}
	if _, err := BayesianConfidence(1, 0.5, 0.5, 0.5); err == nil {
		t.Fatalf("expected error for prior of 1")
	}
}

func TestLabelForScoreBuckets(t *testing.T) {
	cases := []struct {
		score float64
		label models.ConfidenceLabel
	}{
		{0.95, models.ConfidenceVeryHigh},
		{0.8, models.ConfidenceHigh},
		{0.65, models.ConfidenceModerate},
		{0.45, models.ConfidenceLow},
		{0.2, models.ConfidenceInconclusive},
	}
	for _, tc := range cases {
		if got := LabelForScore(tc.score); got != tc.label {
			t.Fatalf("score %f: expected %s, got %s", tc.score, tc.label, got)
		}
	}
}
