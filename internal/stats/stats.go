// Package stats implements the pure statistical primitives backing the
// diagnosis pipeline: confidence intervals, Pearson correlation, two-sample
// significance tests, trend detection, and Bayesian confidence scoring.
//
// Every function validates its input and returns a typed error instead of
// propagating NaN or panicking on degenerate data.
package stats

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/flakewatch/flakewatch/internal/models"
)

var (
	// ErrEmptyInput signals an empty value sequence.
	ErrEmptyInput = errors.New("stats: empty input")
	// ErrInsufficientData signals a sample below the configured minimum size.
	ErrInsufficientData = errors.New("stats: insufficient data")
	// ErrLengthMismatch signals paired sequences of different lengths.
	ErrLengthMismatch = errors.New("stats: paired inputs differ in length")
)

// The interval uses a fixed 1.96 z-score (95%, normal approximation) for all
// sample sizes rather than a small-sample t correction.
const zScore95 = 1.96

// ConfidenceInterval computes mean, unbiased (n-1) variance, and the 95%
// normal-approximation interval for values. It returns ErrInsufficientData
// when fewer than minSampleSize values are supplied; minSampleSize values
// below 2 are raised to 2 so a standard deviation always exists.
func ConfidenceInterval(dimension models.DimensionID, values []float64, minSampleSize int) (models.ConfidenceAssessment, error) {
	if len(values) == 0 {
		return models.ConfidenceAssessment{Dimension: dimension}, ErrEmptyInput
	}
	if minSampleSize < 2 {
		minSampleSize = 2
	}
	if len(values) < minSampleSize {
		return models.ConfidenceAssessment{
			Dimension:  dimension,
			SampleSize: len(values),
		}, fmt.Errorf("%w: have %d samples, need %d", ErrInsufficientData, len(values), minSampleSize)
	}

	mean := stat.Mean(values, nil)
	variance := stat.Variance(values, nil)
	stdDev := math.Sqrt(variance)
	margin := zScore95 * stdDev / math.Sqrt(float64(len(values)))

	return models.ConfidenceAssessment{
		Dimension:     dimension,
		PointEstimate: mean,
		LowerBound:    mean - margin,
		UpperBound:    mean + margin,
		StdDev:        stdDev,
		SampleSize:    len(values),
		Sufficient:    true,
	}, nil
}

// CorrelationResult carries a Pearson coefficient. Degenerate is set when
// either series is constant, in which case the coefficient is reported as 0
// rather than dividing by zero.
type CorrelationResult struct {
	Coefficient float64
	Degenerate  bool
}

// Correlation computes the Pearson product-moment correlation of two paired
// sequences.
func Correlation(xs, ys []float64) (CorrelationResult, error) {
	if len(xs) == 0 || len(ys) == 0 {
		return CorrelationResult{}, ErrEmptyInput
	}
	if len(xs) != len(ys) {
		return CorrelationResult{}, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(xs), len(ys))
	}

	if math.Sqrt(stat.Variance(xs, nil)) == 0 || math.Sqrt(stat.Variance(ys, nil)) == 0 {
		return CorrelationResult{Coefficient: 0, Degenerate: true}, nil
	}

	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) {
		return CorrelationResult{Coefficient: 0, Degenerate: true}, nil
	}
	if r > 1 {
		r = 1
	}
	if r < -1 {
		r = -1
	}
	return CorrelationResult{Coefficient: r}, nil
}

// TTestResult carries a pooled-variance two-sample t statistic. Degrees of
// freedom is n1+n2-2; Welch's correction is deliberately not applied, so the
// statistic assumes comparable variances. Significance lookup against a
// t-table is the caller's concern.
type TTestResult struct {
	TStatistic       float64
	DegreesOfFreedom int
}

// SignificanceTest computes the pooled two-sample t statistic for a
// before/after comparison. Each group needs at least two values.
func SignificanceTest(before, after []float64) (TTestResult, error) {
	if len(before) == 0 || len(after) == 0 {
		return TTestResult{}, ErrEmptyInput
	}
	if len(before) < 2 || len(after) < 2 {
		return TTestResult{}, fmt.Errorf("%w: need at least 2 values per group", ErrInsufficientData)
	}

	n1 := float64(len(before))
	n2 := float64(len(after))
	mean1 := stat.Mean(before, nil)
	mean2 := stat.Mean(after, nil)
	var1 := stat.Variance(before, nil)
	var2 := stat.Variance(after, nil)

	pooled := ((n1-1)*var1 + (n2-1)*var2) / (n1 + n2 - 2)
	if pooled == 0 {
		if mean1 == mean2 {
			return TTestResult{TStatistic: 0, DegreesOfFreedom: int(n1 + n2 - 2)}, nil
		}
		return TTestResult{}, fmt.Errorf("stats: zero pooled variance with unequal means")
	}

	t := (mean2 - mean1) / math.Sqrt(pooled*(1/n1+1/n2))
	return TTestResult{TStatistic: t, DegreesOfFreedom: int(n1 + n2 - 2)}, nil
}

// TrendResult describes the monotonic behaviour of a sequence.
type TrendResult struct {
	Direction  string
	LongestRun int
	Detected   bool
}

const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// TrendDetect finds the longest monotonic run in the sequence and combines it
// with the sign of a windowed moving-average slope to classify the overall
// direction. A trend is detected when the longest run reaches minRunLength.
func TrendDetect(values []float64, minRunLength int) (TrendResult, error) {
	if len(values) == 0 {
		return TrendResult{}, ErrEmptyInput
	}
	if minRunLength < 2 {
		minRunLength = 2
	}
	if len(values) < 2 {
		return TrendResult{Direction: TrendStable, LongestRun: 1}, nil
	}

	longestUp, longestDown := monotonicRuns(values)
	slope := movingAverageSlope(values)

	result := TrendResult{Direction: TrendStable, LongestRun: maxInt(longestUp, longestDown)}
	switch {
	case longestUp >= minRunLength && slope > 0:
		result.Direction = TrendIncreasing
		result.LongestRun = longestUp
		result.Detected = true
	case longestDown >= minRunLength && slope < 0:
		result.Direction = TrendDecreasing
		result.LongestRun = longestDown
		result.Detected = true
	case longestUp >= minRunLength:
		result.Direction = TrendIncreasing
		result.LongestRun = longestUp
		result.Detected = true
	case longestDown >= minRunLength:
		result.Direction = TrendDecreasing
		result.LongestRun = longestDown
		result.Detected = true
	}
	return result, nil
}

// monotonicRuns returns the longest strictly increasing and strictly
// decreasing run lengths, counted in elements.
func monotonicRuns(values []float64) (up, down int) {
	curUp, curDown := 1, 1
	up, down = 1, 1
	for i := 1; i < len(values); i++ {
		switch {
		case values[i] > values[i-1]:
			curUp++
			curDown = 1
		case values[i] < values[i-1]:
			curDown++
			curUp = 1
		default:
			curUp = 1
			curDown = 1
		}
		if curUp > up {
			up = curUp
		}
		if curDown > down {
			down = curDown
		}
	}
	return up, down
}

// movingAverageSlope compares the first and second half window means.
func movingAverageSlope(values []float64) float64 {
	window := len(values) / 2
	if window == 0 {
		return 0
	}
	first := stat.Mean(values[:window], nil)
	second := stat.Mean(values[len(values)-window:], nil)
	return second - first
}

// BayesianScore is a posterior probability estimate with its qualitative
// label.
type BayesianScore struct {
	Score float64
	Label models.ConfidenceLabel
}

// BayesianConfidence updates prior belief with new evidence. Evidence strength
// in [-1,1] and quality in [0,1] combine into a likelihood ratio applied via
// Bayes' rule; consistency in [0,1] then scales the posterior toward the
// prior when cross-checks disagree.
func BayesianConfidence(prior, evidenceStrength, evidenceQuality, consistency float64) (BayesianScore, error) {
	if prior <= 0 || prior >= 1 {
		return BayesianScore{}, fmt.Errorf("stats: prior %v outside (0, 1)", prior)
	}
	if evidenceStrength < -1 || evidenceStrength > 1 {
		return BayesianScore{}, fmt.Errorf("stats: evidence strength %v outside [-1, 1]", evidenceStrength)
	}
	if evidenceQuality < 0 || evidenceQuality > 1 {
		return BayesianScore{}, fmt.Errorf("stats: evidence quality %v outside [0, 1]", evidenceQuality)
	}
	if consistency < 0 || consistency > 1 {
		return BayesianScore{}, fmt.Errorf("stats: consistency %v outside [0, 1]", consistency)
	}

	effective := evidenceStrength * evidenceQuality
	if effective > 0.99 {
		effective = 0.99
	}
	if effective < -0.99 {
		effective = -0.99
	}

	likelihoodRatio := (1 + effective) / (1 - effective)
	priorOdds := prior / (1 - prior)
	posteriorOdds := priorOdds * likelihoodRatio
	posterior := posteriorOdds / (1 + posteriorOdds)

	// Low consistency pulls the posterior back toward the prior.
	score := prior + (posterior-prior)*consistency
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return BayesianScore{Score: score, Label: LabelForScore(score)}, nil
}

// LabelForScore buckets a confidence score into its qualitative label.
func LabelForScore(score float64) models.ConfidenceLabel {
	switch {
	case score >= 0.9:
		return models.ConfidenceVeryHigh
	case score >= 0.75:
		return models.ConfidenceHigh
	case score >= 0.6:
		return models.ConfidenceModerate
	case score >= 0.4:
		return models.ConfidenceLow
	default:
		return models.ConfidenceInconclusive
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
