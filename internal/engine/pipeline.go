// Package engine orchestrates the diagnosis flow: statistical assessment of
// every sampled dimension, flakiness classification across the run set, and
// the Bayesian overall confidence that qualifies the result.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flakewatch/flakewatch/internal/classify"
	"github.com/flakewatch/flakewatch/internal/metrics"
	"github.com/flakewatch/flakewatch/internal/models"
	"github.com/flakewatch/flakewatch/internal/stats"
	"github.com/flakewatch/flakewatch/internal/utils"
)

// FlakinessClassifier is the classification capability the pipeline drives.
type FlakinessClassifier interface {
	Classify(runs []models.RunResult) ([]models.FlakyTestRecord, error)
}

// AnalysisConfig tunes the statistical side of a diagnosis.
type AnalysisConfig struct {
	Prior             float64
	TrendMinRunLength int
	// MinCorrelationSamples guards the pairwise correlations; pairs with
	// fewer joint samples are skipped rather than reported on thin data.
	MinCorrelationSamples int
}

// Pipeline computes a DiagnosisReport from a set of recorded runs.
type Pipeline struct {
	logger     *slog.Logger
	classifier FlakinessClassifier
	dimensions map[models.DimensionID]models.Dimension
	cfg        AnalysisConfig
	latencies  *utils.LatencyTracker
}

// NewPipeline constructs a diagnosis pipeline.
func NewPipeline(logger *slog.Logger, classifier FlakinessClassifier, dimensions map[models.DimensionID]models.Dimension, cfg AnalysisConfig) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if dimensions == nil {
		dimensions = models.DefaultDimensions()
	}
	if cfg.Prior <= 0 || cfg.Prior >= 1 {
		cfg.Prior = 0.5
	}
	if cfg.TrendMinRunLength < 2 {
		cfg.TrendMinRunLength = 3
	}
	if cfg.MinCorrelationSamples < 3 {
		cfg.MinCorrelationSamples = 3
	}
	return &Pipeline{
		logger:     logger,
		classifier: classifier,
		dimensions: dimensions,
		cfg:        cfg,
		latencies:  utils.NewLatencyTracker(256),
	}
}

// Diagnose recomputes every derived record from scratch for the supplied
// runs. Calling with zero runs is a contract violation and fails fast; every
// degraded condition inside a valid call surfaces as a DataGaps entry so the
// report is never mistaken for a clean bill of health.
func (p *Pipeline) Diagnose(ctx context.Context, runs []models.RunResult) (models.DiagnosisReport, error) {
	if len(runs) == 0 {
		return models.DiagnosisReport{}, fmt.Errorf("engine: diagnosis requires at least one run")
	}

	start := time.Now()

	gaps := make([]string, 0)
	values := p.dimensionValues(runs)

	assessments, assessGaps := p.assessDimensions(ctx, values)
	gaps = append(gaps, assessGaps...)

	correlations := p.correlate(ctx, values)

	var records []models.FlakyTestRecord
	if len(runs) >= 2 {
		var err error
		records, err = p.classifier.Classify(runs)
		if err != nil {
			gaps = append(gaps, fmt.Sprintf("classification unavailable: %v", err))
			p.logger.Warn("classification failed, report degrades to statistics only", slog.Any("error", err))
		}
	} else {
		gaps = append(gaps, "classification skipped: flakiness needs at least 2 runs")
	}

	trend := p.durationTrend(runs)

	overall, err := p.overallConfidence(runs, records, assessments, gaps)
	if err != nil {
		p.logger.Warn("confidence scoring failed", slog.Any("error", err))
		overall = models.OverallConfidence{Score: 0, Label: models.ConfidenceInconclusive}
		gaps = append(gaps, fmt.Sprintf("confidence scoring unavailable: %v", err))
	}

	report := Assemble(p.logger, AssembleInput{
		RunCount:       len(runs),
		Records:        records,
		Assessments:    assessments,
		Correlations:   correlations,
		LayerSummaries: classify.Summarize(records),
		DurationTrend:  trend,
		Overall:        overall,
		DataGaps:       gaps,
	})

	elapsed := time.Since(start)
	metrics.ObserveDiagnosis(elapsed)
	p.latencies.Observe(elapsed)
	if count := p.latencies.Count(); count >= 20 && count%20 == 0 {
		p.logger.Info("diagnosis latency", slog.Duration("p95", p.latencies.Percentile(95)), slog.Int("samples", count))
	}

	return report, nil
}

// dimensionValues concatenates each dimension's sampled values across all
// runs, in run order. Execution time is synthesised from run durations since
// it is measured per run, not per tick.
func (p *Pipeline) dimensionValues(runs []models.RunResult) map[models.DimensionID][]float64 {
	values := make(map[models.DimensionID][]float64)
	for _, run := range runs {
		for dim, series := range run.TimeSeries {
			values[dim] = append(values[dim], series.Values()...)
		}
	}
	durations := make([]float64, 0, len(runs))
	for _, run := range runs {
		durations = append(durations, run.Duration().Seconds())
	}
	values[models.DimensionExecutionTime] = durations
	return values
}

// assessDimensions computes one confidence assessment per dimension with
// data, in parallel. Insufficient samples produce a non-sufficient
// assessment plus a data gap, never a fabricated interval.
func (p *Pipeline) assessDimensions(ctx context.Context, values map[models.DimensionID][]float64) ([]models.ConfidenceAssessment, []string) {
	dims := sortedDimensions(values)

	assessments := make([]models.ConfidenceAssessment, len(dims))
	gapFlags := make([]string, len(dims))

	g, _ := errgroup.WithContext(ctx)
	for i, dim := range dims {
		i, dim := i, dim
		g.Go(func() error {
			minSize := 2
			if d, ok := p.dimensions[dim]; ok {
				minSize = d.MinSampleSize
			}
			assessment, err := stats.ConfidenceInterval(dim, values[dim], minSize)
			assessments[i] = assessment
			if err != nil {
				gapFlags[i] = fmt.Sprintf("%s: %v", dim, err)
			}
			return nil
		})
	}
	// Workers only write their own slot and never return errors.
	_ = g.Wait()

	gaps := make([]string, 0)
	for _, flag := range gapFlags {
		if flag != "" {
			gaps = append(gaps, flag)
		}
	}
	return assessments, gaps
}

// correlate computes pairwise Pearson coefficients between dimensions,
// trimming each pair to its joint sample count.
func (p *Pipeline) correlate(ctx context.Context, values map[models.DimensionID][]float64) []models.CorrelationEntry {
	dims := sortedDimensions(values)

	type pair struct{ a, b models.DimensionID }
	pairs := make([]pair, 0)
	for i := 0; i < len(dims); i++ {
		for j := i + 1; j < len(dims); j++ {
			pairs = append(pairs, pair{dims[i], dims[j]})
		}
	}

	entries := make([]models.CorrelationEntry, len(pairs))
	valid := make([]bool, len(pairs))

	g, _ := errgroup.WithContext(ctx)
	for i, pr := range pairs {
		i, pr := i, pr
		g.Go(func() error {
			xs, ys := values[pr.a], values[pr.b]
			n := len(xs)
			if len(ys) < n {
				n = len(ys)
			}
			if n < p.cfg.MinCorrelationSamples {
				return nil
			}
			result, err := stats.Correlation(xs[:n], ys[:n])
			if err != nil {
				return nil
			}
			entries[i] = models.CorrelationEntry{
				DimensionA:  pr.a,
				DimensionB:  pr.b,
				Coefficient: result.Coefficient,
				Degenerate:  result.Degenerate,
			}
			valid[i] = true
			return nil
		})
	}
	_ = g.Wait()

	correlations := make([]models.CorrelationEntry, 0, len(entries))
	for i, entry := range entries {
		if valid[i] {
			correlations = append(correlations, entry)
		}
	}
	return correlations
}

func (p *Pipeline) durationTrend(runs []models.RunResult) models.TrendSummary {
	durations := make([]float64, 0, len(runs))
	for _, run := range runs {
		durations = append(durations, run.Duration().Seconds())
	}
	result, err := stats.TrendDetect(durations, p.cfg.TrendMinRunLength)
	if err != nil {
		return models.TrendSummary{Direction: stats.TrendStable}
	}
	return models.TrendSummary{
		Direction:  result.Direction,
		LongestRun: result.LongestRun,
		Detected:   result.Detected,
	}
}

// overallConfidence folds classification coverage, sample sufficiency, and
// run-to-run agreement into a single Bayesian score.
func (p *Pipeline) overallConfidence(runs []models.RunResult, records []models.FlakyTestRecord, assessments []models.ConfidenceAssessment, gaps []string) (models.OverallConfidence, error) {
	strength := evidenceStrength(records, len(runs))
	quality := evidenceQuality(assessments)
	consistency := evidenceConsistency(records, gaps)

	score, err := stats.BayesianConfidence(p.cfg.Prior, strength, quality, consistency)
	if err != nil {
		return models.OverallConfidence{}, err
	}
	return models.OverallConfidence{Score: score.Score, Label: score.Label}, nil
}

// evidenceStrength measures how much of the observed flakiness the rule set
// could actually explain. No flaky tests at all is strong evidence for the
// clean verdict when multiple runs back it.
func evidenceStrength(records []models.FlakyTestRecord, runCount int) float64 {
	if len(records) == 0 {
		if runCount >= 3 {
			return 0.8
		}
		return 0.3
	}
	classified := 0
	for _, record := range records {
		if !record.HasLayer(models.LayerUnclassified) {
			classified++
		}
	}
	return float64(classified) / float64(len(records))
}

// evidenceQuality is the fraction of dimensions whose sample counts
// supported a real interval.
func evidenceQuality(assessments []models.ConfidenceAssessment) float64 {
	if len(assessments) == 0 {
		return 0
	}
	sufficient := 0
	for _, assessment := range assessments {
		if assessment.Sufficient {
			sufficient++
		}
	}
	return float64(sufficient) / float64(len(assessments))
}

// evidenceConsistency starts from full agreement and discounts for every
// degradation recorded along the way.
func evidenceConsistency(records []models.FlakyTestRecord, gaps []string) float64 {
	consistency := 1.0
	for _, record := range records {
		if record.HasLayer(models.LayerUnclassified) {
			consistency -= 0.1
		}
	}
	consistency -= 0.05 * float64(len(gaps))
	if consistency < 0 {
		return 0
	}
	return consistency
}

func sortedDimensions(values map[models.DimensionID][]float64) []models.DimensionID {
	dims := make([]models.DimensionID, 0, len(values))
	for dim := range values {
		dims = append(dims, dim)
	}
	sort.Slice(dims, func(i, j int) bool { return dims[i] < dims[j] })
	return dims
}
