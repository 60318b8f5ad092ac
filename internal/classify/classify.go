// Package classify determines which tests behaved flakily across a run set
// and assigns each one to root-cause layers using a pluggable rule set.
package classify

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/flakewatch/flakewatch/internal/models"
)

// Classifier applies the layer rule set over grouped test outcomes.
type Classifier struct {
	logger     *slog.Logger
	dimensions map[models.DimensionID]models.Dimension
	pack       RulePack
	rules      []layerRule
}

// NewClassifier constructs a classifier. A nil dimensions map falls back to
// the default registry.
func NewClassifier(logger *slog.Logger, dimensions map[models.DimensionID]models.Dimension, pack RulePack) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	if dimensions == nil {
		dimensions = models.DefaultDimensions()
	}
	return &Classifier{
		logger:     logger,
		dimensions: dimensions,
		pack:       pack,
		rules:      defaultRules(),
	}
}

// Classify inspects all supplied runs and returns one record per flaky test.
// A test is flaky iff its status set across runs, ignoring skips, holds more
// than one distinct value. Layer assignment is additive: every matching rule
// contributes its layer and evidence, and a test no rule can explain is
// recorded as unclassified rather than guessed at.
//
// Calling with fewer than two runs is a contract violation and fails fast; an
// empty record list from a valid call genuinely means no flakiness observed.
func (c *Classifier) Classify(runs []models.RunResult) ([]models.FlakyTestRecord, error) {
	if len(runs) < 2 {
		return nil, fmt.Errorf("classify: flakiness requires at least 2 runs, got %d", len(runs))
	}

	grouped := groupOutcomes(runs)

	testIDs := make([]string, 0, len(grouped))
	for testID := range grouped {
		testIDs = append(testIDs, testID)
	}
	sort.Strings(testIDs)

	records := make([]models.FlakyTestRecord, 0)
	for _, testID := range testIDs {
		outcomes := grouped[testID]

		statuses := make([]models.TestStatus, 0, len(outcomes))
		for _, ro := range outcomes {
			statuses = append(statuses, ro.outcome.Status)
		}
		if !isFlaky(statuses) {
			continue
		}

		record := models.FlakyTestRecord{
			TestID:           testID,
			ObservedStatuses: statuses,
		}

		in := buildRuleInput(testID, outcomes, runs, c.dimensions, c.pack)
		for _, rule := range c.rules {
			matched, evidence := rule.Evaluate(in)
			if !matched {
				continue
			}
			record.Layers = append(record.Layers, rule.Layer())
			record.Evidence = append(record.Evidence, evidence...)
		}

		if len(record.Layers) == 0 {
			record.Layers = []models.Layer{models.LayerUnclassified}
			c.logger.Debug("no layer rule matched, recording as unclassified",
				slog.String("test_id", testID))
		}

		records = append(records, record)
	}

	return records, nil
}

// groupOutcomes indexes every run's outcomes by test ID, preserving run order.
func groupOutcomes(runs []models.RunResult) map[string][]runOutcome {
	grouped := make(map[string][]runOutcome)
	for i := range runs {
		run := &runs[i]
		for _, outcome := range run.Outcomes {
			if outcome.TestID == "" {
				continue
			}
			grouped[outcome.TestID] = append(grouped[outcome.TestID], runOutcome{run: run, outcome: outcome})
		}
	}
	return grouped
}

// isFlaky reports whether the status sequence, ignoring skips, contains more
// than one distinct value.
func isFlaky(statuses []models.TestStatus) bool {
	distinct := make(map[models.TestStatus]struct{})
	for _, status := range statuses {
		if status == models.StatusSkipped {
			continue
		}
		distinct[status] = struct{}{}
	}
	return len(distinct) > 1
}

func buildRuleInput(testID string, outcomes []runOutcome, runs []models.RunResult, dims map[models.DimensionID]models.Dimension, pack RulePack) ruleInput {
	in := ruleInput{
		testID:     testID,
		allRuns:    runs,
		dimensions: dims,
		pack:       pack,
	}
	for _, ro := range outcomes {
		switch ro.outcome.Status {
		case models.StatusPass:
			in.passingRuns = append(in.passingRuns, ro)
		case models.StatusFail, models.StatusError:
			in.failingRuns = append(in.failingRuns, ro)
		}
	}
	return in
}

// Summarize aggregates layer prevalence across the flaky records, in
// descending prevalence order.
func Summarize(records []models.FlakyTestRecord) []models.LayerSummary {
	if len(records) == 0 {
		return nil
	}

	counts := make(map[models.Layer]int)
	for _, record := range records {
		seen := make(map[models.Layer]struct{})
		for _, layer := range record.Layers {
			if _, ok := seen[layer]; ok {
				continue
			}
			seen[layer] = struct{}{}
			counts[layer]++
		}
	}

	summaries := make([]models.LayerSummary, 0, len(counts))
	for layer, count := range counts {
		summaries = append(summaries, models.LayerSummary{
			Layer:      layer,
			TestCount:  count,
			Prevalence: float64(count) / float64(len(records)),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Prevalence != summaries[j].Prevalence {
			return summaries[i].Prevalence > summaries[j].Prevalence
		}
		return summaries[i].Layer < summaries[j].Layer
	})
	return summaries
}
