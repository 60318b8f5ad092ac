package classify

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/flakewatch/flakewatch/internal/models"
	"github.com/flakewatch/flakewatch/internal/stats"
)

// RulePack holds the tunable vocabulary and thresholds the layer rules match
// against. Packs load from YAML so rules can be adjusted without touching the
// classifier's control flow.
type RulePack struct {
	TimingVocabulary        []string `yaml:"timing_vocabulary"`
	ExternalVocabulary      []string `yaml:"external_vocabulary"`
	StateVocabulary         []string `yaml:"state_vocabulary"`
	ConcurrencyVocabulary   []string `yaml:"concurrency_vocabulary"`
	AssertionVocabulary     []string `yaml:"assertion_vocabulary"`
	DurationOutlierSigma    float64  `yaml:"duration_outlier_sigma"`
	EnvCorrelationThreshold float64  `yaml:"env_correlation_threshold"`
}

// DefaultRulePack returns the built-in rule tuning.
func DefaultRulePack() RulePack {
	return RulePack{
		TimingVocabulary: []string{
			"timeout", "timed out", "deadline", "wait", "sleep", "too slow", "time limit",
		},
		ExternalVocabulary: []string{
			"connection refused", "connection reset", "socket", "unknownhost", "dns",
			"503", "502", "service unavailable", "http error", "read timed out",
		},
		StateVocabulary: []string{
			"already exists", "duplicate", "stale", "leftover", "not cleaned",
			"unique constraint", "dirty state",
		},
		ConcurrencyVocabulary: []string{
			"deadlock", "race", "concurrent modification", "concurrentmodification",
			"interrupted", "lock", "illegalmonitorstate",
		},
		AssertionVocabulary: []string{
			"assertionerror", "expected:", "but was", "comparisonfailure", "assert.that",
		},
		DurationOutlierSigma:    2,
		EnvCorrelationThreshold: 0.7,
	}
}

// LoadRulePack reads a YAML rule pack, falling back to the defaults when path
// is empty or the file does not exist. Fields absent from the file keep their
// default values.
func LoadRulePack(path string, logger *slog.Logger) (RulePack, error) {
	pack := DefaultRulePack()
	if path == "" {
		return pack, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if logger != nil {
				logger.Warn("rule pack not found, using defaults", slog.String("path", path))
			}
			return pack, nil
		}
		return pack, fmt.Errorf("read rule pack: %w", err)
	}
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return DefaultRulePack(), fmt.Errorf("parse rule pack: %w", err)
	}
	if pack.DurationOutlierSigma <= 0 {
		pack.DurationOutlierSigma = 2
	}
	if pack.EnvCorrelationThreshold <= 0 || pack.EnvCorrelationThreshold > 1 {
		pack.EnvCorrelationThreshold = 0.7
	}
	return pack, nil
}

// ruleInput carries everything a layer rule may inspect for one flaky test.
type ruleInput struct {
	testID      string
	passingRuns []runOutcome
	failingRuns []runOutcome
	allRuns     []models.RunResult
	dimensions  map[models.DimensionID]models.Dimension
	pack        RulePack
}

// runOutcome pairs a test outcome with the run it came from.
type runOutcome struct {
	run     *models.RunResult
	outcome models.TestOutcome
}

// layerRule evaluates one root-cause layer against the evidence for a single
// flaky test. Matching is additive: several rules may fire for one test.
type layerRule interface {
	Layer() models.Layer
	Evaluate(in ruleInput) (bool, []models.EvidenceRef)
}

func defaultRules() []layerRule {
	return []layerRule{
		timingRule{},
		resourceContentionRule{},
		environmentRule{},
		externalIntegrationRule{},
		stateIsolationRule{},
		nondeterministicRule{},
		assertionSensitivityRule{},
	}
}

// signatureMatches scans the failing outcomes' stack fragments for vocabulary
// hits, returning one evidence reference per matching run.
func signatureMatches(in ruleInput, vocabulary []string, note string) []models.EvidenceRef {
	refs := make([]models.EvidenceRef, 0)
	for _, fo := range in.failingRuns {
		signature := strings.ToLower(fo.outcome.FailureSignature)
		if signature == "" {
			continue
		}
		for _, term := range vocabulary {
			if strings.Contains(signature, term) {
				refs = append(refs, models.EvidenceRef{
					RunID:  fo.run.RunID,
					TestID: in.testID,
					Note:   fmt.Sprintf("%s: signature contains %q", note, term),
				})
				break
			}
		}
	}
	return refs
}

type timingRule struct{}

func (timingRule) Layer() models.Layer { return models.LayerTiming }

// Evaluate flags duration outliers against the passing-run baseline and
// timeout vocabulary in stack fragments.
func (timingRule) Evaluate(in ruleInput) (bool, []models.EvidenceRef) {
	refs := signatureMatches(in, in.pack.TimingVocabulary, "timing")

	baseline := make([]float64, 0, len(in.passingRuns))
	for _, po := range in.passingRuns {
		baseline = append(baseline, po.outcome.Duration.Seconds())
	}
	if len(baseline) >= 2 {
		assessment, err := stats.ConfidenceInterval(models.DimensionExecutionTime, baseline, 2)
		if err == nil {
			cutoff := assessment.PointEstimate + in.pack.DurationOutlierSigma*assessment.StdDev
			for _, fo := range in.failingRuns {
				failing := fo.outcome.Duration.Seconds()
				if failing > cutoff {
					refs = append(refs, models.EvidenceRef{
						RunID:     fo.run.RunID,
						TestID:    in.testID,
						Dimension: models.DimensionExecutionTime,
						Note: fmt.Sprintf("timing: failing duration %.3fs exceeds passing mean %.3fs + %.0f sigma",
							failing, assessment.PointEstimate, in.pack.DurationOutlierSigma),
					})
				}
			}
		}
	}
	return len(refs) > 0, refs
}

type resourceContentionRule struct{}

func (resourceContentionRule) Layer() models.Layer { return models.LayerResourceContention }

// Evaluate checks whether cpu or memory ran above the dimension's high
// threshold during failing runs.
func (resourceContentionRule) Evaluate(in ruleInput) (bool, []models.EvidenceRef) {
	refs := make([]models.EvidenceRef, 0)
	for _, dimID := range []models.DimensionID{models.DimensionCPUUtilization, models.DimensionMemoryUtilization} {
		dim, ok := in.dimensions[dimID]
		if !ok {
			continue
		}
		for _, fo := range in.failingRuns {
			series, ok := fo.run.TimeSeries[dimID]
			if !ok || len(series.Samples) == 0 {
				continue
			}
			if peak := maxValue(series.Values()); peak > dim.High {
				refs = append(refs, models.EvidenceRef{
					RunID:     fo.run.RunID,
					TestID:    in.testID,
					Dimension: dimID,
					Note:      fmt.Sprintf("resource contention: %s peaked at %.1f (high threshold %.1f)", dimID, peak, dim.High),
				})
			}
		}
	}
	return len(refs) > 0, refs
}

type environmentRule struct{}

func (environmentRule) Layer() models.Layer { return models.LayerEnvironment }

// Evaluate correlates the per-run failure indicator with each recorded
// environment attribute across the run set.
func (environmentRule) Evaluate(in ruleInput) (bool, []models.EvidenceRef) {
	if len(in.allRuns) < 3 {
		return false, nil
	}

	indicator := make([]float64, len(in.allRuns))
	for i, run := range in.allRuns {
		outcome, ok := run.OutcomeFor(in.testID)
		if ok && outcome.Status != models.StatusPass && outcome.Status != models.StatusSkipped {
			indicator[i] = 1
		}
	}

	refs := make([]models.EvidenceRef, 0)
	for _, attribute := range sharedAttributes(in.allRuns) {
		values := make([]float64, len(in.allRuns))
		for i, run := range in.allRuns {
			values[i] = run.Environment[attribute]
		}
		result, err := stats.Correlation(indicator, values)
		if err != nil || result.Degenerate {
			continue
		}
		if abs(result.Coefficient) >= in.pack.EnvCorrelationThreshold {
			refs = append(refs, models.EvidenceRef{
				RunID:     in.failingRunID(),
				TestID:    in.testID,
				Attribute: attribute,
				Note:      fmt.Sprintf("environment: failures correlate with %s (r=%.2f)", attribute, result.Coefficient),
			})
		}
	}
	return len(refs) > 0, refs
}

type externalIntegrationRule struct{}

func (externalIntegrationRule) Layer() models.Layer { return models.LayerExternalIntegration }

func (externalIntegrationRule) Evaluate(in ruleInput) (bool, []models.EvidenceRef) {
	refs := signatureMatches(in, in.pack.ExternalVocabulary, "external integration")
	return len(refs) > 0, refs
}

type stateIsolationRule struct{}

func (stateIsolationRule) Layer() models.Layer { return models.LayerStateIsolation }

func (stateIsolationRule) Evaluate(in ruleInput) (bool, []models.EvidenceRef) {
	refs := signatureMatches(in, in.pack.StateVocabulary, "state isolation")
	return len(refs) > 0, refs
}

type nondeterministicRule struct{}

func (nondeterministicRule) Layer() models.Layer { return models.LayerNondeterministic }

// Evaluate matches concurrency vocabulary and elevated thread_count or
// lock_wait readings in failing runs.
func (nondeterministicRule) Evaluate(in ruleInput) (bool, []models.EvidenceRef) {
	refs := signatureMatches(in, in.pack.ConcurrencyVocabulary, "nondeterministic")

	for _, dimID := range []models.DimensionID{models.DimensionThreadCount, models.DimensionLockWait} {
		dim, ok := in.dimensions[dimID]
		if !ok {
			continue
		}
		for _, fo := range in.failingRuns {
			series, ok := fo.run.TimeSeries[dimID]
			if !ok || len(series.Samples) == 0 {
				continue
			}
			if peak := maxValue(series.Values()); peak > dim.High {
				refs = append(refs, models.EvidenceRef{
					RunID:     fo.run.RunID,
					TestID:    in.testID,
					Dimension: dimID,
					Note:      fmt.Sprintf("nondeterministic: %s peaked at %.0f (high threshold %.0f)", dimID, peak, dim.High),
				})
			}
		}
	}
	return len(refs) > 0, refs
}

type assertionSensitivityRule struct{}

func (assertionSensitivityRule) Layer() models.Layer { return models.LayerAssertionSensitivity }

func (assertionSensitivityRule) Evaluate(in ruleInput) (bool, []models.EvidenceRef) {
	refs := signatureMatches(in, in.pack.AssertionVocabulary, "assertion sensitivity")
	return len(refs) > 0, refs
}

// failingRunID returns the first failing run's ID for evidence anchoring.
func (in ruleInput) failingRunID() string {
	if len(in.failingRuns) > 0 {
		return in.failingRuns[0].run.RunID
	}
	return ""
}

// sharedAttributes lists environment attributes present in every run, in a
// stable order.
func sharedAttributes(runs []models.RunResult) []string {
	if len(runs) == 0 {
		return nil
	}
	shared := make([]string, 0, len(runs[0].Environment))
	for attribute := range runs[0].Environment {
		presentEverywhere := true
		for _, run := range runs[1:] {
			if _, ok := run.Environment[attribute]; !ok {
				presentEverywhere = false
				break
			}
		}
		if presentEverywhere {
			shared = append(shared, attribute)
		}
	}
	sort.Strings(shared)
	return shared
}

func maxValue(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	max := values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
