package recorder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flakewatch/flakewatch/internal/metrics"
	"github.com/flakewatch/flakewatch/internal/models"
)

// RunFailure reports a run that could not be executed at all.
type RunFailure struct {
	Index int
	Err   error
}

func (f RunFailure) Error() string {
	return fmt.Sprintf("run %d: %v", f.Index, f.Err)
}

// BatchResult bundles the runs that completed with the runs that did not.
// Failed runs are reported distinctly so a degraded batch is never mistaken
// for a clean one.
type BatchResult struct {
	Runs     []models.RunResult
	Failures []RunFailure
}

// ExecuteBatch runs the command count times sequentially, so each run's
// resource measurements are not polluted by its siblings. A run that fails to
// launch is recorded as a failure and the batch continues.
func (r *Recorder) ExecuteBatch(ctx context.Context, cmd ExternalCommand, count int) (BatchResult, error) {
	if count <= 0 {
		return BatchResult{}, fmt.Errorf("recorder: batch count must be positive, got %d", count)
	}

	result := BatchResult{Runs: make([]models.RunResult, 0, count)}
	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			r.logger.Warn("batch cancelled", slog.Int("completed", len(result.Runs)))
			break
		}

		run, err := r.Execute(ctx, cmd)
		if err != nil {
			metrics.ObserveRun(metrics.OutcomeError)
			r.logger.Warn("run failed to execute",
				slog.Int("index", i), slog.Any("error", err))
			result.Failures = append(result.Failures, RunFailure{Index: i, Err: err})
			continue
		}
		metrics.ObserveRun(metrics.OutcomeSuccess)
		result.Runs = append(result.Runs, *run)
	}

	if len(result.Runs) == 0 && len(result.Failures) > 0 {
		return result, fmt.Errorf("recorder: all %d runs failed, first failure: %w", count, result.Failures[0].Err)
	}
	return result, nil
}
