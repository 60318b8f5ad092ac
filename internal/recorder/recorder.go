// Package recorder executes one monitored build/test run: the external
// command and the metrics sampler start together, and everything observed is
// frozen into a RunResult when the process exits.
package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/flakewatch/flakewatch/internal/models"
	"github.com/flakewatch/flakewatch/internal/sampler"
	"github.com/flakewatch/flakewatch/internal/utils"
)

// ExternalCommand describes the build/test process to monitor.
type ExternalCommand struct {
	Path string
	Args []string
	Dir  string
	Env  []string
}

// OutcomeExtractor turns raw build output into structured test outcomes.
type OutcomeExtractor interface {
	Extract(raw string) []models.TestOutcome
}

// pidBinder is implemented by readers that can scope process dimensions to
// the monitored pid once it is known.
type pidBinder interface {
	BindPID(pid int32)
}

// Recorder wraps a single run execution.
type Recorder struct {
	logger      *slog.Logger
	reader      sampler.MetricsReader
	extractor   OutcomeExtractor
	dimensions  []models.DimensionID
	interval    time.Duration
	maxDuration time.Duration

	// envProbe records host attributes at run start; replaceable in tests.
	envProbe func(ctx context.Context) map[string]float64
}

// NewRecorder constructs a recorder. A nil reader degrades to empty time
// series; a nil extractor degrades to zero outcomes.
func NewRecorder(logger *slog.Logger, reader sampler.MetricsReader, extractor OutcomeExtractor, dimensions []models.DimensionID, interval, maxDuration time.Duration) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if maxDuration <= 0 {
		maxDuration = 30 * time.Minute
	}
	return &Recorder{
		logger:      logger,
		reader:      reader,
		extractor:   extractor,
		dimensions:  dimensions,
		interval:    interval,
		maxDuration: maxDuration,
		envProbe:    hostEnvironment,
	}
}

// Execute launches the command and the sampler concurrently and assembles the
// RunResult once both have finished. Abnormal termination (non-zero exit,
// timeout, cancellation) still yields a RunResult carrying the partial data;
// only a command that cannot be launched at all returns without one.
func (r *Recorder) Execute(ctx context.Context, cmd ExternalCommand) (*models.RunResult, error) {
	if cmd.Path == "" {
		return nil, utils.NewAppError("recorder.execute", "empty command", nil)
	}
	if _, err := exec.LookPath(cmd.Path); err != nil {
		return nil, utils.NewAppError("recorder.execute", "command not found", err)
	}

	runCtx, cancelRun := context.WithTimeout(ctx, r.maxDuration)
	defer cancelRun()

	// The sampler gets its own cancellation so it can outlive the process
	// just long enough to be stopped deliberately, never indefinitely.
	sampleCtx, stopSampling := context.WithCancel(context.Background())
	defer stopSampling()

	seriesCh := make(chan map[models.DimensionID]models.TimeSeries, 1)
	if r.reader != nil && len(r.dimensions) > 0 {
		collector := sampler.NewCollector(r.reader, r.interval, r.maxDuration, r.logger)
		go func() {
			seriesCh <- collector.Collect(sampleCtx, r.dimensions)
		}()
	} else {
		r.logger.Warn("sampler not configured, run proceeds without time series")
		seriesCh <- make(map[models.DimensionID]models.TimeSeries)
	}

	environment := r.envProbe(runCtx)

	var output bytes.Buffer
	proc := exec.CommandContext(runCtx, cmd.Path, cmd.Args...)
	proc.Dir = cmd.Dir
	proc.Env = cmd.Env
	// Stdout and stderr share one writer so exec keeps a single pipe and the
	// extractor sees interleaved output the way a terminal would.
	proc.Stdout = &output
	proc.Stderr = &output

	start := time.Now()
	if err := proc.Start(); err != nil {
		stopSampling()
		<-seriesCh
		return nil, fmt.Errorf("recorder: start command: %w", err)
	}

	if binder, ok := r.reader.(pidBinder); ok && proc.Process != nil {
		binder.BindPID(int32(proc.Process.Pid))
	}

	waitErr := proc.Wait()
	end := time.Now()

	// Process is done; stop the sampler and wait for the frozen series. No
	// component observes the series map before this hand-off completes.
	stopSampling()
	series := <-seriesCh

	status, exitCode := classifyExit(runCtx, ctx, waitErr, proc)

	raw := output.String()
	var outcomes []models.TestOutcome
	if r.extractor != nil {
		outcomes = r.extractor.Extract(raw)
	}

	result := &models.RunResult{
		RunID:       uuid.NewString(),
		StartTime:   start,
		EndTime:     end,
		ExitStatus:  status,
		ExitCode:    exitCode,
		TimeSeries:  series,
		Outcomes:    outcomes,
		Environment: environment,
		RawOutput:   raw,
	}

	r.logger.Debug("run recorded",
		slog.String("run_id", result.RunID),
		slog.String("exit_status", string(status)),
		slog.Int("outcomes", len(outcomes)),
		slog.Duration("duration", result.Duration()))

	return result, nil
}

func classifyExit(runCtx, parentCtx context.Context, waitErr error, proc *exec.Cmd) (models.ExitStatus, int) {
	exitCode := 0
	if proc.ProcessState != nil {
		exitCode = proc.ProcessState.ExitCode()
	}

	if waitErr == nil {
		return models.ExitSuccess, exitCode
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return models.ExitTimeout, exitCode
	}
	if parentCtx.Err() != nil {
		return models.ExitKilled, exitCode
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return models.ExitFailure, exitErr.ExitCode()
	}
	return models.ExitFailure, exitCode
}

// hostEnvironment snapshots coarse host attributes for the environment layer
// rule. Probe failures simply omit the attribute.
func hostEnvironment(ctx context.Context) map[string]float64 {
	env := make(map[string]float64)
	if avg, err := load.AvgWithContext(ctx); err == nil {
		env["load_avg_1m"] = avg.Load1
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		env["mem_available_percent"] = 100 - vm.UsedPercent
	}
	env["hour_of_day"] = float64(time.Now().Hour())
	return env
}
