package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flakewatch/flakewatch/internal/classify"
	"github.com/flakewatch/flakewatch/internal/config"
	"github.com/flakewatch/flakewatch/internal/engine"
	"github.com/flakewatch/flakewatch/internal/extract"
	"github.com/flakewatch/flakewatch/internal/metrics"
	"github.com/flakewatch/flakewatch/internal/models"
	"github.com/flakewatch/flakewatch/internal/recorder"
	"github.com/flakewatch/flakewatch/internal/repo"
	"github.com/flakewatch/flakewatch/internal/sampler"
	"github.com/flakewatch/flakewatch/internal/utils"
)

func main() {
	var (
		configPath string
		runCount   int
		outPath    string
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.IntVar(&runCount, "runs", 0, "Number of times to repeat the command (overrides config)")
	flag.StringVar(&outPath, "out", "", "Write the diagnosis report to this file instead of stdout")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: flakewatch-engine [flags] -- command [args...]")
		os.Exit(2)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}
	if runCount > 0 {
		cfg.Runs.Count = runCount
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting flakewatch",
		slog.String("command", flag.Arg(0)),
		slog.Int("runs", cfg.Runs.Count))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	pack, err := classify.LoadRulePack(cfg.Rules.Path, logger)
	if err != nil {
		logger.Error("failed to load rule pack", slog.Any("error", err))
		os.Exit(1)
	}

	dimensions, err := resolveDimensions(cfg.Sampling.Dimensions)
	if err != nil {
		logger.Error("invalid dimension list", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Metrics.Address != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Metrics.Address,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Metrics.Address))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server exited", slog.Any("error", err))
			}
		}()
	}

	rec := recorder.NewRecorder(
		logger,
		sampler.NewHostReader(0),
		extract.NewExtractor(),
		dimensions,
		cfg.Sampling.Interval,
		cfg.Sampling.MaxDuration,
	)

	cmd := recorder.ExternalCommand{
		Path: flag.Arg(0),
		Args: flag.Args()[1:],
		Dir:  cfg.Runs.Dir,
	}

	batch, err := rec.ExecuteBatch(ctx, cmd, cfg.Runs.Count)
	if err != nil {
		logger.Error("all runs failed", slog.Any("error", err))
		os.Exit(1)
	}
	for _, failure := range batch.Failures {
		logger.Warn("run failed to complete",
			slog.Int("run", failure.Index),
			slog.Any("error", failure.Err))
	}

	classifier := classify.NewClassifier(logger, models.DefaultDimensions(), pack)
	pipeline := engine.NewPipeline(logger, classifier, models.DefaultDimensions(), engine.AnalysisConfig{
		Prior:                 cfg.Analysis.Prior,
		TrendMinRunLength:     cfg.Analysis.TrendMinRunLength,
		MinCorrelationSamples: cfg.Analysis.MinCorrelationSamples,
	})

	report, err := pipeline.Diagnose(ctx, batch.Runs)
	if err != nil {
		logger.Error("diagnosis failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := writeReport(report, outPath); err != nil {
		logger.Error("failed to write report", slog.Any("error", err))
		os.Exit(1)
	}

	sink := repo.NewReportSink(cfg.Sink.BaseURL, cfg.Sink.ReportPath, cfg.Sink.Timeout)
	if sink.Enabled() {
		deliverCtx, cancel := context.WithTimeout(context.Background(), cfg.Sink.Timeout)
		if err := sink.Deliver(deliverCtx, report); err != nil {
			logger.Warn("report delivery failed", slog.Any("error", err))
		} else {
			logger.Info("report delivered", slog.String("url", cfg.Sink.BaseURL))
		}
		cancel()
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancel()
	}

	logger.Info("flakewatch finished",
		slog.Int("runs", report.RunCount),
		slog.Int("flaky_tests", len(report.FlakyTests)),
		slog.String("confidence", string(report.OverallConfidence.Label)))
}

// resolveDimensions maps config dimension names onto known dimension IDs. An
// empty list selects every dimension with a default definition.
func resolveDimensions(names []string) ([]models.DimensionID, error) {
	if len(names) == 0 {
		return models.DefaultDimensionIDs(), nil
	}
	known := models.DefaultDimensions()
	ids := make([]models.DimensionID, 0, len(names))
	for _, name := range names {
		id := models.DimensionID(name)
		if _, ok := known[id]; !ok {
			return nil, fmt.Errorf("unknown dimension %q", name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func writeReport(report models.DiagnosisReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
