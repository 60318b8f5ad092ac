package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the flakewatch engine.
type Config struct {
	Sampling Sampling `yaml:"sampling"`
	Runs     Runs     `yaml:"runs"`
	Analysis Analysis `yaml:"analysis"`
	Rules    Rules    `yaml:"rules"`
	Sink     Sink     `yaml:"sink"`
	Logging  Logging  `yaml:"logging"`
	Metrics  Metrics  `yaml:"metrics"`
}

// Sampling controls the metrics collector that runs beside the watched process.
type Sampling struct {
	Interval    time.Duration `yaml:"interval"`
	MaxDuration time.Duration `yaml:"maxDuration"`
	Dimensions  []string      `yaml:"dimensions"`
}

// Runs controls how the external command is repeated.
type Runs struct {
	Count int    `yaml:"count"`
	Dir   string `yaml:"dir"`
}

// Analysis tunes the statistical pipeline.
type Analysis struct {
	Prior                 float64 `yaml:"prior"`
	TrendMinRunLength     int     `yaml:"trendMinRunLength"`
	MinCorrelationSamples int     `yaml:"minCorrelationSamples"`
}

// Rules points at the optional classification rule pack.
type Rules struct {
	Path string `yaml:"path"`
}

// Sink configures the optional HTTP endpoint reports are delivered to.
type Sink struct {
	BaseURL    string        `yaml:"baseURL"`
	ReportPath string        `yaml:"reportPath"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Logging controls structured logging.
type Logging struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Metrics controls the Prometheus sidecar listener.
type Metrics struct {
	Address string `yaml:"address"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("FLAKEWATCH_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Sampling: Sampling{
			Interval:    time.Second,
			MaxDuration: 30 * time.Minute,
		},
		Runs: Runs{Count: 5},
		Analysis: Analysis{
			Prior:                 0.5,
			TrendMinRunLength:     3,
			MinCorrelationSamples: 3,
		},
		Rules:   Rules{},
		Sink:    Sink{ReportPath: "/api/v1/flaky-reports", Timeout: 5 * time.Second},
		Logging: Logging{Level: "info", JSON: false},
		Metrics: Metrics{Address: ":2112"},
	}
}

func validate(cfg *Config) error {
	if cfg.Sampling.Interval <= 0 {
		return fmt.Errorf("config: sampling interval must be positive, got %s", cfg.Sampling.Interval)
	}
	if cfg.Sampling.MaxDuration <= 0 {
		return fmt.Errorf("config: sampling maxDuration must be positive, got %s", cfg.Sampling.MaxDuration)
	}
	if cfg.Runs.Count <= 0 {
		return fmt.Errorf("config: run count must be positive, got %d", cfg.Runs.Count)
	}
	if cfg.Analysis.Prior <= 0 || cfg.Analysis.Prior >= 1 {
		return fmt.Errorf("config: analysis prior must be in (0, 1), got %f", cfg.Analysis.Prior)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FLAKEWATCH_SAMPLING_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sampling.Interval = d
		}
	}
	if v := os.Getenv("FLAKEWATCH_SAMPLING_MAX_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sampling.MaxDuration = d
		}
	}
	if v := os.Getenv("FLAKEWATCH_SAMPLING_DIMENSIONS"); v != "" {
		parts := strings.Split(v, ",")
		dims := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				dims = append(dims, p)
			}
		}
		if len(dims) > 0 {
			cfg.Sampling.Dimensions = dims
		}
	}
	if v := os.Getenv("FLAKEWATCH_RUN_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Runs.Count = n
		}
	}
	if v := os.Getenv("FLAKEWATCH_RUN_DIR"); v != "" {
		cfg.Runs.Dir = v
	}
	if v := os.Getenv("FLAKEWATCH_ANALYSIS_PRIOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Analysis.Prior = f
		}
	}
	if v := os.Getenv("FLAKEWATCH_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("FLAKEWATCH_SINK_BASE_URL"); v != "" {
		cfg.Sink.BaseURL = v
	}
	if v := os.Getenv("FLAKEWATCH_SINK_REPORT_PATH"); v != "" {
		cfg.Sink.ReportPath = v
	}
	if v := os.Getenv("FLAKEWATCH_SINK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sink.Timeout = d
		}
	}
	if v := os.Getenv("FLAKEWATCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FLAKEWATCH_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("FLAKEWATCH_METRICS_ADDRESS"); v != "" {
		cfg.Metrics.Address = v
	}
}
