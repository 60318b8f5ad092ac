// Package sampler polls a MetricsReader on a fixed interval while a monitored
// run is in flight, building one in-memory time series per dimension.
package sampler

import (
	"context"
	"log/slog"
	"time"

	"github.com/flakewatch/flakewatch/internal/metrics"
	"github.com/flakewatch/flakewatch/internal/models"
)

// MetricsReader supplies one resource reading per dimension per tick. The
// host platform provides the implementation; read errors are treated as
// missing samples, never as sampling failures.
type MetricsReader interface {
	Read(ctx context.Context, dimension models.DimensionID) (float64, error)
}

// Collector drives the sampling loop for a single run.
type Collector struct {
	reader      MetricsReader
	interval    time.Duration
	maxDuration time.Duration
	logger      *slog.Logger
}

// NewCollector builds a collector. Interval and maxDuration fall back to
// sane defaults when unset.
func NewCollector(reader MetricsReader, interval, maxDuration time.Duration, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Second
	}
	if maxDuration <= 0 {
		maxDuration = 30 * time.Minute
	}
	return &Collector{
		reader:      reader,
		interval:    interval,
		maxDuration: maxDuration,
		logger:      logger,
	}
}

// Collect samples every dimension once per tick until ctx is cancelled or the
// collector's max duration elapses, then returns the frozen series map. The
// map is written only by this goroutine; ownership transfers to the caller on
// return, which is the only hand-off point.
//
// A tick whose reads overrun the interval causes the queued tick to be
// dropped rather than played back, so there is never a sample backlog. A
// failed read leaves a gap in that dimension's series for the tick; the
// remaining dimensions are still sampled.
func (c *Collector) Collect(ctx context.Context, dims []models.DimensionID) map[models.DimensionID]models.TimeSeries {
	series := make(map[models.DimensionID]models.TimeSeries, len(dims))
	for _, dim := range dims {
		series[dim] = models.TimeSeries{Dimension: dim}
	}
	if c.reader == nil || len(dims) == 0 {
		return series
	}

	deadline := time.NewTimer(c.maxDuration)
	defer deadline.Stop()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return series
		case <-deadline.C:
			c.logger.Warn("sampling stopped at max duration", slog.Duration("max", c.maxDuration))
			return series
		case tick := <-ticker.C:
			c.sampleOnce(ctx, tick, dims, series)
			// Drop any tick that queued while reads were in progress.
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}

func (c *Collector) sampleOnce(ctx context.Context, tick time.Time, dims []models.DimensionID, series map[models.DimensionID]models.TimeSeries) {
	for _, dim := range dims {
		value, err := c.reader.Read(ctx, dim)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.ObserveReadFailure(string(dim))
			c.logger.Debug("metric read failed, leaving gap",
				slog.String("dimension", string(dim)), slog.Any("error", err))
			continue
		}
		ts := series[dim]
		ts.Append(models.Sample{Timestamp: tick, Dimension: dim, Value: value})
		series[dim] = ts
		metrics.ObserveSample(string(dim))
	}
}
