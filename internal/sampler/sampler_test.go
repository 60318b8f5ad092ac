package sampler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/flakewatch/flakewatch/internal/models"
)

type fakeReader struct {
	mu      sync.Mutex
	values  map[models.DimensionID]float64
	failing map[models.DimensionID]bool
	reads   int
	delay   time.Duration
}

func (f *fakeReader) Read(ctx context.Context, dim models.DimensionID) (float64, error) {
	f.mu.Lock()
	f.reads++
	failing := f.failing[dim]
	value := f.values[dim]
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if failing {
		return 0, fmt.Errorf("read unavailable")
	}
	return value, nil
}

func TestCollectorStopsOnCancel(t *testing.T) {
	reader := &fakeReader{values: map[models.DimensionID]float64{models.DimensionCPUUtilization: 42}}
	collector := NewCollector(reader, 10*time.Millisecond, 500*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(25 * time.Millisecond)
		cancel()
	}()

	series := collector.Collect(ctx, []models.DimensionID{models.DimensionCPUUtilization})

	cpu := series[models.DimensionCPUUtilization]
	if len(cpu.Samples) == 0 {
		t.Fatalf("expected at least one sample before cancellation")
	}
	// Cancelled halfway through the window; the full window would hold ~50.
	if len(cpu.Samples) > 5 {
		t.Fatalf("expected sampling to stop at cancellation, got %d samples", len(cpu.Samples))
	}
	for _, s := range cpu.Samples {
		if s.Value != 42 {
			t.Fatalf("unexpected sample value %f", s.Value)
		}
	}
}

func TestCollectorStopsAtMaxDuration(t *testing.T) {
	reader := &fakeReader{values: map[models.DimensionID]float64{models.DimensionMemoryUtilization: 61}}
	collector := NewCollector(reader, 5*time.Millisecond, 40*time.Millisecond, nil)

	start := time.Now()
	series := collector.Collect(context.Background(), []models.DimensionID{models.DimensionMemoryUtilization})
	elapsed := time.Since(start)

	if elapsed > 300*time.Millisecond {
		t.Fatalf("collector ran past max duration: %v", elapsed)
	}
	if len(series[models.DimensionMemoryUtilization].Samples) == 0 {
		t.Fatalf("expected samples before max duration")
	}
}

func TestCollectorFailedDimensionLeavesGap(t *testing.T) {
	reader := &fakeReader{
		values:  map[models.DimensionID]float64{models.DimensionCPUUtilization: 10},
		failing: map[models.DimensionID]bool{models.DimensionThreadCount: true},
	}
	collector := NewCollector(reader, 5*time.Millisecond, 60*time.Millisecond, nil)

	series := collector.Collect(context.Background(), []models.DimensionID{
		models.DimensionCPUUtilization,
		models.DimensionThreadCount,
	})

	if len(series[models.DimensionCPUUtilization].Samples) == 0 {
		t.Fatalf("healthy dimension should keep sampling when another fails")
	}
	if len(series[models.DimensionThreadCount].Samples) != 0 {
		t.Fatalf("failing dimension should produce gaps, got %d samples", len(series[models.DimensionThreadCount].Samples))
	}
}

func TestCollectorNoDuplicateTimestamps(t *testing.T) {
	reader := &fakeReader{values: map[models.DimensionID]float64{models.DimensionCPUUtilization: 1}}
	collector := NewCollector(reader, 5*time.Millisecond, 60*time.Millisecond, nil)

	series := collector.Collect(context.Background(), []models.DimensionID{models.DimensionCPUUtilization})

	samples := series[models.DimensionCPUUtilization].Samples
	for i := 1; i < len(samples); i++ {
		if !samples[i].Timestamp.After(samples[i-1].Timestamp) {
			t.Fatalf("timestamps not strictly increasing at index %d", i)
		}
	}
}

func TestCollectorSlowReadSkipsTick(t *testing.T) {
	reader := &fakeReader{
		values: map[models.DimensionID]float64{models.DimensionCPUUtilization: 7},
		delay:  25 * time.Millisecond,
	}
	collector := NewCollector(reader, 10*time.Millisecond, 100*time.Millisecond, nil)

	series := collector.Collect(context.Background(), []models.DimensionID{models.DimensionCPUUtilization})

	// Each read overruns the interval, so roughly every third tick lands and
	// a backlog of ~10 samples would indicate queued ticks being replayed.
	if got := len(series[models.DimensionCPUUtilization].Samples); got > 6 {
		t.Fatalf("expected skipped ticks under slow reads, got %d samples", got)
	}
}

func TestCollectorNilReader(t *testing.T) {
	collector := NewCollector(nil, time.Millisecond, 10*time.Millisecond, nil)

	series := collector.Collect(context.Background(), []models.DimensionID{models.DimensionCPUUtilization})
	if len(series[models.DimensionCPUUtilization].Samples) != 0 {
		t.Fatalf("nil reader must yield empty series")
	}
}
