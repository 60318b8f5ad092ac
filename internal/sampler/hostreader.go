package sampler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gopsnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/flakewatch/flakewatch/internal/models"
)

// HostReader implements MetricsReader against the local OS via gopsutil.
// Rate dimensions (io_rate, network_rate) are derived from counter deltas
// between consecutive reads, so their first read reports zero.
type HostReader struct {
	mu sync.Mutex

	pid int32

	lastIOBytes  uint64
	lastIOAt     time.Time
	lastNetBytes uint64
	lastNetAt    time.Time
}

// NewHostReader builds a host-backed reader. pid, when non-zero, scopes
// thread_count to that process; otherwise the reader's own process is used.
func NewHostReader(pid int32) *HostReader {
	return &HostReader{pid: pid}
}

// BindPID retargets process-scoped dimensions at the given pid. Safe to call
// while sampling is in flight.
func (h *HostReader) BindPID(pid int32) {
	h.mu.Lock()
	h.pid = pid
	h.mu.Unlock()
}

// Read returns the current value for the dimension or an error the sampler
// records as a gap.
func (h *HostReader) Read(ctx context.Context, dimension models.DimensionID) (float64, error) {
	switch dimension {
	case models.DimensionCPUUtilization:
		return h.readCPU(ctx)
	case models.DimensionMemoryUtilization:
		return h.readMemory(ctx)
	case models.DimensionIORate:
		return h.readIORate(ctx)
	case models.DimensionNetworkRate:
		return h.readNetworkRate(ctx)
	case models.DimensionThreadCount:
		return h.readThreadCount(ctx)
	default:
		return 0, fmt.Errorf("host reader does not support dimension %s", dimension)
	}
}

func (h *HostReader) readCPU(ctx context.Context) (float64, error) {
	// Interval 0 measures since the previous call, matching the sampling tick.
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, fmt.Errorf("cpu percent: %w", err)
	}
	if len(percents) == 0 {
		return 0, fmt.Errorf("cpu percent returned no values")
	}
	return percents[0], nil
}

func (h *HostReader) readMemory(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("virtual memory: %w", err)
	}
	return vm.UsedPercent, nil
}

func (h *HostReader) readIORate(ctx context.Context) (float64, error) {
	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("disk io counters: %w", err)
	}
	var total uint64
	for _, c := range counters {
		total += c.ReadBytes + c.WriteBytes
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now()
	rate := counterRate(total, h.lastIOBytes, h.lastIOAt, now)
	h.lastIOBytes = total
	h.lastIOAt = now
	return rate, nil
}

func (h *HostReader) readNetworkRate(ctx context.Context) (float64, error) {
	counters, err := gopsnet.IOCountersWithContext(ctx, false)
	if err != nil {
		return 0, fmt.Errorf("net io counters: %w", err)
	}
	var total uint64
	for _, c := range counters {
		total += c.BytesSent + c.BytesRecv
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now()
	rate := counterRate(total, h.lastNetBytes, h.lastNetAt, now)
	h.lastNetBytes = total
	h.lastNetAt = now
	return rate, nil
}

func (h *HostReader) readThreadCount(ctx context.Context) (float64, error) {
	h.mu.Lock()
	pid := h.pid
	h.mu.Unlock()

	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return 0, fmt.Errorf("process %d: %w", pid, err)
	}
	threads, err := proc.NumThreadsWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("thread count: %w", err)
	}
	return float64(threads), nil
}

func counterRate(current, previous uint64, previousAt, now time.Time) float64 {
	if previousAt.IsZero() || current < previous {
		return 0
	}
	elapsed := now.Sub(previousAt).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(current-previous) / elapsed
}
