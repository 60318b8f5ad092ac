package models

// DimensionID names a measurable quantity tracked during a run.
type DimensionID string

const (
	DimensionCPUUtilization    DimensionID = "cpu_utilization"
	DimensionMemoryUtilization DimensionID = "memory_utilization"
	DimensionIORate            DimensionID = "io_rate"
	DimensionNetworkRate       DimensionID = "network_rate"
	DimensionExecutionTime     DimensionID = "execution_time"
	DimensionThreadCount       DimensionID = "thread_count"
	DimensionLockWait          DimensionID = "lock_wait"
)

// Distribution enumerates the expected statistical shape of a dimension.
type Distribution string

const (
	DistributionNormal    Distribution = "normal"
	DistributionLogNormal Distribution = "lognormal"
	DistributionPoisson   Distribution = "poisson"
)

// Dimension declares the statistical properties of a measurable quantity.
type Dimension struct {
	ID               DimensionID
	Unit             string
	Distribution     Distribution
	BaselineVariance float64
	MinSampleSize    int
	High             float64
}

// DefaultDimensions returns the built-in dimension registry. Callers receive a
// fresh map; thresholds may be overridden from configuration before use.
func DefaultDimensions() map[DimensionID]Dimension {
	return map[DimensionID]Dimension{
		DimensionCPUUtilization: {
			ID:               DimensionCPUUtilization,
			Unit:             "percent",
			Distribution:     DistributionNormal,
			BaselineVariance: 25,
			MinSampleSize:    5,
			High:             85,
		},
		DimensionMemoryUtilization: {
			ID:               DimensionMemoryUtilization,
			Unit:             "percent",
			Distribution:     DistributionNormal,
			BaselineVariance: 16,
			MinSampleSize:    5,
			High:             90,
		},
		DimensionIORate: {
			ID:               DimensionIORate,
			Unit:             "bytes/s",
			Distribution:     DistributionLogNormal,
			BaselineVariance: 1e12,
			MinSampleSize:    5,
			High:             200e6,
		},
		DimensionNetworkRate: {
			ID:               DimensionNetworkRate,
			Unit:             "bytes/s",
			Distribution:     DistributionLogNormal,
			BaselineVariance: 1e10,
			MinSampleSize:    5,
			High:             100e6,
		},
		DimensionExecutionTime: {
			ID:               DimensionExecutionTime,
			Unit:             "seconds",
			Distribution:     DistributionLogNormal,
			BaselineVariance: 4,
			MinSampleSize:    3,
			High:             1800,
		},
		DimensionThreadCount: {
			ID:               DimensionThreadCount,
			Unit:             "threads",
			Distribution:     DistributionPoisson,
			BaselineVariance: 9,
			MinSampleSize:    5,
			High:             512,
		},
		DimensionLockWait: {
			ID:               DimensionLockWait,
			Unit:             "milliseconds",
			Distribution:     DistributionLogNormal,
			BaselineVariance: 100,
			MinSampleSize:    5,
			High:             250,
		},
	}
}

// DefaultDimensionIDs lists the registry keys in a stable order.
func DefaultDimensionIDs() []DimensionID {
	return []DimensionID{
		DimensionCPUUtilization,
		DimensionMemoryUtilization,
		DimensionIORate,
		DimensionNetworkRate,
		DimensionExecutionTime,
		DimensionThreadCount,
		DimensionLockWait,
	}
}
