package types

import "time"

// HealthStatus represents the overall health state.
type HealthStatus int

const (
	// HealthStatusHealthy indicates every tier answered.
	HealthStatusHealthy HealthStatus = iota + 1
	// HealthStatusDegraded indicates the remote tier is unreachable but the local one serves.
	HealthStatusDegraded
	// HealthStatusUnhealthy indicates the local tier failed.
	HealthStatusUnhealthy
)

func (s HealthStatus) String() string {
	switch s {
	case HealthStatusHealthy:
		return "healthy"
	case HealthStatusDegraded:
		return "degraded"
	case HealthStatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// TierHealth describes one store behind a tiered cache.
//
//nolint:govet // Metrics struct - logical grouping prioritized for readability
type TierHealth struct {
	Store     string
	Available bool
	Latency   time.Duration
	LastError string
	Hits      int64
	Misses    int64
	HitRatio  float64
}

// HealthReport is a point-in-time view of a tiered cache.
type HealthReport struct {
	Timestamp time.Time
	Local     TierHealth
	Remote    TierHealth
	LocalOnly bool
	Status    HealthStatus
}
