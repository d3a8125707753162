package keyv

import (
	"github.com/LavishGent/keyv/internal/types"
)

// Re-export health types from internal/types.
type (
	// HealthStatus represents the overall health state.
	HealthStatus = types.HealthStatus

	// HealthReport is a point-in-time view of a tiered cache.
	HealthReport = types.HealthReport

	// TierHealth describes one tier of a tiered cache.
	TierHealth = types.TierHealth
)

// Re-export health status constants.
const (
	HealthStatusHealthy   = types.HealthStatusHealthy
	HealthStatusDegraded  = types.HealthStatusDegraded
	HealthStatusUnhealthy = types.HealthStatusUnhealthy
)
