package configuration

import (
	"time"

	"github.com/cohortproject/cohort/internal/common/config"
)

type CohortConfig struct {
	// Port the assignment API is served on.
	HttpPort uint16
	// Port prometheus metrics are served on.
	MetricsPort uint16

	Store    StoreConfig
	Registry RegistryConfig
}

// StoreConfig selects and configures the assignment store backend.
type StoreConfig struct {
	// One of "redis", "postgres" or "memory".
	Type string

	// Bound applied to each store call; a timeout surfaces to callers as a
	// retryable unavailability error. Zero disables the bound.
	Timeout time.Duration

	Redis    config.RedisConfig
	Postgres config.PostgresConfig
}

// RegistryConfig configures access to the externally-authored experiment
// registry.
type RegistryConfig struct {
	Redis config.RedisConfig

	// How long experiment definitions may be served from the local cache.
	// Zero disables caching.
	CacheTTL time.Duration
}

const (
	StoreTypeRedis    = "redis"
	StoreTypePostgres = "postgres"
	StoreTypeMemory   = "memory"
)
