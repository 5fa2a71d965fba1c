package testsupport

import (
	"path/filepath"
	"testing"

	"swarm/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test
// and intervals short enough for fast tests.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Swarm.TickInterval = 1
	cfg.Swarm.IdleTimeout = 2
	cfg.Swarm.ErrorBackoff = 1
	cfg.Swarm.TaskBudget = 5

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithWorkerPoolSize overrides the worker pool bound on the test config.
func WithWorkerPoolSize(size int) ConfigOption {
	return func(c *config.Config) {
		c.Swarm.WorkerPoolSize = size
	}
}

// WithDronePolicy overrides the spawn policy for a kind on the test config.
func WithDronePolicy(kind string, maxInstances, spawnThreshold int) ConfigOption {
	return func(c *config.Config) {
		c.Drones[kind] = config.DronePolicy{
			MaxInstances:   maxInstances,
			SpawnThreshold: spawnThreshold,
		}
	}
}
