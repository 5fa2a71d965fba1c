package config

import (
	"errors"
	"fmt"
	"strings"

	"swarm/internal/swarm"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateSwarm(); err != nil {
		return err
	}
	if err := c.validateDrones(); err != nil {
		return err
	}
	if err := c.validatePeriodic(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateSwarm() error {
	if err := ensurePositiveMap(map[string]int{
		"swarm.tick_interval":         c.Swarm.TickInterval,
		"swarm.worker_pool_size":      c.Swarm.WorkerPoolSize,
		"swarm.idle_timeout":          c.Swarm.IdleTimeout,
		"swarm.error_backoff":         c.Swarm.ErrorBackoff,
		"swarm.task_budget":           c.Swarm.TaskBudget,
		"swarm.stale_assigned_cutoff": c.Swarm.StaleAssignedCutoff,
	}); err != nil {
		return err
	}
	if c.Swarm.IdleTimeout <= c.Swarm.TickInterval {
		return errors.New("swarm.idle_timeout must be greater than swarm.tick_interval")
	}
	return nil
}

func (c *Config) validateDrones() error {
	for name, policy := range c.Drones {
		if _, ok := swarm.ParseKind(name); !ok {
			return fmt.Errorf("drones.%s: unknown drone kind", name)
		}
		if policy.MaxInstances <= 0 {
			return fmt.Errorf("drones.%s.max_instances must be positive", name)
		}
		if policy.SpawnThreshold < 0 {
			return fmt.Errorf("drones.%s.spawn_threshold must be >= 0", name)
		}
	}
	return nil
}

func (c *Config) validatePeriodic() error {
	for name, value := range map[string]int{
		"periodic.verification_interval": c.Periodic.VerificationInterval,
		"periodic.optimization_interval": c.Periodic.OptimizationInterval,
		"periodic.collection_interval":   c.Periodic.CollectionInterval,
		"periodic.healing_interval":      c.Periodic.HealingInterval,
	} {
		if value < 0 {
			return fmt.Errorf("%s must be >= 0 (0 disables the template)", name)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for name, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
