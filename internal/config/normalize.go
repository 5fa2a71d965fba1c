package config

import (
	"fmt"
	"strings"
)

// normalize expands path fields and fills zero-valued settings with defaults.
func (c *Config) normalize() error {
	for name, value := range map[string]*string{
		"paths.data_dir": &c.Paths.DataDir,
		"paths.log_dir":  &c.Paths.LogDir,
	} {
		expanded, err := expandPath(*value)
		if err != nil {
			return fmt.Errorf("normalize %s: %w", name, err)
		}
		*value = expanded
	}

	if c.Swarm.TickInterval == 0 {
		c.Swarm.TickInterval = defaultTickInterval
	}
	if c.Swarm.WorkerPoolSize == 0 {
		c.Swarm.WorkerPoolSize = defaultWorkerPoolSize
	}
	if c.Swarm.IdleTimeout == 0 {
		c.Swarm.IdleTimeout = defaultIdleTimeout
	}
	if c.Swarm.ErrorBackoff == 0 {
		c.Swarm.ErrorBackoff = defaultErrorBackoff
	}
	if c.Swarm.TaskBudget == 0 {
		c.Swarm.TaskBudget = defaultTaskBudget
	}
	if c.Swarm.StaleAssignedCutoff == 0 {
		c.Swarm.StaleAssignedCutoff = defaultStaleAssignedCutoff
	}

	if c.AIService.Timeout == 0 {
		c.AIService.Timeout = defaultAIServiceTimeout
	}
	if c.Notifications.RequestTimeout == 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	return nil
}
