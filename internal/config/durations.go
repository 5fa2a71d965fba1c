package config

import "time"

// Duration accessors over the integer-second/minute TOML fields.

// Tick returns the control-loop interval.
func (s Swarm) Tick() time.Duration { return time.Duration(s.TickInterval) * time.Second }

// IdleCutoff returns how long a drone may sit idle before it is reclaimed.
func (s Swarm) IdleCutoff() time.Duration { return time.Duration(s.IdleTimeout) * time.Second }

// Backoff returns the pause applied after a control-loop fault.
func (s Swarm) Backoff() time.Duration { return time.Duration(s.ErrorBackoff) * time.Second }

// Budget returns the soft per-task execution budget.
func (s Swarm) Budget() time.Duration { return time.Duration(s.TaskBudget) * time.Second }

// StaleCutoff returns how long a task may remain assigned before startup
// reconciliation returns it to the pending queue.
func (s Swarm) StaleCutoff() time.Duration {
	return time.Duration(s.StaleAssignedCutoff) * time.Second
}

// Verification returns the interval between recurring verification tasks.
// Zero disables the template; the same applies to the other intervals here.
func (p Periodic) Verification() time.Duration {
	return time.Duration(p.VerificationInterval) * time.Minute
}

// Optimization returns the interval between recurring optimization tasks.
func (p Periodic) Optimization() time.Duration {
	return time.Duration(p.OptimizationInterval) * time.Minute
}

// Collection returns the interval between recurring data-collection tasks.
func (p Periodic) Collection() time.Duration {
	return time.Duration(p.CollectionInterval) * time.Minute
}

// Healing returns the interval between recurring self-healing tasks.
func (p Periodic) Healing() time.Duration {
	return time.Duration(p.HealingInterval) * time.Minute
}

// ProbeTimeout returns the HTTP timeout for the AI-service liveness probe.
func (a AIService) ProbeTimeout() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

// Timeout returns the HTTP timeout for notification publishes.
func (n Notifications) Timeout() time.Duration {
	return time.Duration(n.RequestTimeout) * time.Second
}
