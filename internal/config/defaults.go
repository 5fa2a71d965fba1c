package config

import "swarm/internal/swarm"

const (
	defaultDataDir = "~/.local/share/swarm/data"
	defaultLogDir  = "~/.local/share/swarm/logs"

	defaultTickInterval        = 30
	defaultWorkerPoolSize      = 10
	defaultIdleTimeout         = 300
	defaultErrorBackoff        = 120
	defaultTaskBudget          = 120
	defaultStaleAssignedCutoff = 600

	defaultMaxInstances   = 3
	defaultSpawnThreshold = 1

	defaultVerificationInterval = 60
	defaultOptimizationInterval = 180
	defaultCollectionInterval   = 30
	defaultHealingInterval      = 0 // disabled; healing runs on demand

	defaultAIServiceTimeout = 10

	defaultNotifyRequestTimeout = 10

	defaultLogFormat     = "console"
	defaultLogLevel      = "info"
	defaultLogRetention  = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	drones := make(map[string]DronePolicy, len(swarm.AllKinds()))
	for _, kind := range swarm.AllKinds() {
		drones[string(kind)] = DronePolicy{
			MaxInstances:   defaultMaxInstances,
			SpawnThreshold: defaultSpawnThreshold,
		}
	}

	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Swarm: Swarm{
			TickInterval:        defaultTickInterval,
			WorkerPoolSize:      defaultWorkerPoolSize,
			IdleTimeout:         defaultIdleTimeout,
			ErrorBackoff:        defaultErrorBackoff,
			TaskBudget:          defaultTaskBudget,
			StaleAssignedCutoff: defaultStaleAssignedCutoff,
		},
		Drones: drones,
		Periodic: Periodic{
			VerificationInterval: defaultVerificationInterval,
			OptimizationInterval: defaultOptimizationInterval,
			CollectionInterval:   defaultCollectionInterval,
			HealingInterval:      defaultHealingInterval,
		},
		AIService: AIService{
			Timeout: defaultAIServiceTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Lifecycle:      true,
			TaskFailures:   true,
			HealthAlerts:   true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetention,
		},
	}
}
