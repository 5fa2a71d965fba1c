package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Swarm contains scheduler control-loop settings.
type Swarm struct {
	TickInterval        int `toml:"tick_interval"`        // seconds between control-loop passes
	WorkerPoolSize      int `toml:"worker_pool_size"`     // concurrent task executions
	IdleTimeout         int `toml:"idle_timeout"`         // seconds before an idle drone is reclaimed
	ErrorBackoff        int `toml:"error_backoff"`        // seconds to pause the loop after a tick fault
	TaskBudget          int `toml:"task_budget"`          // soft per-task execution budget in seconds
	StaleAssignedCutoff int `toml:"stale_assigned_cutoff"` // seconds before an assigned task is reclaimed on startup
}

// DronePolicy controls spawning for a single drone kind.
type DronePolicy struct {
	MaxInstances   int `toml:"max_instances"`
	SpawnThreshold int `toml:"spawn_threshold"`
}

// Periodic contains recurring maintenance task intervals in minutes.
// A zero interval disables the template.
type Periodic struct {
	VerificationInterval int `toml:"verification_interval"`
	OptimizationInterval int `toml:"optimization_interval"`
	CollectionInterval   int `toml:"collection_interval"`
	HealingInterval      int `toml:"healing_interval"`
}

// AIService contains the endpoint probed by the verification drone.
type AIService struct {
	URL     string `toml:"url"`
	APIKey  string `toml:"api_key"`
	Timeout int    `toml:"timeout"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Lifecycle      bool   `toml:"lifecycle"`
	TaskFailures   bool   `toml:"task_failures"`
	HealthAlerts   bool   `toml:"health_alerts"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for the swarm daemon.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - Swarm: control-loop tick, worker pool bound, reclaim timeouts
//   - Drones: per-kind spawn policy (max instances, spawn threshold)
//   - Periodic: recurring maintenance task intervals
//   - AIService: liveness-probe target for verification checks
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths                  `toml:"paths"`
	Swarm         Swarm                  `toml:"swarm"`
	Drones        map[string]DronePolicy `toml:"drones"`
	Periodic      Periodic               `toml:"periodic"`
	AIService     AIService              `toml:"ai_service"`
	Notifications Notifications          `toml:"notifications"`
	Logging       Logging                `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/swarm/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. Missing files are not
// an error; defaults apply.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("swarm.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database path for swarm state.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "swarm.db")
}

// Policy returns the spawn policy for a drone kind, falling back to the
// built-in default when the section is absent.
func (c *Config) Policy(kind string) DronePolicy {
	if policy, ok := c.Drones[kind]; ok {
		return policy
	}
	return DronePolicy{MaxInstances: defaultMaxInstances, SpawnThreshold: defaultSpawnThreshold}
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
