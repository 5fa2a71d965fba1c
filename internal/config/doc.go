// Package config loads, normalizes, and validates the TOML configuration
// used by the swarm daemon and CLI.
package config
