// Package logging provides slog construction, shared attribute helpers, and
// log-file retention for the swarm daemon.
package logging
