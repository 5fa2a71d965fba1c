// Package notifications delivers swarm events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Enumerated event types cover daemon lifecycle, task failures, and
// degraded health so scheduler code can emit consistent messages without
// duplicating HTTP glue.
//
// Extend this package if you need alternative transports; scheduler code
// depends only on the simple Service interface.
package notifications
