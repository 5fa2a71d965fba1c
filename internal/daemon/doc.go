// Package daemon coordinates the swarm's background services and enforces
// single-instance execution with a lock file. It owns startup reconciliation
// (returning stale assigned tasks to the queue) and wires the scheduler's
// lifecycle to the host process.
package daemon
