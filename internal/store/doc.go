// Package store persists swarm state in SQLite: the pending task queue,
// drone registrations, and execution results. Each write is an independent
// short transaction; the scheduler loop is the only writer of task
// assignment state, so no cross-table transactions are needed.
package store
