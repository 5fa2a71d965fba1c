// Package swarm defines the task, result, and drone value types shared by the
// scheduler, the persistence store, and the drone implementations.
package swarm
