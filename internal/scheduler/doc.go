// Package scheduler runs the swarm control loop: it spawns drones according
// to configured policy, assigns pending tasks to idle compatible drones,
// dispatches execution onto a bounded worker pool, reaps idle and terminated
// drones, and injects recurring maintenance tasks on a timer.
//
// The loop is single-writer: only the loop goroutine mutates the task queue
// and the drone registry. Task execution is the only parallel activity, and
// each execution reports back through a completion channel drained by the
// loop.
package scheduler
