package scheduler

import (
	"fmt"
	"sync"
	"time"

	"swarm/internal/drone"
	"swarm/internal/swarm"
)

// droneEntry pairs a live drone with its registry record.
type droneEntry struct {
	drone  drone.Drone
	record *swarm.DroneRecord
}

// registry tracks live drone instances. Mutations happen only on the
// control-loop goroutine; the lock exists for concurrent status snapshots.
type registry struct {
	mu      sync.RWMutex
	entries map[string]*droneEntry
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*droneEntry)}
}

func (r *registry) add(d drone.Drone, record *swarm.DroneRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[record.ID] = &droneEntry{drone: d, record: record}
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// transition moves a drone along the lifecycle edges, updating its
// last-activity timestamp. Invalid edges are an error so callers surface
// bookkeeping bugs instead of silently corrupting the state machine.
func (r *registry) transition(id string, to swarm.DroneStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("registry: unknown drone %s", id)
	}
	if !swarm.ValidDroneTransition(entry.record.Status, to) {
		return fmt.Errorf("registry: invalid transition %s -> %s for drone %s",
			entry.record.Status, to, id)
	}
	entry.record.Status = to
	entry.record.LastActivity = time.Now().UTC()
	return nil
}

// assign marks a drone working on a task. Valid only from idle.
func (r *registry) assign(id, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("registry: unknown drone %s", id)
	}
	if !swarm.ValidDroneTransition(entry.record.Status, swarm.DroneWorking) {
		return fmt.Errorf("registry: drone %s is %s, cannot take a task", id, entry.record.Status)
	}
	entry.record.Status = swarm.DroneWorking
	entry.record.CurrentTaskID = taskID
	entry.record.LastActivity = time.Now().UTC()
	return nil
}

// recordOutcome applies a completed execution to the drone's counters and
// walks it back to the idle pool, or to terminated when the result reports a
// fatal fault. Returns a copy of the updated record for persistence.
func (r *registry) recordOutcome(id string, result *swarm.Result) (swarm.DroneRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return swarm.DroneRecord{}, fmt.Errorf("registry: unknown drone %s", id)
	}
	record := entry.record
	if record.Status != swarm.DroneWorking {
		return swarm.DroneRecord{}, fmt.Errorf("registry: drone %s is %s, expected working", id, record.Status)
	}

	if result.Success {
		record.Status = swarm.DroneCompleted
		record.TasksCompleted++
	} else {
		record.Status = swarm.DroneFailed
		record.TasksFailed++
	}
	record.TotalExecution += result.ExecutionTime
	record.CurrentTaskID = ""
	record.LastActivity = time.Now().UTC()

	// Either outcome returns the drone to the idle pool; a fatal fault
	// continues on to terminated so the next reap pass removes it.
	record.Status = swarm.DroneIdle
	if result.Fatal() {
		record.Status = swarm.DroneTerminated
	}
	return *record, nil
}

func (r *registry) get(id string) (*droneEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	return entry, ok
}

// idleDrones returns the drones currently able to take a task, in no
// particular order.
func (r *registry) idleDrones() []*droneEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var idle []*droneEntry
	for _, entry := range r.entries {
		if entry.record.Status == swarm.DroneIdle {
			idle = append(idle, entry)
		}
	}
	return idle
}

// liveCount reports non-terminated drones of a kind.
func (r *registry) liveCount(kind swarm.Kind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, entry := range r.entries {
		if entry.record.Kind == kind && entry.record.Status != swarm.DroneTerminated {
			count++
		}
	}
	return count
}

func (r *registry) idleCount(kind swarm.Kind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, entry := range r.entries {
		if entry.record.Kind == kind && entry.record.Status == swarm.DroneIdle {
			count++
		}
	}
	return count
}

// terminatedIDs lists drones awaiting removal.
func (r *registry) terminatedIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, entry := range r.entries {
		if entry.record.Status == swarm.DroneTerminated {
			ids = append(ids, id)
		}
	}
	return ids
}

// idleSince lists idle drones whose last activity predates cutoff.
func (r *registry) idleSince(cutoff time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, entry := range r.entries {
		if entry.record.Status == swarm.DroneIdle && entry.record.LastActivity.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// snapshot copies every record for status reporting.
func (r *registry) snapshot() []swarm.DroneRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	records := make([]swarm.DroneRecord, 0, len(r.entries))
	for _, entry := range r.entries {
		records = append(records, *entry.record)
	}
	return records
}
