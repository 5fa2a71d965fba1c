package scheduler

import (
	"context"
	"sort"

	"swarm/internal/swarm"
)

// Status summarizes the swarm for callers and the CLI.
type Status struct {
	Running           bool
	TotalActiveDrones int
	ActiveByKind      map[swarm.Kind]int
	PendingTasks      int
	CompletedTasks    int
	InFlight          int
	Drones            []swarm.DroneRecord
}

// Status reports the current swarm state. Safe to call concurrently with
// the control loop.
func (s *Scheduler) Status(ctx context.Context) (*Status, error) {
	pending, err := s.store.PendingCount(ctx)
	if err != nil {
		return nil, err
	}
	completed, err := s.store.CompletedCount(ctx)
	if err != nil {
		return nil, err
	}

	records := s.registry.snapshot()
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	byKind := make(map[swarm.Kind]int)
	active := 0
	for _, record := range records {
		if record.Status == swarm.DroneTerminated {
			continue
		}
		active++
		byKind[record.Kind]++
	}

	return &Status{
		Running:           s.Running(),
		TotalActiveDrones: active,
		ActiveByKind:      byKind,
		PendingTasks:      pending,
		CompletedTasks:    completed,
		InFlight:          s.pool.inFlight(),
		Drones:            records,
	}, nil
}

// RecentResults returns up to limit results ordered by completion time
// descending.
func (s *Scheduler) RecentResults(ctx context.Context, limit int) ([]*swarm.Result, error) {
	return s.store.RecentResults(ctx, limit)
}
