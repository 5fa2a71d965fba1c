package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"swarm/internal/swarm"
)

const droneColumns = "id, kind, status, created_at, last_activity, tasks_completed, tasks_failed, total_execution_ms"

// UpsertDrone inserts or replaces a drone registration row. Called on spawn
// and whenever the scheduler changes drone state.
func (s *Store) UpsertDrone(ctx context.Context, rec *swarm.DroneRecord) error {
	if rec == nil {
		return errors.New("drone record is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO drones (
            id, kind, status, created_at, last_activity,
            tasks_completed, tasks_failed, total_execution_ms
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            status = excluded.status,
            last_activity = excluded.last_activity,
            tasks_completed = excluded.tasks_completed,
            tasks_failed = excluded.tasks_failed,
            total_execution_ms = excluded.total_execution_ms`,
		rec.ID,
		string(rec.Kind),
		string(rec.Status),
		formatTime(rec.CreatedAt),
		formatTime(rec.LastActivity),
		rec.TasksCompleted,
		rec.TasksFailed,
		rec.TotalExecution.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("upsert drone: %w", err)
	}
	return nil
}

// DeleteDrone removes a drone registration row when the instance is reaped.
func (s *Store) DeleteDrone(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM drones WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete drone: %w", err)
	}
	return nil
}

// ListDrones returns all persisted drone rows ordered by creation time.
func (s *Store) ListDrones(ctx context.Context) ([]*swarm.DroneRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+droneColumns+` FROM drones ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list drones: %w", err)
	}
	defer rows.Close()

	var records []*swarm.DroneRecord
	for rows.Next() {
		rec, err := scanDrone(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanDrone(scanner interface{ Scan(dest ...any) error }) (*swarm.DroneRecord, error) {
	var (
		id          string
		kind        string
		status      string
		createdRaw  string
		activityRaw string
		completed   int
		failed      int
		totalMS     int64
	)
	if err := scanner.Scan(&id, &kind, &status, &createdRaw, &activityRaw, &completed, &failed, &totalMS); err != nil {
		return nil, err
	}

	rec := &swarm.DroneRecord{
		ID:             id,
		Kind:           swarm.Kind(kind),
		Status:         swarm.DroneStatus(status),
		TasksCompleted: completed,
		TasksFailed:    failed,
		TotalExecution: time.Duration(totalMS) * time.Millisecond,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		rec.CreatedAt = created
	}
	if activity, err := parseTimeString(activityRaw); err == nil {
		rec.LastActivity = activity
	}
	return rec, nil
}
