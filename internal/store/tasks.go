package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"swarm/internal/swarm"
)

const taskColumns = "id, kind, priority, payload_json, status, created_at, deadline, retry_count, max_retries, drone_id, assigned_at"

// EnqueueTask inserts a pending task. Returns swarm.ErrDuplicateTaskID when
// the identifier already exists; the queue is left unchanged in that case.
func (s *Store) EnqueueTask(ctx context.Context, task *swarm.Task) error {
	if task == nil {
		return errors.New("task is nil")
	}

	var exists int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks WHERE id = ?`, task.ID)
	if err := row.Scan(&exists); err != nil {
		return fmt.Errorf("check task id: %w", err)
	}
	if exists > 0 {
		return swarm.ErrDuplicateTaskID
	}

	payload, err := marshalJSONMap(task.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO tasks (
            id, kind, priority, payload_json, status, created_at,
            deadline, retry_count, max_retries
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID,
		string(task.Kind),
		task.Priority,
		payload,
		string(swarm.TaskPending),
		formatTime(task.CreatedAt),
		nullableTime(task.Deadline),
		task.RetryCount,
		task.MaxRetries,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// DequeueCandidate atomically claims the highest-priority pending task of the
// requested kind (ties broken by earliest creation), stamping the assignment.
// Returns nil when no pending task of that kind exists. Only the scheduler
// loop calls this, so the select-then-update pair needs no row locking beyond
// the transaction itself.
func (s *Store) DequeueCandidate(ctx context.Context, kind swarm.Kind, droneID string) (*swarm.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin dequeue tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks
         WHERE status = ? AND kind = ?
         ORDER BY priority DESC, created_at ASC, id ASC
         LIMIT 1`,
		string(swarm.TaskPending),
		string(kind),
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select candidate: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE tasks SET status = ?, drone_id = ?, assigned_at = ? WHERE id = ?`,
		string(swarm.TaskAssigned),
		droneID,
		formatTime(now),
		task.ID,
	); err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit dequeue: %w", err)
	}

	task.Status = swarm.TaskAssigned
	task.DroneID = droneID
	task.AssignedAt = &now
	return task, nil
}

// CompleteTask records the terminal status of an assigned task.
func (s *Store) CompleteTask(ctx context.Context, taskID string, success bool) error {
	status := swarm.TaskCompleted
	if !success {
		status = swarm.TaskFailed
	}
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks SET status = ? WHERE id = ?`,
		string(status),
		taskID,
	)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

// PendingTasks returns all pending tasks in dispatch order for status
// reporting. The scheduler never iterates this for assignment.
func (s *Store) PendingTasks(ctx context.Context) ([]*swarm.Task, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status = ?
         ORDER BY priority DESC, created_at ASC, id ASC`,
		string(swarm.TaskPending),
	)
	if err != nil {
		return nil, fmt.Errorf("query pending tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*swarm.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// PendingCount returns the number of pending tasks.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks WHERE status = ?`, string(swarm.TaskPending))
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending tasks: %w", err)
	}
	return count, nil
}

// PendingCountByKind returns pending task counts grouped by kind.
func (s *Store) PendingCountByKind(ctx context.Context) (map[swarm.Kind]int, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT kind, COUNT(1) FROM tasks WHERE status = ? GROUP BY kind`,
		string(swarm.TaskPending),
	)
	if err != nil {
		return nil, fmt.Errorf("count pending by kind: %w", err)
	}
	defer rows.Close()

	counts := make(map[swarm.Kind]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		counts[swarm.Kind(kind)] = count
	}
	return counts, rows.Err()
}

// GetTask fetches a task by identifier; nil when absent.
func (s *Store) GetTask(ctx context.Context, id string) (*swarm.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// TaskStats returns a count of tasks grouped by status.
func (s *Store) TaskStats(ctx context.Context) (map[swarm.TaskStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[swarm.TaskStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[swarm.TaskStatus(status)] = count
	}
	return stats, rows.Err()
}

// ReclaimStaleAssigned returns assigned tasks older than cutoff to the
// pending queue. Used on daemon startup so tasks claimed by a dead process
// are dispatched again.
func (s *Store) ReclaimStaleAssigned(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks SET status = ?, drone_id = NULL, assigned_at = NULL
         WHERE status = ? AND assigned_at < ?`,
		string(swarm.TaskPending),
		string(swarm.TaskAssigned),
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale assigned: %w", err)
	}
	return res.RowsAffected()
}

// RequeueFailed returns failed tasks to the pending queue, incrementing
// their retry counters. With no ids it requeues every failed task.
func (s *Store) RequeueFailed(ctx context.Context, ids ...string) (int64, error) {
	query := `UPDATE tasks
              SET status = ?, drone_id = NULL, assigned_at = NULL,
                  retry_count = retry_count + 1
              WHERE status = ?`
	args := []any{string(swarm.TaskPending), string(swarm.TaskFailed)}
	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("requeue failed tasks: %w", err)
	}
	return res.RowsAffected()
}

// ClearTasks removes tasks in a terminal status. With no statuses provided it
// clears completed and failed tasks.
func (s *Store) ClearTasks(ctx context.Context, statuses ...swarm.TaskStatus) (int64, error) {
	if len(statuses) == 0 {
		statuses = []swarm.TaskStatus{swarm.TaskCompleted, swarm.TaskFailed}
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = string(status)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE status IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("clear tasks: %w", err)
	}
	return res.RowsAffected()
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func scanTask(scanner interface{ Scan(dest ...any) error }) (*swarm.Task, error) {
	var (
		id          string
		kind        string
		priority    int
		payloadRaw  sql.NullString
		status      string
		createdRaw  string
		deadlineRaw sql.NullString
		retryCount  int
		maxRetries  int
		droneID     sql.NullString
		assignedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&kind,
		&priority,
		&payloadRaw,
		&status,
		&createdRaw,
		&deadlineRaw,
		&retryCount,
		&maxRetries,
		&droneID,
		&assignedRaw,
	); err != nil {
		return nil, err
	}

	task := &swarm.Task{
		ID:         id,
		Kind:       swarm.Kind(kind),
		Priority:   priority,
		Payload:    unmarshalJSONMap(payloadRaw.String),
		Status:     swarm.TaskStatus(status),
		RetryCount: retryCount,
		MaxRetries: maxRetries,
		DroneID:    droneID.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		task.CreatedAt = created
	}
	if deadlineRaw.Valid {
		if deadline, err := parseTimeString(deadlineRaw.String); err == nil {
			task.Deadline = &deadline
		}
	}
	if assignedRaw.Valid {
		if assigned, err := parseTimeString(assignedRaw.String); err == nil {
			task.AssignedAt = &assigned
		}
	}
	return task, nil
}
