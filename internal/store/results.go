package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"swarm/internal/swarm"
)

const resultColumns = "task_id, drone_id, success, data_json, execution_ms, completed_at, recommendations_json"

// InsertResult persists the outcome of one task execution attempt. Results
// are write-once; a second insert for the same task id is an error.
func (s *Store) InsertResult(ctx context.Context, result *swarm.Result) error {
	if result == nil {
		return errors.New("result is nil")
	}

	data, err := marshalJSONMap(result.Data)
	if err != nil {
		return fmt.Errorf("marshal result data: %w", err)
	}
	recommendations, err := marshalStrings(result.Recommendations)
	if err != nil {
		return fmt.Errorf("marshal recommendations: %w", err)
	}

	completedAt := result.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO results (
            task_id, drone_id, success, data_json,
            execution_ms, completed_at, recommendations_json
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		result.TaskID,
		result.DroneID,
		boolToInt(result.Success),
		data,
		result.ExecutionTime.Milliseconds(),
		formatTime(completedAt),
		recommendations,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// RecentResults returns up to limit results ordered by completion time
// descending.
func (s *Store) RecentResults(ctx context.Context, limit int) ([]*swarm.Result, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+resultColumns+` FROM results ORDER BY completed_at DESC, task_id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent results: %w", err)
	}
	defer rows.Close()

	var results []*swarm.Result
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// CompletedCount returns the total number of persisted results.
func (s *Store) CompletedCount(ctx context.Context) (int, error) {
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM results`)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count results: %w", err)
	}
	return count, nil
}

// LastRunTimestamp reports when a task whose id matches the prefix last
// finished. Falls back to the newest matching task row so a queued-but-
// unfinished instance still counts as a run, keeping periodic injection from
// double-enqueueing. Returns nil when no matching run exists.
func (s *Store) LastRunTimestamp(ctx context.Context, taskIDPrefix string) (*time.Time, error) {
	pattern := taskIDPrefix + "%"

	var completedRaw sql.NullString
	row := s.db.QueryRowContext(
		ctx,
		`SELECT MAX(completed_at) FROM results WHERE task_id LIKE ?`,
		pattern,
	)
	if err := row.Scan(&completedRaw); err != nil {
		return nil, fmt.Errorf("query last result: %w", err)
	}
	if completedRaw.Valid {
		if ts, err := parseTimeString(completedRaw.String); err == nil {
			return &ts, nil
		}
	}

	var createdRaw sql.NullString
	row = s.db.QueryRowContext(
		ctx,
		`SELECT MAX(created_at) FROM tasks WHERE id LIKE ?`,
		pattern,
	)
	if err := row.Scan(&createdRaw); err != nil {
		return nil, fmt.Errorf("query last task: %w", err)
	}
	if createdRaw.Valid {
		if ts, err := parseTimeString(createdRaw.String); err == nil {
			return &ts, nil
		}
	}
	return nil, nil
}

// KindStat aggregates execution outcomes for one drone kind.
type KindStat struct {
	Attempts        int
	Failures        int
	AvgExecutionMS  float64
	LastCompletedAt time.Time
}

// KindStats returns per-kind execution statistics joined from results and
// tasks. Consumed by the optimization engine's heuristics.
func (s *Store) KindStats(ctx context.Context) (map[swarm.Kind]KindStat, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT t.kind,
                COUNT(1),
                SUM(CASE WHEN r.success = 0 THEN 1 ELSE 0 END),
                AVG(r.execution_ms),
                MAX(r.completed_at)
         FROM results r
         JOIN tasks t ON t.id = r.task_id
         GROUP BY t.kind`,
	)
	if err != nil {
		return nil, fmt.Errorf("query kind stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[swarm.Kind]KindStat)
	for rows.Next() {
		var (
			kind      string
			attempts  int
			failures  sql.NullInt64
			avgMS     sql.NullFloat64
			lastRaw   sql.NullString
			stat      KindStat
		)
		if err := rows.Scan(&kind, &attempts, &failures, &avgMS, &lastRaw); err != nil {
			return nil, err
		}
		stat.Attempts = attempts
		stat.Failures = int(failures.Int64)
		stat.AvgExecutionMS = avgMS.Float64
		if lastRaw.Valid {
			if ts, err := parseTimeString(lastRaw.String); err == nil {
				stat.LastCompletedAt = ts
			}
		}
		stats[swarm.Kind(kind)] = stat
	}
	return stats, rows.Err()
}

func scanResult(scanner interface{ Scan(dest ...any) error }) (*swarm.Result, error) {
	var (
		taskID       string
		droneID      string
		success      int
		dataRaw      sql.NullString
		executionMS  int64
		completedRaw string
		recsRaw      sql.NullString
	)
	if err := scanner.Scan(&taskID, &droneID, &success, &dataRaw, &executionMS, &completedRaw, &recsRaw); err != nil {
		return nil, err
	}

	result := &swarm.Result{
		TaskID:          taskID,
		DroneID:         droneID,
		Success:         success != 0,
		Data:            unmarshalJSONMap(dataRaw.String),
		ExecutionTime:   time.Duration(executionMS) * time.Millisecond,
		Recommendations: unmarshalStrings(recsRaw.String),
	}
	if completed, err := parseTimeString(completedRaw); err == nil {
		result.CompletedAt = completed
	}
	return result, nil
}
