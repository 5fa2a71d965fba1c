package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"swarm/internal/swarm"
	"swarm/internal/testsupport"
)

func TestOpenAppliesMigrations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	task := testsupport.EnqueueTask(t, st, swarm.KindVerification, 5)

	fetched, err := st.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if fetched == nil || fetched.Kind != swarm.KindVerification || fetched.Status != swarm.TaskPending {
		t.Fatalf("unexpected fetched task: %#v", fetched)
	}
}

func TestEnqueueRejectsDuplicateID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.EnqueueTask(t, st, swarm.KindVerification, 5, swarm.WithTaskID("t-dup"))

	dup, err := swarm.NewTask(swarm.KindVerification, 7, nil, swarm.WithTaskID("t-dup"))
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}
	if err := st.EnqueueTask(ctx, dup); !errors.Is(err, swarm.ErrDuplicateTaskID) {
		t.Fatalf("expected ErrDuplicateTaskID, got %v", err)
	}

	count, err := st.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("duplicate submission mutated the queue: %d pending", count)
	}
}

func TestDequeueCandidateOrdersByPriorityThenAge(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	for i, priority := range []int{3, 9, 5} {
		task, err := swarm.NewTask(swarm.KindOptimization, priority, nil)
		if err != nil {
			t.Fatalf("NewTask failed: %v", err)
		}
		task.CreatedAt = time.Date(2026, 8, 1, 12, 0, i, 0, time.UTC)
		if err := st.EnqueueTask(ctx, task); err != nil {
			t.Fatalf("EnqueueTask failed: %v", err)
		}
	}

	var got []int
	for {
		task, err := st.DequeueCandidate(ctx, swarm.KindOptimization, "drone-1")
		if err != nil {
			t.Fatalf("DequeueCandidate failed: %v", err)
		}
		if task == nil {
			break
		}
		if task.Status != swarm.TaskAssigned || task.DroneID != "drone-1" || task.AssignedAt == nil {
			t.Fatalf("claim did not stamp assignment: %#v", task)
		}
		got = append(got, task.Priority)
	}
	want := []int{9, 5, 3}
	if len(got) != len(want) {
		t.Fatalf("expected %d tasks, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dispatch order %v, want %v", got, want)
		}
	}
}

func TestDequeueCandidateBreaksTiesByCreation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	older, err := swarm.NewTask(swarm.KindSelfHealing, 5, nil, swarm.WithTaskID("older"))
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}
	older.CreatedAt = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	newer, err := swarm.NewTask(swarm.KindSelfHealing, 5, nil, swarm.WithTaskID("newer"))
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}
	newer.CreatedAt = time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC)

	// Enqueue newer first so insertion order cannot mask the tie-break.
	if err := st.EnqueueTask(ctx, newer); err != nil {
		t.Fatalf("EnqueueTask failed: %v", err)
	}
	if err := st.EnqueueTask(ctx, older); err != nil {
		t.Fatalf("EnqueueTask failed: %v", err)
	}

	task, err := st.DequeueCandidate(ctx, swarm.KindSelfHealing, "drone-1")
	if err != nil {
		t.Fatalf("DequeueCandidate failed: %v", err)
	}
	if task == nil || task.ID != "older" {
		t.Fatalf("expected earliest-created task, got %#v", task)
	}
}

func TestDequeueCandidateIgnoresOtherKinds(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.EnqueueTask(t, st, swarm.KindVerification, 9)

	task, err := st.DequeueCandidate(ctx, swarm.KindOptimization, "drone-1")
	if err != nil {
		t.Fatalf("DequeueCandidate failed: %v", err)
	}
	if task != nil {
		t.Fatalf("expected no optimization candidate, got %#v", task)
	}
}

func TestResultRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.EnqueueTask(t, st, swarm.KindVerification, 5, swarm.WithTaskID("t1"))

	want := &swarm.Result{
		TaskID:          "t1",
		DroneID:         "verification-abc",
		Success:         true,
		Data:            map[string]any{"health_score": float64(80), "issues": []any{"memory pressure high"}},
		ExecutionTime:   1500 * time.Millisecond,
		CompletedAt:     time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC),
		Recommendations: []string{"investigate memory growth"},
	}
	if err := st.InsertResult(ctx, want); err != nil {
		t.Fatalf("InsertResult failed: %v", err)
	}

	results, err := st.RecentResults(ctx, 1)
	if err != nil {
		t.Fatalf("RecentResults failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	got := results[0]
	if got.TaskID != want.TaskID || got.DroneID != want.DroneID || got.Success != want.Success {
		t.Fatalf("result identity mismatch: %#v", got)
	}
	if got.ExecutionTime != want.ExecutionTime {
		t.Fatalf("execution time mismatch: got %s want %s", got.ExecutionTime, want.ExecutionTime)
	}
	if !got.CompletedAt.Equal(want.CompletedAt) {
		t.Fatalf("completed_at mismatch: got %s want %s", got.CompletedAt, want.CompletedAt)
	}
	if got.Data["health_score"] != float64(80) {
		t.Fatalf("data mismatch: %#v", got.Data)
	}
	if len(got.Recommendations) != 1 || got.Recommendations[0] != want.Recommendations[0] {
		t.Fatalf("recommendations mismatch: %#v", got.Recommendations)
	}
}

func TestRecentResultsOrdering(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	base := time.Date(2026, 8, 26, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		testsupport.EnqueueTask(t, st, swarm.KindDataCollection, 5, swarm.WithTaskID(taskID(i)))
		result := &swarm.Result{
			TaskID:      taskID(i),
			DroneID:     "collector-1",
			Success:     true,
			CompletedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := st.InsertResult(ctx, result); err != nil {
			t.Fatalf("InsertResult failed: %v", err)
		}
	}

	results, err := st.RecentResults(ctx, 2)
	if err != nil {
		t.Fatalf("RecentResults failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].TaskID != taskID(2) || results[1].TaskID != taskID(1) {
		t.Fatalf("unexpected ordering: %s, %s", results[0].TaskID, results[1].TaskID)
	}
}

func taskID(i int) string {
	return "t-" + string(rune('a'+i))
}

func TestLastRunTimestamp(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	ts, err := st.LastRunTimestamp(ctx, "periodic-verification")
	if err != nil {
		t.Fatalf("LastRunTimestamp failed: %v", err)
	}
	if ts != nil {
		t.Fatalf("expected no prior run, got %v", ts)
	}

	// A queued instance counts as a run before any result lands.
	testsupport.EnqueueTask(t, st, swarm.KindVerification, 5, swarm.WithTaskID("periodic-verification-001"))
	ts, err = st.LastRunTimestamp(ctx, "periodic-verification")
	if err != nil {
		t.Fatalf("LastRunTimestamp failed: %v", err)
	}
	if ts == nil {
		t.Fatal("expected queued instance to count as a run")
	}

	completed := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	result := &swarm.Result{TaskID: "periodic-verification-001", DroneID: "d", Success: true, CompletedAt: completed}
	if err := st.InsertResult(ctx, result); err != nil {
		t.Fatalf("InsertResult failed: %v", err)
	}
	ts, err = st.LastRunTimestamp(ctx, "periodic-verification")
	if err != nil {
		t.Fatalf("LastRunTimestamp failed: %v", err)
	}
	if ts == nil || !ts.Equal(completed) {
		t.Fatalf("expected completion timestamp %s, got %v", completed, ts)
	}
}

func TestReclaimStaleAssigned(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.EnqueueTask(t, st, swarm.KindSelfHealing, 5)
	claimed, err := st.DequeueCandidate(ctx, swarm.KindSelfHealing, "drone-dead")
	if err != nil || claimed == nil {
		t.Fatalf("DequeueCandidate failed: %v %v", claimed, err)
	}

	count, err := st.ReclaimStaleAssigned(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStaleAssigned failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 reclaimed task, got %d", count)
	}

	pending, err := st.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount failed: %v", err)
	}
	if pending != 1 {
		t.Fatalf("expected reclaimed task back in the queue, got %d pending", pending)
	}
}

func TestRequeueFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	for _, id := range []string{"t-retry-1", "t-retry-2"} {
		testsupport.EnqueueTask(t, st, swarm.KindVerification, 5, swarm.WithTaskID(id))
		claimed, err := st.DequeueCandidate(ctx, swarm.KindVerification, "verification-dead")
		if err != nil || claimed == nil {
			t.Fatalf("DequeueCandidate failed: %v %v", claimed, err)
		}
		if err := st.CompleteTask(ctx, claimed.ID, false); err != nil {
			t.Fatalf("CompleteTask failed: %v", err)
		}
	}

	count, err := st.RequeueFailed(ctx, "t-retry-1")
	if err != nil {
		t.Fatalf("RequeueFailed failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 requeued task, got %d", count)
	}

	requeued, err := st.GetTask(ctx, "t-retry-1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if requeued.Status != swarm.TaskPending || requeued.RetryCount != 1 || requeued.DroneID != "" {
		t.Fatalf("unexpected requeued task: %#v", requeued)
	}

	count, err = st.RequeueFailed(ctx)
	if err != nil {
		t.Fatalf("RequeueFailed failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected remaining failed task requeued, got %d", count)
	}
	pending, err := st.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount failed: %v", err)
	}
	if pending != 2 {
		t.Fatalf("expected both tasks pending, got %d", pending)
	}
}

func TestDroneUpsertListDelete(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	now := time.Now().UTC()
	rec := &swarm.DroneRecord{
		ID:           "verification-1234",
		Kind:         swarm.KindVerification,
		Status:       swarm.DroneIdle,
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := st.UpsertDrone(ctx, rec); err != nil {
		t.Fatalf("UpsertDrone failed: %v", err)
	}

	rec.Status = swarm.DroneWorking
	rec.TasksCompleted = 3
	rec.TotalExecution = 4 * time.Second
	if err := st.UpsertDrone(ctx, rec); err != nil {
		t.Fatalf("UpsertDrone update failed: %v", err)
	}

	drones, err := st.ListDrones(ctx)
	if err != nil {
		t.Fatalf("ListDrones failed: %v", err)
	}
	if len(drones) != 1 {
		t.Fatalf("expected 1 drone row, got %d", len(drones))
	}
	got := drones[0]
	if got.Status != swarm.DroneWorking || got.TasksCompleted != 3 || got.TotalExecution != 4*time.Second {
		t.Fatalf("unexpected drone row: %#v", got)
	}

	if err := st.DeleteDrone(ctx, rec.ID); err != nil {
		t.Fatalf("DeleteDrone failed: %v", err)
	}
	drones, err = st.ListDrones(ctx)
	if err != nil {
		t.Fatalf("ListDrones failed: %v", err)
	}
	if len(drones) != 0 {
		t.Fatalf("expected empty registry, got %d rows", len(drones))
	}
}

func TestCheckHealthReportsTables(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	health, err := st.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable {
		t.Fatalf("expected readable database: %#v", health)
	}
	if len(health.MissingTables) != 0 {
		t.Fatalf("missing tables: %v", health.MissingTables)
	}
	if !health.IntegrityCheck {
		t.Fatal("expected integrity check to pass")
	}
}

func TestKindStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.EnqueueTask(t, st, swarm.KindOptimization, 5, swarm.WithTaskID("o1"))
	testsupport.EnqueueTask(t, st, swarm.KindOptimization, 5, swarm.WithTaskID("o2"))
	for id, success := range map[string]bool{"o1": true, "o2": false} {
		result := &swarm.Result{
			TaskID: id, DroneID: "opt-1", Success: success,
			ExecutionTime: 2 * time.Second, CompletedAt: time.Now().UTC(),
		}
		if err := st.InsertResult(ctx, result); err != nil {
			t.Fatalf("InsertResult failed: %v", err)
		}
	}

	stats, err := st.KindStats(ctx)
	if err != nil {
		t.Fatalf("KindStats failed: %v", err)
	}
	stat, ok := stats[swarm.KindOptimization]
	if !ok {
		t.Fatalf("expected optimization stats, got %#v", stats)
	}
	if stat.Attempts != 2 || stat.Failures != 1 {
		t.Fatalf("unexpected stats: %+v", stat)
	}
	if stat.AvgExecutionMS != 2000 {
		t.Fatalf("unexpected average execution: %v", stat.AvgExecutionMS)
	}
}
