package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"swarm/internal/config"
	"swarm/internal/health"
	"swarm/internal/logging"
	"swarm/internal/optimize"
	"swarm/internal/swarm"
	"swarm/internal/testsupport"
)

// stubSource keeps resource checks deterministic and fast.
type stubSource struct{}

func (stubSource) Memory() (health.MemoryStats, error) {
	return health.MemoryStats{TotalBytes: 1000, AvailableBytes: 600}, nil
}

func (stubSource) Disk(string) (health.DiskStats, error) {
	return health.DiskStats{TotalBytes: 1000, FreeBytes: 500}, nil
}

func (stubSource) Goroutines() int { return 1 }

func newScheduler(t *testing.T, opts ...testsupport.ConfigOption) *Scheduler {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	// Keep ticks deterministic: no recurring templates unless a test
	// enables them.
	cfg.Periodic = config.Periodic{}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	st := testsupport.MustOpenStore(t, cfg)
	return NewWithOptions(cfg, st, logging.NewNop(), nil,
		optimize.NewHeuristicEngine(st, logging.NewNop()), stubSource{})
}

// settle waits for in-flight executions and applies their completions.
func settle(ctx context.Context, s *Scheduler) {
	s.pool.wait()
	s.drainCompletions(ctx)
}

func TestSubmitTaskValidation(t *testing.T) {
	s := newScheduler(t)
	ctx := context.Background()

	if _, err := s.SubmitTask(ctx, swarm.KindVerification, 11, nil); !errors.Is(err, swarm.ErrInvalidPriority) {
		t.Fatalf("expected ErrInvalidPriority, got %v", err)
	}
	if _, err := s.SubmitTask(ctx, "ripping", 5, nil); !errors.Is(err, swarm.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if count, _ := s.store.PendingCount(ctx); count != 0 {
		t.Fatalf("rejected submissions must not mutate the queue, pending = %d", count)
	}

	id, err := s.SubmitTask(ctx, swarm.KindVerification, 5, nil, swarm.WithTaskID("t1"))
	if err != nil || id != "t1" {
		t.Fatalf("SubmitTask = %q, %v", id, err)
	}
	if _, err := s.SubmitTask(ctx, swarm.KindVerification, 5, nil, swarm.WithTaskID("t1")); !errors.Is(err, swarm.ErrDuplicateTaskID) {
		t.Fatalf("expected ErrDuplicateTaskID, got %v", err)
	}
	if count, _ := s.store.PendingCount(ctx); count != 1 {
		t.Fatalf("duplicate submission must not mutate the queue, pending = %d", count)
	}
}

func TestSpawnPolicy(t *testing.T) {
	s := newScheduler(t, testsupport.WithDronePolicy(string(swarm.KindVerification), 2, 1))
	ctx := context.Background()

	// First pass: every kind starts one drone (live == 0).
	if err := s.spawn(ctx); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	for _, kind := range swarm.AllKinds() {
		if got := s.registry.liveCount(kind); got != 1 {
			t.Fatalf("liveCount(%s) = %d, want 1", kind, got)
		}
	}

	// Backlog beyond the idle capacity grows the kind up to max_instances.
	for i := 0; i < 3; i++ {
		testsupport.EnqueueTask(t, s.store, swarm.KindVerification, 5)
	}
	if err := s.spawn(ctx); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if got := s.registry.liveCount(swarm.KindVerification); got != 2 {
		t.Fatalf("liveCount after backlog = %d, want 2", got)
	}
	if err := s.spawn(ctx); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if got := s.registry.liveCount(swarm.KindVerification); got != 2 {
		t.Fatalf("liveCount must respect max_instances, got %d", got)
	}
}

func TestAssignTakesHighestPriorityFirst(t *testing.T) {
	s := newScheduler(t, testsupport.WithDronePolicy(string(swarm.KindDataCollection), 1, 1))
	ctx := context.Background()

	low := testsupport.EnqueueTask(t, s.store, swarm.KindDataCollection, 3)
	high := testsupport.EnqueueTask(t, s.store, swarm.KindDataCollection, 9)
	mid := testsupport.EnqueueTask(t, s.store, swarm.KindDataCollection, 5)

	if err := s.spawn(ctx); err != nil {
		t.Fatalf("spawn: %v", err)
	}

	expect := []string{high.ID, mid.ID, low.ID}
	for _, wantGone := range expect {
		if err := s.assign(ctx); err != nil {
			t.Fatalf("assign: %v", err)
		}
		settle(ctx, s)

		pending, err := s.store.PendingTasks(ctx)
		if err != nil {
			t.Fatalf("PendingTasks: %v", err)
		}
		for _, task := range pending {
			if task.ID == wantGone {
				t.Fatalf("task %s should have been assigned before %v", wantGone, pending)
			}
		}
	}

	if count, _ := s.store.PendingCount(ctx); count != 0 {
		t.Fatalf("pending = %d after all assignments, want 0", count)
	}
	if completed, _ := s.store.CompletedCount(ctx); completed != 3 {
		t.Fatalf("completed = %d, want 3", completed)
	}
}

func TestPoolSaturationLeavesTasksPending(t *testing.T) {
	s := newScheduler(t, testsupport.WithWorkerPoolSize(1))
	ctx := context.Background()

	testsupport.EnqueueTask(t, s.store, swarm.KindDataCollection, 5)
	testsupport.EnqueueTask(t, s.store, swarm.KindDataCollection, 5)
	if err := s.spawn(ctx); err != nil {
		t.Fatalf("spawn: %v", err)
	}

	// Occupy the only slot so assignment cannot dispatch anything.
	if !s.pool.tryAcquire() {
		t.Fatal("expected free slot")
	}
	if err := s.assign(ctx); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if count, _ := s.store.PendingCount(ctx); count != 2 {
		t.Fatalf("saturated pool must not dequeue, pending = %d", count)
	}
	s.pool.release()

	// With the slot free again the backlog drains across ticks.
	for i := 0; i < 2; i++ {
		if err := s.assign(ctx); err != nil {
			t.Fatalf("assign: %v", err)
		}
		settle(ctx, s)
	}
	if count, _ := s.store.PendingCount(ctx); count != 0 {
		t.Fatalf("pending = %d, want 0", count)
	}
}

func TestIdleDronesAreReaped(t *testing.T) {
	s := newScheduler(t)
	ctx := context.Background()

	if err := s.spawn(ctx); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	total := len(s.registry.snapshot())
	if total == 0 {
		t.Fatal("expected spawned drones")
	}

	// Age one drone past the idle timeout.
	victim := s.registry.snapshot()[0].ID
	entry, ok := s.registry.get(victim)
	if !ok {
		t.Fatalf("drone %s missing", victim)
	}
	entry.record.LastActivity = time.Now().UTC().Add(-s.cfg.Swarm.IdleCutoff() - time.Second)

	if err := s.reap(ctx); err != nil {
		t.Fatalf("reap: %v", err)
	}
	entry, ok = s.registry.get(victim)
	if !ok || entry.record.Status != swarm.DroneTerminated {
		t.Fatalf("expected %s terminated after first pass", victim)
	}

	if err := s.reap(ctx); err != nil {
		t.Fatalf("reap: %v", err)
	}
	if _, ok := s.registry.get(victim); ok {
		t.Fatalf("expected %s removed after second pass", victim)
	}
	if got := len(s.registry.snapshot()); got != total-1 {
		t.Fatalf("registry size = %d, want %d", got, total-1)
	}
}

func TestFatalResultTerminatesDrone(t *testing.T) {
	s := newScheduler(t)
	ctx := context.Background()

	if err := s.spawn(ctx); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	id := s.registry.snapshot()[0].ID
	if err := s.registry.assign(id, "t-fatal"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	s.handleCompletion(ctx, completion{
		droneID: id,
		result: &swarm.Result{
			TaskID:  "t-fatal",
			DroneID: id,
			Success: false,
			Data:    map[string]any{"error": "panic during execution", "fatal": true},
		},
	})

	entry, ok := s.registry.get(id)
	if !ok || entry.record.Status != swarm.DroneTerminated {
		t.Fatalf("expected terminated drone, got %+v", entry.record)
	}
	if err := s.reap(ctx); err != nil {
		t.Fatalf("reap: %v", err)
	}
	if _, ok := s.registry.get(id); ok {
		t.Fatal("expected fatal drone removed from registry")
	}
}

func TestPeriodicInjection(t *testing.T) {
	s := newScheduler(t)
	ctx := context.Background()
	s.cfg.Periodic = config.Periodic{
		VerificationInterval: 60,
		CollectionInterval:   30,
		OptimizationInterval: 180,
		// Healing stays disabled.
	}

	if err := s.inject(ctx); err != nil {
		t.Fatalf("inject: %v", err)
	}
	pending, err := s.store.PendingTasks(ctx)
	if err != nil {
		t.Fatalf("PendingTasks: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 injected templates, got %d", len(pending))
	}
	for _, task := range pending {
		if task.Kind == swarm.KindSelfHealing {
			t.Fatal("disabled template must not inject")
		}
	}

	// A queued instance counts as the last run; nothing new is injected.
	if err := s.inject(ctx); err != nil {
		t.Fatalf("inject: %v", err)
	}
	if count, _ := s.store.PendingCount(ctx); count != 3 {
		t.Fatalf("re-injection occurred, pending = %d", count)
	}
}

func TestTickRunsSubmittedTaskEndToEnd(t *testing.T) {
	s := newScheduler(t)
	ctx := context.Background()

	id, err := s.TriggerHealing(ctx, "log_cleanup", 7)
	if err != nil {
		t.Fatalf("TriggerHealing: %v", err)
	}

	if err := s.tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	settle(ctx, s)

	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != swarm.TaskCompleted {
		t.Fatalf("task status = %s, want completed", task.Status)
	}

	results, err := s.RecentResults(ctx, 1)
	if err != nil {
		t.Fatalf("RecentResults: %v", err)
	}
	if len(results) != 1 || results[0].TaskID != id || !results[0].Success {
		t.Fatalf("unexpected results: %+v", results)
	}

	status, err := s.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.CompletedTasks != 1 || status.PendingTasks != 0 {
		t.Fatalf("status = %+v", status)
	}
	if status.TotalActiveDrones == 0 {
		t.Fatal("expected active drones in status")
	}
}

// gateEngine holds an optimization sweep open until released so tests can
// cancel the control loop while a task is still executing.
type gateEngine struct {
	started chan struct{}
	release chan struct{}
}

func (e *gateEngine) Ping(context.Context) error { return nil }

func (e *gateEngine) DomainsNeedingOptimization(context.Context) ([]string, error) {
	close(e.started)
	<-e.release
	return nil, nil
}

func (e *gateEngine) Run(context.Context, string) (*optimize.Outcome, error) {
	return &optimize.Outcome{}, nil
}

func TestLoopShutdownDoesNotCancelInFlightPersistence(t *testing.T) {
	engine := &gateEngine{started: make(chan struct{}), release: make(chan struct{})}
	cfg := testsupport.NewConfig(t)
	cfg.Periodic = config.Periodic{}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	st := testsupport.MustOpenStore(t, cfg)
	s := NewWithOptions(cfg, st, logging.NewNop(), nil, engine, stubSource{})

	runCtx, cancel := context.WithCancel(context.Background())
	id, err := s.TriggerOptimization(runCtx, "", 5)
	if err != nil {
		t.Fatalf("TriggerOptimization: %v", err)
	}
	if err := s.spawn(runCtx); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if err := s.assign(runCtx); err != nil {
		t.Fatalf("assign: %v", err)
	}

	// The loop context dies while the task is mid-execution; the outcome
	// must still reach the store.
	<-engine.started
	cancel()
	close(engine.release)

	ctx := context.Background()
	settle(ctx, s)

	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != swarm.TaskCompleted {
		t.Fatalf("task status = %s, want completed", task.Status)
	}
	results, err := s.RecentResults(ctx, 1)
	if err != nil {
		t.Fatalf("RecentResults: %v", err)
	}
	if len(results) != 1 || results[0].TaskID != id {
		t.Fatalf("expected persisted result for %s, got %+v", id, results)
	}
}

func TestShutdownDrainUnblocksCompletionPublishers(t *testing.T) {
	s := newScheduler(t, testsupport.WithWorkerPoolSize(1))
	ctx := context.Background()

	ghost := completion{
		droneID: "verification-ghost",
		result:  &swarm.Result{TaskID: "t-ghost", DroneID: "verification-ghost", Success: true},
	}
	for i := 0; i < cap(s.completions); i++ {
		s.completions <- ghost
	}
	// The only worker holds its slot while stuck publishing into the full
	// channel, as happens when the loop exits mid-tick.
	s.pool.dispatch(func() {
		s.completions <- ghost
	})

	done := make(chan struct{})
	go func() {
		s.awaitWorkers(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown wait stalled behind a blocked completion publisher")
	}
	if left := len(s.completions); left != 0 {
		t.Fatalf("expected all completions applied, %d left", left)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	s := newScheduler(t)
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("second Start must be a no-op: %v", err)
	}
	if !s.Running() {
		t.Fatal("expected running scheduler")
	}

	s.Stop()
	if s.Running() {
		t.Fatal("expected stopped scheduler")
	}
	s.Stop() // second Stop must not panic or block
}
