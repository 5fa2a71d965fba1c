package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"swarm/internal/config"
	"swarm/internal/drone"
	"swarm/internal/health"
	"swarm/internal/logging"
	"swarm/internal/notifications"
	"swarm/internal/optimize"
	"swarm/internal/store"
	"swarm/internal/swarm"
)

// degradedHealthScore is the verification score below which a health alert
// notification is published.
const degradedHealthScore = 60

// completion reports one finished task execution back to the control loop.
type completion struct {
	droneID string
	result  *swarm.Result
}

// Scheduler owns the swarm control loop and the drone registry. Construct
// one per process and drive it with Start/Stop; callers submit work through
// SubmitTask and its convenience wrappers.
type Scheduler struct {
	cfg      *config.Config
	store    *store.Store
	logger   *slog.Logger
	notifier notifications.Service
	factory  drone.Factory
	deps     drone.Deps

	registry    *registry
	pool        *workerPool
	completions chan completion

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds a scheduler with the default notifier, heuristic optimization
// engine, and live system health source.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) *Scheduler {
	return NewWithOptions(cfg, st, logger,
		notifications.NewService(cfg),
		optimize.NewHeuristicEngine(st, logger),
		health.NewSystemSource())
}

// NewWithOptions builds a scheduler with explicit collaborators (used in
// tests and by hosts that bring their own engine).
func NewWithOptions(
	cfg *config.Config,
	st *store.Store,
	logger *slog.Logger,
	notifier notifications.Service,
	engine optimize.Engine,
	source health.Source,
) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Scheduler{
		cfg:      cfg,
		store:    st,
		logger:   logging.NewComponentLogger(logger, "scheduler"),
		notifier: notifier,
		factory:  drone.NewFactory(),
		registry: newRegistry(),
		pool:     newWorkerPool(cfg.Swarm.WorkerPoolSize),
	}
	s.deps = drone.Deps{
		Config: cfg,
		Store:  st,
		Health: source,
		Engine: engine,
		Logger: logger,
	}
	s.completions = make(chan completion, cfg.Swarm.WorkerPoolSize+1)
	return s
}

// Start launches the control loop. Calling Start on a running scheduler is
// a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	done := s.done
	s.mu.Unlock()

	go s.loop(runCtx, done)

	s.publish(ctx, notifications.EventSwarmStarted, notifications.Payload{
		"pool_size": strconv.Itoa(s.cfg.Swarm.WorkerPoolSize),
	})
	s.logger.InfoContext(ctx, "swarm scheduler started",
		logging.Int("worker_pool_size", s.cfg.Swarm.WorkerPoolSize),
		logging.Duration("tick_interval", s.cfg.Swarm.Tick()))
	return nil
}

// Stop halts the loop, waits for in-flight executions, and applies their
// completions. Calling Stop on a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	<-done

	// Apply completions that land after the loop exits so the final drone
	// counters are persisted.
	ctx, cancelPersist := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPersist()
	s.awaitWorkers(ctx)

	s.publish(ctx, notifications.EventSwarmStopped, nil)
	s.logger.Info("swarm scheduler stopped")
}

// Running reports whether the control loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.Swarm.Tick())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-s.completions:
			s.handleCompletion(ctx, c)
		case <-ticker.C:
			if err := s.safeTick(ctx); err != nil {
				s.logger.ErrorContext(ctx, "control loop tick failed; backing off",
					logging.Error(err),
					logging.Duration("backoff", s.cfg.Swarm.Backoff()))
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.cfg.Swarm.Backoff()):
				}
			}
		}
	}
}

// safeTick shields the loop from a panicking tick step.
func (s *Scheduler) safeTick(ctx context.Context) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("tick panic: %v", recovered)
		}
	}()
	return s.tick(ctx)
}

// tick performs one control-loop pass: spawn, assign, reap, inject.
func (s *Scheduler) tick(ctx context.Context) error {
	s.drainCompletions(ctx)
	if err := s.spawn(ctx); err != nil {
		return fmt.Errorf("spawn: %w", err)
	}
	if err := s.assign(ctx); err != nil {
		return fmt.Errorf("assign: %w", err)
	}
	if err := s.reap(ctx); err != nil {
		return fmt.Errorf("reap: %w", err)
	}
	if err := s.inject(ctx); err != nil {
		return fmt.Errorf("periodic injection: %w", err)
	}
	return nil
}

// spawn creates one drone per kind whose policy triggers: the live count is
// under max_instances and either the kind has no drones at all or the
// pending backlog exceeds the idle capacity by at least spawn_threshold.
func (s *Scheduler) spawn(ctx context.Context) error {
	pending, err := s.store.PendingCountByKind(ctx)
	if err != nil {
		return err
	}
	for _, kind := range swarm.AllKinds() {
		policy := s.cfg.Policy(string(kind))
		live := s.registry.liveCount(kind)
		if live >= policy.MaxInstances {
			continue
		}
		idle := s.registry.idleCount(kind)
		if live != 0 && pending[kind]-idle < policy.SpawnThreshold {
			continue
		}

		construct, ok := s.factory[kind]
		if !ok {
			continue
		}
		id := swarm.NewDroneID(kind)
		d := construct(id, s.deps)
		now := time.Now().UTC()
		record := &swarm.DroneRecord{
			ID:           id,
			Kind:         kind,
			Status:       swarm.DroneIdle,
			CreatedAt:    now,
			LastActivity: now,
		}
		s.registry.add(d, record)
		if err := s.store.UpsertDrone(ctx, record); err != nil {
			return err
		}
		s.logger.InfoContext(ctx, "drone spawned",
			logging.String(logging.FieldDroneID, id),
			logging.String(logging.FieldKind, string(kind)))
	}
	return nil
}

// assign pulls the highest-priority pending task for each idle drone and
// dispatches it onto the worker pool. A slot is reserved before the queue
// is touched so a saturated pool never strands a dequeued task.
func (s *Scheduler) assign(ctx context.Context) error {
	for _, entry := range s.registry.idleDrones() {
		if !s.pool.tryAcquire() {
			// Saturated. Remaining idle drones are reconsidered next tick.
			return nil
		}
		task, err := s.store.DequeueCandidate(ctx, entry.record.Kind, entry.record.ID)
		if err != nil {
			s.pool.release()
			return err
		}
		if task == nil {
			s.pool.release()
			continue
		}
		if err := s.registry.assign(entry.record.ID, task.ID); err != nil {
			s.pool.release()
			s.logger.ErrorContext(ctx, "assignment bookkeeping failed",
				logging.String(logging.FieldDroneID, entry.record.ID),
				logging.String(logging.FieldTaskID, task.ID),
				logging.Error(err))
			continue
		}
		if err := s.store.UpsertDrone(ctx, entry.record); err != nil {
			s.logger.WarnContext(ctx, "persist drone assignment failed",
				logging.String(logging.FieldDroneID, entry.record.ID),
				logging.Error(err))
		}
		s.logger.InfoContext(ctx, "task assigned",
			logging.String(logging.FieldTaskID, task.ID),
			logging.String(logging.FieldDroneID, entry.record.ID),
			logging.Int("priority", task.Priority))

		// In-flight execution and its persistence must survive loop
		// shutdown: the drone's own time budget is the only cancellation
		// that applies to a dispatched task.
		d := entry.drone
		execCtx := context.WithoutCancel(ctx)
		s.pool.dispatch(func() {
			s.execute(execCtx, d, task)
		})
	}
	return nil
}

// execute runs on a worker-pool goroutine. It performs the actual task
// execution, persists the result in its own transactions, and reports the
// completion to the loop.
func (s *Scheduler) execute(ctx context.Context, d drone.Drone, task *swarm.Task) {
	result := d.Execute(ctx, task)

	if err := s.store.InsertResult(ctx, result); err != nil {
		s.logger.ErrorContext(ctx, "persist result failed",
			logging.String(logging.FieldTaskID, task.ID),
			logging.Error(err))
	}
	if err := s.store.CompleteTask(ctx, task.ID, result.Success); err != nil {
		s.logger.ErrorContext(ctx, "finalize task failed",
			logging.String(logging.FieldTaskID, task.ID),
			logging.Error(err))
	}

	if !result.Success {
		s.publish(ctx, notifications.EventTaskFailed, notifications.Payload{
			"task_id": task.ID,
			"kind":    string(task.Kind),
			"error":   result.ErrorMessage(),
		})
	}
	s.maybePublishHealthAlert(ctx, task, result)

	s.completions <- completion{droneID: d.ID(), result: result}
}

// handleCompletion applies one execution outcome to the registry and
// persists the updated drone row.
func (s *Scheduler) handleCompletion(ctx context.Context, c completion) {
	record, err := s.registry.recordOutcome(c.droneID, c.result)
	if err != nil {
		s.logger.ErrorContext(ctx, "completion bookkeeping failed",
			logging.String(logging.FieldDroneID, c.droneID),
			logging.Error(err))
		return
	}
	if err := s.store.UpsertDrone(ctx, &record); err != nil {
		s.logger.WarnContext(ctx, "persist drone outcome failed",
			logging.String(logging.FieldDroneID, c.droneID),
			logging.Error(err))
	}
}

// awaitWorkers blocks until every pool slot is released, applying
// completions as they arrive. A worker publishes its completion while still
// holding its slot, so waiting without draining can stall forever behind a
// full channel.
func (s *Scheduler) awaitWorkers(ctx context.Context) {
	idle := make(chan struct{})
	go func() {
		s.pool.wait()
		close(idle)
	}()
	for {
		select {
		case c := <-s.completions:
			s.handleCompletion(ctx, c)
		case <-idle:
			s.drainCompletions(ctx)
			return
		}
	}
}

func (s *Scheduler) drainCompletions(ctx context.Context) {
	for {
		select {
		case c := <-s.completions:
			s.handleCompletion(ctx, c)
		default:
			return
		}
	}
}

// reap removes terminated drones from the registry and transitions idle
// drones past the idle timeout to terminated for removal next pass.
func (s *Scheduler) reap(ctx context.Context) error {
	for _, id := range s.registry.terminatedIDs() {
		s.registry.remove(id)
		if err := s.store.DeleteDrone(ctx, id); err != nil {
			return err
		}
		s.logger.InfoContext(ctx, "drone reclaimed",
			logging.String(logging.FieldDroneID, id))
	}

	cutoff := time.Now().UTC().Add(-s.cfg.Swarm.IdleCutoff())
	for _, id := range s.registry.idleSince(cutoff) {
		if err := s.registry.transition(id, swarm.DroneTerminated); err != nil {
			s.logger.ErrorContext(ctx, "idle reap transition failed",
				logging.String(logging.FieldDroneID, id),
				logging.Error(err))
			continue
		}
		if entry, ok := s.registry.get(id); ok {
			if err := s.store.UpsertDrone(ctx, entry.record); err != nil {
				return err
			}
		}
		s.logger.InfoContext(ctx, "idle drone terminated",
			logging.String(logging.FieldDroneID, id),
			logging.String(logging.FieldStatus, string(swarm.DroneTerminated)),
			logging.Duration("idle_timeout", s.cfg.Swarm.IdleCutoff()))
	}
	return nil
}

// maybePublishHealthAlert raises a notification when a verification result
// carries a degraded health score.
func (s *Scheduler) maybePublishHealthAlert(ctx context.Context, task *swarm.Task, result *swarm.Result) {
	if task.Kind != swarm.KindVerification || result.Data == nil {
		return
	}
	score, ok := result.Data["health_score"].(int)
	if !ok || score >= degradedHealthScore {
		return
	}
	issues, _ := result.Data["issues"].([]string)
	s.publish(ctx, notifications.EventHealthDegraded, notifications.Payload{
		"health_score": strconv.Itoa(score),
		"issues":       strings.Join(issues, "\n"),
	})
}

func (s *Scheduler) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, event, payload); err != nil {
		s.logger.WarnContext(ctx, "notification publish failed",
			logging.String("event", string(event)),
			logging.Error(err))
	}
}
