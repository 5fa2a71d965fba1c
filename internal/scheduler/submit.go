package scheduler

import (
	"context"

	"swarm/internal/logging"
	"swarm/internal/swarm"
)

// SubmitTask validates and enqueues a task, returning its identifier.
// Fails with swarm.ErrInvalidPriority, swarm.ErrUnknownKind, or
// swarm.ErrDuplicateTaskID without mutating the queue.
func (s *Scheduler) SubmitTask(ctx context.Context, kind swarm.Kind, priority int, payload map[string]any, opts ...swarm.TaskOption) (string, error) {
	task, err := swarm.NewTask(kind, priority, payload, opts...)
	if err != nil {
		return "", err
	}
	if err := s.store.EnqueueTask(ctx, task); err != nil {
		return "", err
	}
	s.logger.InfoContext(ctx, "task submitted",
		logging.String(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldKind, string(kind)),
		logging.Int("priority", priority))
	return task.ID, nil
}

// TriggerVerification enqueues a full verification run.
func (s *Scheduler) TriggerVerification(ctx context.Context, priority int) (string, error) {
	return s.SubmitTask(ctx, swarm.KindVerification, priority, nil)
}

// TriggerDataCollection enqueues a collection run for the given type
// ("all" when empty).
func (s *Scheduler) TriggerDataCollection(ctx context.Context, collectionType string, priority int) (string, error) {
	var payload map[string]any
	if collectionType != "" {
		payload = map[string]any{"collection_type": collectionType}
	}
	return s.SubmitTask(ctx, swarm.KindDataCollection, priority, payload)
}

// TriggerHealing enqueues a self-healing run for the given type
// ("general" when empty).
func (s *Scheduler) TriggerHealing(ctx context.Context, healingType string, priority int) (string, error) {
	var payload map[string]any
	if healingType != "" {
		payload = map[string]any{"healing_type": healingType}
	}
	return s.SubmitTask(ctx, swarm.KindSelfHealing, priority, payload)
}

// TriggerOptimization enqueues an optimization run for the given type
// (a full sweep when empty).
func (s *Scheduler) TriggerOptimization(ctx context.Context, optimizationType string, priority int) (string, error) {
	var payload map[string]any
	if optimizationType != "" {
		payload = map[string]any{"optimization_type": optimizationType}
	}
	return s.SubmitTask(ctx, swarm.KindOptimization, priority, payload)
}
