package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"swarm/internal/logging"
	"swarm/internal/swarm"
)

// Periodic task identifier prefixes. The last-run query keys off these, so
// changing one restarts its schedule.
const (
	periodicVerificationPrefix = "periodic-verification"
	periodicCollectionPrefix   = "periodic-collection"
	periodicOptimizationPrefix = "periodic-optimization"
	periodicHealingPrefix      = "periodic-healing"
)

// Priorities for injected maintenance tasks. Kept below the default manual
// submission priority so operator-submitted work wins ties.
const (
	periodicVerificationPriority = 5
	periodicCollectionPriority   = 3
	periodicOptimizationPriority = 3
	periodicHealingPriority      = 4
)

// periodicTemplate describes one recurring maintenance task.
type periodicTemplate struct {
	prefix   string
	kind     swarm.Kind
	priority int
	payload  map[string]any
	interval time.Duration
}

func (s *Scheduler) templates() []periodicTemplate {
	periodic := s.cfg.Periodic
	return []periodicTemplate{
		{
			prefix:   periodicVerificationPrefix,
			kind:     swarm.KindVerification,
			priority: periodicVerificationPriority,
			interval: periodic.Verification(),
		},
		{
			prefix:   periodicCollectionPrefix,
			kind:     swarm.KindDataCollection,
			priority: periodicCollectionPriority,
			payload:  map[string]any{"collection_type": "all"},
			interval: periodic.Collection(),
		},
		{
			prefix:   periodicOptimizationPrefix,
			kind:     swarm.KindOptimization,
			priority: periodicOptimizationPriority,
			payload:  map[string]any{"optimization_type": "sweep"},
			interval: periodic.Optimization(),
		},
		{
			prefix:   periodicHealingPrefix,
			kind:     swarm.KindSelfHealing,
			priority: periodicHealingPriority,
			payload:  map[string]any{"healing_type": "general"},
			interval: periodic.Healing(),
		},
	}
}

// inject enqueues a fresh instance of each recurring template whose last run
// (completed or still queued) is older than its interval. A zero interval
// disables the template.
func (s *Scheduler) inject(ctx context.Context) error {
	now := time.Now().UTC()
	for _, tmpl := range s.templates() {
		if tmpl.interval <= 0 {
			continue
		}
		last, err := s.store.LastRunTimestamp(ctx, tmpl.prefix)
		if err != nil {
			return err
		}
		if last != nil && now.Sub(*last) < tmpl.interval {
			continue
		}

		id := fmt.Sprintf("%s-%s", tmpl.prefix, now.Format("20060102T150405.000000000Z"))
		task, err := swarm.NewTask(tmpl.kind, tmpl.priority, tmpl.payload, swarm.WithTaskID(id))
		if err != nil {
			return err
		}
		if err := s.store.EnqueueTask(ctx, task); err != nil {
			// Two injections inside one timestamp granule collide on the
			// id; the queued instance already covers the schedule.
			if errors.Is(err, swarm.ErrDuplicateTaskID) {
				continue
			}
			return err
		}
		s.logger.InfoContext(ctx, "periodic task injected",
			logging.String(logging.FieldTaskID, id),
			logging.String(logging.FieldKind, string(tmpl.kind)),
			logging.Duration("interval", tmpl.interval))
	}
	return nil
}
