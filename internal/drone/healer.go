package drone

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"swarm/internal/logging"
	"swarm/internal/swarm"
)

// Healing types understood by the self-healing drone. HealingGeneral
// composes every repair category.
const (
	HealingStoreRepair  = "store_repair"
	HealingLogCleanup   = "log_cleanup"
	HealingCacheCleanup = "cache_cleanup"
	HealingGeneral      = "general"
)

// healingSuccessRateWarn is the success rate below which the drone
// recommends investigating the failed repairs.
const healingSuccessRateWarn = 0.75

// repairAction is one named, independently tracked repair step. Actions
// must be safe to attempt even when nothing is broken.
type repairAction struct {
	name     string
	category string
	run      func(ctx context.Context) error
}

// healerDrone performs repair actions selected by the task's healing_type.
type healerDrone struct {
	base
	// actions is populated at construction; tests may substitute entries
	// to exercise partial-failure reporting.
	actions []repairAction
}

func newHealer(id string, deps Deps) *healerDrone {
	h := &healerDrone{base: newBase(id, swarm.KindSelfHealing, deps)}
	h.actions = []repairAction{
		{name: "integrity_check", category: HealingStoreRepair, run: h.repairIntegrity},
		{name: "wal_checkpoint", category: HealingStoreRepair, run: h.repairCheckpoint},
		{name: "reclaim_stale_tasks", category: HealingStoreRepair, run: h.repairStaleTasks},
		{name: "log_retention_sweep", category: HealingLogCleanup, run: h.sweepLogs},
		{name: "temp_file_sweep", category: HealingCacheCleanup, run: h.sweepTempFiles},
		{name: "database_vacuum", category: HealingCacheCleanup, run: h.vacuum},
	}
	return h
}

func (h *healerDrone) Execute(ctx context.Context, task *swarm.Task) *swarm.Result {
	return h.run(ctx, task, func(ctx context.Context) (map[string]any, []string, error) {
		healingType := task.PayloadString("healing_type", HealingGeneral)

		var attempted, successful, failed []string
		for _, action := range h.actions {
			if healingType != HealingGeneral && action.category != healingType {
				continue
			}
			attempted = append(attempted, action.name)
			if err := h.runAction(ctx, action); err != nil {
				failed = append(failed, action.name)
				h.logger.WarnContext(ctx, "repair action failed",
					logging.String("action", action.name),
					logging.Error(err))
				continue
			}
			successful = append(successful, action.name)
		}

		successRate := 1.0
		if len(attempted) > 0 {
			successRate = float64(len(successful)) / float64(len(attempted))
		}

		data := map[string]any{
			"healing_type":       healingType,
			"repairs_attempted":  attempted,
			"repairs_successful": successful,
			"success_rate":       successRate,
		}
		return data, healingRecommendations(successRate, failed), nil
	})
}

// runAction shields the action loop from a panicking repair.
func (h *healerDrone) runAction(ctx context.Context, action repairAction) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()
	return action.run(ctx)
}

func (h *healerDrone) repairIntegrity(ctx context.Context) error {
	report, err := h.deps.Store.CheckHealth(ctx)
	if err != nil {
		return err
	}
	if report.DatabaseReadable && !report.IntegrityCheck {
		return fmt.Errorf("integrity check failed on %s", report.DBPath)
	}
	return nil
}

func (h *healerDrone) repairCheckpoint(ctx context.Context) error {
	return h.deps.Store.Optimize(ctx)
}

func (h *healerDrone) repairStaleTasks(ctx context.Context) error {
	cutoff := time.Now().Add(-h.deps.Config.Swarm.StaleCutoff())
	reclaimed, err := h.deps.Store.ReclaimStaleAssigned(ctx, cutoff)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		h.logger.InfoContext(ctx, "stale assignments returned to queue",
			logging.Int64("reclaimed", reclaimed))
	}
	return nil
}

func (h *healerDrone) sweepLogs(ctx context.Context) error {
	cfg := h.deps.Config
	removed := logging.CleanupOldLogs(h.logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{
			Dir:     cfg.Paths.LogDir,
			Pattern: "*.log",
			Exclude: []string{filepath.Join(cfg.Paths.LogDir, "swarm.log")},
		})
	if removed > 0 {
		h.logger.InfoContext(ctx, "old logs pruned", logging.Int("removed", removed))
	}
	return nil
}

// sweepTempFiles removes leftover temporary files under the data directory.
func (h *healerDrone) sweepTempFiles(ctx context.Context) error {
	matches, err := filepath.Glob(filepath.Join(h.deps.Config.Paths.DataDir, "*.tmp"))
	if err != nil {
		return err
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return nil
}

func (h *healerDrone) vacuum(ctx context.Context) error {
	return h.deps.Store.Vacuum(ctx)
}

func healingRecommendations(successRate float64, failed []string) []string {
	var out []string
	if successRate < healingSuccessRateWarn {
		out = append(out, fmt.Sprintf(
			"only %.0f%% of repairs succeeded; inspect the daemon log for repair errors", successRate*100))
	}
	for _, name := range failed {
		out = append(out, "repair "+name+" failed; it will be retried on the next healing pass")
	}
	return out
}
