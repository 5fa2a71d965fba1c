package drone

import (
	"context"
	"fmt"
	"time"

	"swarm/internal/health"
	"swarm/internal/logging"
	"swarm/internal/swarm"
)

// Collection types understood by the data-collection drone. An absent or
// unknown collection_type payload value falls back to CollectionAll.
const (
	CollectionSystemMetrics = "system_metrics"
	CollectionTaskAnalytics = "task_analytics"
	CollectionEffectiveness = "effectiveness"
	CollectionServiceUsage  = "service_usage"
	CollectionAll           = "all"
)

// Thresholds that turn collected records into recommendations.
const (
	databaseSizeThresholdBytes int64 = 512 << 20
	failedTaskThreshold              = 25
	avgExecutionThresholdMS          = 30_000
	logDirSizeThresholdBytes   int64 = 1 << 30
)

// collectorDrone gathers metric records from the store and the health
// provider. Individual source failures are tolerated: collection continues
// and the failure is recorded alongside the records.
type collectorDrone struct {
	base
}

func newCollector(id string, deps Deps) *collectorDrone {
	return &collectorDrone{base: newBase(id, swarm.KindDataCollection, deps)}
}

func (c *collectorDrone) Execute(ctx context.Context, task *swarm.Task) *swarm.Result {
	return c.run(ctx, task, func(ctx context.Context) (map[string]any, []string, error) {
		collectionType := task.PayloadString("collection_type", CollectionAll)

		var (
			records []map[string]any
			errs    []string
		)
		gather := func(name string, fn func(context.Context) ([]map[string]any, error)) {
			// A failing source may still have produced records; keep them.
			batch, err := fn(ctx)
			records = append(records, batch...)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
				c.logger.WarnContext(ctx, "collection source failed",
					logging.String("source", name),
					logging.Error(err))
			}
		}

		switch collectionType {
		case CollectionSystemMetrics:
			gather(CollectionSystemMetrics, c.systemMetrics)
		case CollectionTaskAnalytics:
			gather(CollectionTaskAnalytics, c.taskAnalytics)
		case CollectionEffectiveness:
			gather(CollectionEffectiveness, c.effectiveness)
		case CollectionServiceUsage:
			gather(CollectionServiceUsage, c.serviceUsage)
		default:
			gather(CollectionSystemMetrics, c.systemMetrics)
			gather(CollectionTaskAnalytics, c.taskAnalytics)
			gather(CollectionEffectiveness, c.effectiveness)
			gather(CollectionServiceUsage, c.serviceUsage)
			collectionType = CollectionAll
		}

		data := map[string]any{
			"collection_type": collectionType,
			"records":         records,
			"record_count":    len(records),
		}
		if len(errs) > 0 {
			data["collection_errors"] = errs
		}
		return data, thresholdRecommendations(records), nil
	})
}

// systemMetrics samples host resources and on-disk footprint.
func (c *collectorDrone) systemMetrics(ctx context.Context) ([]map[string]any, error) {
	var records []map[string]any

	if mem, err := c.deps.Health.Memory(); err == nil {
		records = append(records, map[string]any{
			"metric":          "memory",
			"total_bytes":     mem.TotalBytes,
			"available_bytes": mem.AvailableBytes,
			"used_percent":    mem.UsedPercent(),
		})
	}
	if disk, err := c.deps.Health.Disk(c.deps.Config.Paths.DataDir); err == nil {
		records = append(records, map[string]any{
			"metric":       "disk",
			"total_bytes":  disk.TotalBytes,
			"free_bytes":   disk.FreeBytes,
			"free_percent": disk.FreePercent(),
		})
	}
	records = append(records, map[string]any{
		"metric":     "goroutines",
		"goroutines": c.deps.Health.Goroutines(),
	})

	dbSize, err := health.FileSize(c.deps.Store.Path())
	if err != nil {
		return records, fmt.Errorf("stat database: %w", err)
	}
	records = append(records, map[string]any{
		"metric":     "database_size",
		"size_bytes": dbSize,
	})

	logSize, err := health.DirSize(c.deps.Config.Paths.LogDir)
	if err != nil {
		return records, fmt.Errorf("measure log dir: %w", err)
	}
	records = append(records, map[string]any{
		"metric":     "log_dir_size",
		"size_bytes": logSize,
	})
	return records, nil
}

// taskAnalytics summarizes queue composition and completion volume.
func (c *collectorDrone) taskAnalytics(ctx context.Context) ([]map[string]any, error) {
	stats, err := c.deps.Store.TaskStats(ctx)
	if err != nil {
		return nil, err
	}
	byKind, err := c.deps.Store.PendingCountByKind(ctx)
	if err != nil {
		return nil, err
	}
	completed, err := c.deps.Store.CompletedCount(ctx)
	if err != nil {
		return nil, err
	}

	record := map[string]any{
		"metric":          "task_analytics",
		"completed_tasks": completed,
	}
	for status, count := range stats {
		record[string(status)+"_tasks"] = count
	}
	pending := map[string]int{}
	for kind, count := range byKind {
		pending[string(kind)] = count
	}
	record["pending_by_kind"] = pending
	return []map[string]any{record}, nil
}

// effectiveness reports per-kind outcome statistics.
func (c *collectorDrone) effectiveness(ctx context.Context) ([]map[string]any, error) {
	stats, err := c.deps.Store.KindStats(ctx)
	if err != nil {
		return nil, err
	}
	var records []map[string]any
	for kind, stat := range stats {
		successRate := 1.0
		if stat.Attempts > 0 {
			successRate = float64(stat.Attempts-stat.Failures) / float64(stat.Attempts)
		}
		records = append(records, map[string]any{
			"metric":           "effectiveness",
			"kind":             string(kind),
			"attempts":         stat.Attempts,
			"failures":         stat.Failures,
			"success_rate":     successRate,
			"avg_execution_ms": stat.AvgExecutionMS,
		})
	}
	return records, nil
}

// serviceUsage reports per-drone utilization from the registry rows.
func (c *collectorDrone) serviceUsage(ctx context.Context) ([]map[string]any, error) {
	drones, err := c.deps.Store.ListDrones(ctx)
	if err != nil {
		return nil, err
	}
	var records []map[string]any
	for _, rec := range drones {
		records = append(records, map[string]any{
			"metric":             "drone_usage",
			"drone_id":           rec.ID,
			"kind":               string(rec.Kind),
			"status":             string(rec.Status),
			"tasks_completed":    rec.TasksCompleted,
			"tasks_failed":       rec.TasksFailed,
			"total_execution_ms": rec.TotalExecution.Milliseconds(),
		})
	}
	return records, nil
}

// thresholdRecommendations scans the collected records for breaches of the
// fixed thresholds and derives remediation suggestions.
func thresholdRecommendations(records []map[string]any) []string {
	var out []string
	for _, record := range records {
		switch record["metric"] {
		case "database_size":
			if size, ok := record["size_bytes"].(int64); ok && size > databaseSizeThresholdBytes {
				out = append(out, fmt.Sprintf(
					"database is %d MiB; run an optimization pass or clear completed history", size>>20))
			}
		case "log_dir_size":
			if size, ok := record["size_bytes"].(int64); ok && size > logDirSizeThresholdBytes {
				out = append(out, fmt.Sprintf(
					"log directory holds %d MiB; submit a self_healing task with healing_type=log_cleanup", size>>20))
			}
		case "task_analytics":
			if failed, ok := record["failed_tasks"].(int); ok && failed > failedTaskThreshold {
				out = append(out, fmt.Sprintf(
					"%d tasks have failed; review recent results for recurring errors", failed))
			}
		case "effectiveness":
			if avg, ok := record["avg_execution_ms"].(float64); ok && avg > avgExecutionThresholdMS {
				kind, _ := record["kind"].(string)
				out = append(out, fmt.Sprintf(
					"kind %s averages %s per task; review its workload", kind,
					(time.Duration(avg) * time.Millisecond).Round(time.Millisecond)))
			}
		}
	}
	return out
}
