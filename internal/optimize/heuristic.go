package optimize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"swarm/internal/health"
	"swarm/internal/logging"
	"swarm/internal/store"
)

// Optimization domains served by the heuristic engine.
const (
	DomainDatabase  = "database"
	DomainDispatch  = "dispatch"
	DomainExecution = "execution"
)

// ErrUnknownDomain is returned when a pass is requested for a domain the
// engine does not serve.
var ErrUnknownDomain = errors.New("optimize: unknown domain")

// Heuristic thresholds driving DomainsNeedingOptimization.
const (
	// databaseCompactBytes is the on-disk size past which the database
	// gets a checkpoint-and-vacuum pass.
	databaseCompactBytes int64 = 256 << 20
	// pendingBacklogThreshold is the pending-task count past which
	// dispatch tuning suggestions are produced.
	pendingBacklogThreshold = 50
	// slowExecutionMS flags a kind whose average execution time suggests
	// its checks are doing too much work per task.
	slowExecutionMS = 30_000
	// failureRateThreshold flags a kind whose failure ratio warrants
	// investigation before tuning throughput.
	failureRateThreshold = 0.5
)

// HeuristicEngine derives optimization passes from the swarm's own
// persisted statistics. It is the default Engine wired by the daemon.
type HeuristicEngine struct {
	store  *store.Store
	logger *slog.Logger
}

// NewHeuristicEngine builds an engine over the swarm store.
func NewHeuristicEngine(st *store.Store, logger *slog.Logger) *HeuristicEngine {
	return &HeuristicEngine{
		store:  st,
		logger: logging.NewComponentLogger(logger, "optimize"),
	}
}

// Ping verifies the backing store answers queries.
func (e *HeuristicEngine) Ping(ctx context.Context) error {
	if e.store == nil {
		return errors.New("optimize: no store configured")
	}
	if _, err := e.store.PendingCount(ctx); err != nil {
		return fmt.Errorf("optimize: ping store: %w", err)
	}
	return nil
}

// DomainsNeedingOptimization inspects database size, queue backlog, and
// execution statistics, returning every domain over its threshold.
func (e *HeuristicEngine) DomainsNeedingOptimization(ctx context.Context) ([]string, error) {
	var domains []string

	size, err := health.FileSize(e.store.Path())
	if err != nil {
		return nil, fmt.Errorf("optimize: stat database: %w", err)
	}
	if size > databaseCompactBytes {
		domains = append(domains, DomainDatabase)
	}

	pending, err := e.store.PendingCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("optimize: pending count: %w", err)
	}
	if pending > pendingBacklogThreshold {
		domains = append(domains, DomainDispatch)
	}

	stats, err := e.store.KindStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("optimize: kind stats: %w", err)
	}
	for _, stat := range stats {
		if stat.AvgExecutionMS > slowExecutionMS {
			domains = append(domains, DomainExecution)
			break
		}
	}
	return domains, nil
}

// Run performs one pass over the named domain.
func (e *HeuristicEngine) Run(ctx context.Context, domain string) (*Outcome, error) {
	switch domain {
	case DomainDatabase:
		return e.optimizeDatabase(ctx)
	case DomainDispatch:
		return e.optimizeDispatch(ctx)
	case DomainExecution:
		return e.optimizeExecution(ctx)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDomain, domain)
	}
}

// optimizeDatabase checkpoints the WAL and refreshes planner statistics,
// vacuuming when the file has grown past the compaction threshold.
func (e *HeuristicEngine) optimizeDatabase(ctx context.Context) (*Outcome, error) {
	before, err := health.FileSize(e.store.Path())
	if err != nil {
		return nil, fmt.Errorf("optimize: stat database: %w", err)
	}

	if err := e.store.Optimize(ctx); err != nil {
		return nil, fmt.Errorf("optimize: database pass: %w", err)
	}
	vacuumed := false
	if before > databaseCompactBytes {
		if err := e.store.Vacuum(ctx); err != nil {
			return nil, fmt.Errorf("optimize: vacuum: %w", err)
		}
		vacuumed = true
	}

	after, err := health.FileSize(e.store.Path())
	if err != nil {
		return nil, fmt.Errorf("optimize: stat database: %w", err)
	}
	e.logger.InfoContext(ctx, "database optimization pass",
		logging.Int64("size_before", before),
		logging.Int64("size_after", after),
		logging.Bool("vacuumed", vacuumed))

	outcome := &Outcome{
		Domain:   DomainDatabase,
		Improved: after < before,
		Details: map[string]any{
			"size_before_bytes": before,
			"size_after_bytes":  after,
			"vacuumed":          vacuumed,
		},
	}
	if after > databaseCompactBytes {
		outcome.Suggestions = append(outcome.Suggestions,
			"database remains large after compaction; consider clearing completed task history")
	}
	return outcome, nil
}

// optimizeDispatch produces tuning suggestions from the current backlog.
// Advisory only; configuration is not rewritten at runtime.
func (e *HeuristicEngine) optimizeDispatch(ctx context.Context) (*Outcome, error) {
	pending, err := e.store.PendingCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("optimize: pending count: %w", err)
	}
	byKind, err := e.store.PendingCountByKind(ctx)
	if err != nil {
		return nil, fmt.Errorf("optimize: pending by kind: %w", err)
	}

	outcome := &Outcome{
		Domain: DomainDispatch,
		Details: map[string]any{
			"pending_tasks":   pending,
			"pending_by_kind": byKind,
		},
	}
	if pending > pendingBacklogThreshold {
		outcome.Suggestions = append(outcome.Suggestions,
			fmt.Sprintf("pending backlog is %d tasks; consider raising worker_pool_size", pending))
		for kind, count := range byKind {
			if count > pendingBacklogThreshold/2 {
				outcome.Suggestions = append(outcome.Suggestions,
					fmt.Sprintf("kind %s holds %d pending tasks; consider raising its max_instances", kind, count))
			}
		}
		sort.Strings(outcome.Suggestions)
	}
	return outcome, nil
}

// optimizeExecution flags kinds whose average runtime or failure ratio is
// out of band.
func (e *HeuristicEngine) optimizeExecution(ctx context.Context) (*Outcome, error) {
	stats, err := e.store.KindStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("optimize: kind stats: %w", err)
	}

	details := make(map[string]any, len(stats))
	var suggestions []string
	for kind, stat := range stats {
		details[string(kind)] = map[string]any{
			"attempts":         stat.Attempts,
			"failures":         stat.Failures,
			"avg_execution_ms": stat.AvgExecutionMS,
		}
		if stat.AvgExecutionMS > slowExecutionMS {
			suggestions = append(suggestions,
				fmt.Sprintf("kind %s averages %.0fms per task; review its check workload", kind, stat.AvgExecutionMS))
		}
		if stat.Attempts > 0 && float64(stat.Failures)/float64(stat.Attempts) > failureRateThreshold {
			suggestions = append(suggestions,
				fmt.Sprintf("kind %s failed %d of %d attempts; investigate before tuning throughput", kind, stat.Failures, stat.Attempts))
		}
	}
	sort.Strings(suggestions)

	return &Outcome{
		Domain:      DomainExecution,
		Details:     details,
		Suggestions: suggestions,
	}, nil
}
