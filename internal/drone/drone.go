package drone

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"swarm/internal/config"
	"swarm/internal/health"
	"swarm/internal/logging"
	"swarm/internal/optimize"
	"swarm/internal/store"
	"swarm/internal/swarm"
)

// Drone executes tasks of a single kind. Execute never returns an error:
// failures are captured into the Result so the scheduler treats them as
// data rather than control flow.
type Drone interface {
	ID() string
	Kind() swarm.Kind
	Execute(ctx context.Context, task *swarm.Task) *swarm.Result
}

// Deps carries the collaborators a drone may need. Individual drones use
// the subset relevant to their kind.
type Deps struct {
	Config *config.Config
	Store  *store.Store
	Health health.Source
	Engine optimize.Engine
	Logger *slog.Logger
}

// Factory maps a kind to its drone constructor. The scheduler holds one and
// consults it when spawn policy triggers.
type Factory map[swarm.Kind]func(id string, deps Deps) Drone

// NewFactory returns constructors for all built-in drone kinds.
func NewFactory() Factory {
	return Factory{
		swarm.KindVerification:   func(id string, deps Deps) Drone { return newVerifier(id, deps) },
		swarm.KindDataCollection: func(id string, deps Deps) Drone { return newCollector(id, deps) },
		swarm.KindSelfHealing:    func(id string, deps Deps) Drone { return newHealer(id, deps) },
		swarm.KindOptimization:   func(id string, deps Deps) Drone { return newOptimizer(id, deps) },
	}
}

// base carries the identity and run harness shared by all drone kinds.
type base struct {
	id     string
	kind   swarm.Kind
	deps   Deps
	logger *slog.Logger
}

func newBase(id string, kind swarm.Kind, deps Deps) base {
	return base{
		id:     id,
		kind:   kind,
		deps:   deps,
		logger: logging.NewComponentLogger(deps.Logger, "drone").With(
			logging.String(logging.FieldDroneID, id),
			logging.String(logging.FieldKind, string(kind)),
		),
	}
}

func (b *base) ID() string       { return b.id }
func (b *base) Kind() swarm.Kind { return b.kind }

// budget returns the soft execution budget from configuration.
func (b *base) budget() time.Duration {
	if b.deps.Config == nil || b.deps.Config.Swarm.TaskBudget <= 0 {
		return 2 * time.Minute
	}
	return b.deps.Config.Swarm.Budget()
}

// run executes fn under the drone's soft time budget and wraps the outcome
// into a Result. Panics are captured as fatal failures so the scheduler
// reclaims the drone instead of reusing it.
func (b *base) run(ctx context.Context, task *swarm.Task, fn func(ctx context.Context) (map[string]any, []string, error)) (result *swarm.Result) {
	start := time.Now()
	result = &swarm.Result{
		TaskID:      task.ID,
		DroneID:     b.id,
		CompletedAt: start.UTC(),
	}
	finish := func() {
		result.ExecutionTime = time.Since(start)
		result.CompletedAt = time.Now().UTC()
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			result.Success = false
			result.Data = map[string]any{
				"error": fmt.Sprintf("panic during execution: %v", recovered),
				"fatal": true,
			}
			result.Recommendations = nil
			finish()
			b.logger.ErrorContext(ctx, "drone panicked",
				logging.String(logging.FieldTaskID, task.ID),
				logging.Any("panic", recovered))
		}
	}()

	if task.Kind != b.kind {
		result.Data = map[string]any{
			"error": fmt.Sprintf("task kind %s does not match drone kind %s", task.Kind, b.kind),
		}
		finish()
		return result
	}

	runCtx, cancel := context.WithTimeout(ctx, b.budget())
	defer cancel()

	data, recommendations, err := fn(runCtx)
	if data == nil {
		data = map[string]any{}
	}
	if err != nil {
		data["error"] = err.Error()
		result.Success = false
	} else {
		result.Success = true
	}
	result.Data = data
	result.Recommendations = recommendations
	finish()

	b.logger.InfoContext(ctx, "task executed",
		logging.String(logging.FieldTaskID, task.ID),
		logging.Bool("success", result.Success),
		logging.Duration("execution_time", result.ExecutionTime))
	return result
}
