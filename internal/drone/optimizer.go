package drone

import (
	"context"
	"fmt"

	"swarm/internal/logging"
	"swarm/internal/swarm"
)

// OptimizationSweep requests a pass over every domain the engine reports
// as needing optimization. Any other optimization_type value names a
// single engine domain.
const OptimizationSweep = "sweep"

// optimizerDrone delegates into the optimization engine and wraps each
// engine outcome into the uniform Result contract.
type optimizerDrone struct {
	base
}

func newOptimizer(id string, deps Deps) *optimizerDrone {
	return &optimizerDrone{base: newBase(id, swarm.KindOptimization, deps)}
}

func (o *optimizerDrone) Execute(ctx context.Context, task *swarm.Task) *swarm.Result {
	return o.run(ctx, task, func(ctx context.Context) (map[string]any, []string, error) {
		if o.deps.Engine == nil {
			return nil, nil, fmt.Errorf("no optimization engine configured")
		}
		if err := o.deps.Engine.Ping(ctx); err != nil {
			return nil, nil, fmt.Errorf("optimization engine unreachable: %w", err)
		}

		optimizationType := task.PayloadString("optimization_type", OptimizationSweep)

		domains := []string{optimizationType}
		if optimizationType == OptimizationSweep {
			needing, err := o.deps.Engine.DomainsNeedingOptimization(ctx)
			if err != nil {
				return nil, nil, fmt.Errorf("list domains: %w", err)
			}
			domains = needing
		}

		var (
			passes          []map[string]any
			recommendations []string
			improvements    int
			errs            []string
		)
		for _, domain := range domains {
			outcome, err := o.deps.Engine.Run(ctx, domain)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", domain, err))
				o.logger.WarnContext(ctx, "optimization pass failed",
					logging.String("domain", domain),
					logging.Error(err))
				continue
			}
			passes = append(passes, map[string]any{
				"domain":   outcome.Domain,
				"improved": outcome.Improved,
				"details":  outcome.Details,
			})
			if outcome.Improved {
				improvements++
			}
			recommendations = append(recommendations, outcome.Suggestions...)
		}

		data := map[string]any{
			"optimization_type":  optimizationType,
			"domains_optimized":  len(passes),
			"total_improvements": improvements,
			"passes":             passes,
		}
		if len(errs) > 0 {
			data["pass_errors"] = errs
		}
		return data, recommendations, nil
	})
}
