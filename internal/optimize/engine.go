package optimize

import "context"

// Outcome is the uniform report of one engine optimization pass over a
// single domain.
type Outcome struct {
	Domain      string
	Improved    bool
	Details     map[string]any
	Suggestions []string
}

// Engine is the boundary the optimization drone delegates into. The drone
// wraps each Outcome into its task Result; the engine's internal heuristics
// stay behind this interface.
type Engine interface {
	// Ping reports whether the engine is reachable and able to serve
	// optimization requests.
	Ping(ctx context.Context) error

	// DomainsNeedingOptimization lists the domains whose current state
	// warrants a pass. Used by the generic sweep.
	DomainsNeedingOptimization(ctx context.Context) ([]string, error)

	// Run performs one optimization pass over the named domain.
	Run(ctx context.Context, domain string) (*Outcome, error)
}
