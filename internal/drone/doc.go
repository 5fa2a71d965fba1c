// Package drone implements the swarm's worker agents. Each drone executes
// one task at a time: verification runs a battery of health checks,
// data-collection gathers metric records, self-healing performs repair
// actions, and optimization delegates into the optimization engine.
package drone
