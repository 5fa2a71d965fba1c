// Package optimize defines the optimization engine boundary consumed by the
// optimization drone, plus a heuristic engine that tunes the local store and
// derives throughput suggestions from execution statistics.
package optimize
