// Package health reports process and host resource statistics consumed by
// the verification and data-collection drones: memory pressure, disk
// headroom, goroutine counts, and on-disk directory sizes.
package health
