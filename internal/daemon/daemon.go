package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"swarm/internal/config"
	"swarm/internal/logging"
	"swarm/internal/scheduler"
	"swarm/internal/store"
)

// Daemon runs the swarm scheduler as a single-instance background service.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	sched  *scheduler.Scheduler

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Swarm        *scheduler.Status
	DatabasePath string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, sched *scheduler.Scheduler) (*Daemon, error) {
	if cfg == nil || st == nil || logger == nil || sched == nil {
		return nil, errors.New("daemon requires config, store, logger, and scheduler")
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "swarmd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		sched:    sched,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, reconciles stale state left by a previous
// run, and launches the scheduler.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another swarmd instance holds %s", d.lockPath)
	}

	if err := d.reconcile(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("startup reconciliation: %w", err)
	}

	if err := d.sched.Start(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("start scheduler: %w", err)
	}

	d.running.Store(true)
	d.logger.InfoContext(ctx, "swarm daemon started",
		logging.String("lock", d.lockPath),
		logging.String("database", d.store.Path()))
	return nil
}

// Stop halts the scheduler and releases the daemon lock. Safe to call on a
// stopped daemon.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.sched.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("swarm daemon stopped")
}

// Run starts the daemon and blocks until ctx is cancelled, then stops it.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	d.Stop()
	return nil
}

// Status reports daemon and swarm state.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	swarmStatus, err := d.sched.Status(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:      d.running.Load(),
		Swarm:        swarmStatus,
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
	}, nil
}

// reconcile returns tasks stranded in the assigned state by a previous run
// to the pending queue so they are re-dispatched. No drones exist at
// startup, so every assignment on disk is stale.
func (d *Daemon) reconcile(ctx context.Context) error {
	reclaimed, err := d.store.ReclaimStaleAssigned(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		d.logger.InfoContext(ctx, "stale assignments returned to queue",
			logging.Int64("reclaimed", reclaimed))
	}
	return nil
}
