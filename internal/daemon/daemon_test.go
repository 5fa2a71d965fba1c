package daemon_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"swarm/internal/config"
	"swarm/internal/daemon"
	"swarm/internal/logging"
	"swarm/internal/scheduler"
	"swarm/internal/store"
	"swarm/internal/swarm"
	"swarm/internal/testsupport"
)

func newDaemon(t *testing.T) (*daemon.Daemon, *store.Store, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Periodic = config.Periodic{}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	st := testsupport.MustOpenStore(t, cfg)
	sched := scheduler.New(cfg, st, logging.NewNop())
	d, err := daemon.New(cfg, st, logging.NewNop(), sched)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d, st, cfg
}

func TestStartStopAndStatus(t *testing.T) {
	d, _, _ := newDaemon(t)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	status, err := d.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || !status.Swarm.Running {
		t.Fatalf("expected running daemon, got %+v", status)
	}
	if status.LockFilePath == "" || status.DatabasePath == "" {
		t.Fatalf("expected populated paths, got %+v", status)
	}

	d.Stop()
	status, err = d.Status(ctx)
	if err != nil {
		t.Fatalf("Status after stop: %v", err)
	}
	if status.Running {
		t.Fatal("expected stopped daemon")
	}
	d.Stop() // idempotent
}

func TestSecondStartIsRejected(t *testing.T) {
	d, _, _ := newDaemon(t)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	if err := d.Start(ctx); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected already-running error, got %v", err)
	}
}

func TestStartupReclaimsStaleAssignments(t *testing.T) {
	d, st, _ := newDaemon(t)
	ctx := context.Background()

	task := testsupport.EnqueueTask(t, st, swarm.KindVerification, 5)
	if _, err := st.DequeueCandidate(ctx, swarm.KindVerification, "verification-dead"); err != nil {
		t.Fatalf("DequeueCandidate: %v", err)
	}
	stuck, err := st.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if stuck.Status != swarm.TaskAssigned {
		t.Fatalf("setup: task status = %s, want assigned", stuck.Status)
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	// Reconciliation is synchronous inside Start; the task must already be
	// back in the pending queue (or picked up again by the fresh swarm).
	deadline := time.Now().Add(5 * time.Second)
	for {
		reclaimed, err := st.GetTask(ctx, task.ID)
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if reclaimed.Status != swarm.TaskAssigned || reclaimed.DroneID != "verification-dead" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("task still assigned to dead drone: %+v", reclaimed)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
