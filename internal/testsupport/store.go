package testsupport

import (
	"context"
	"testing"

	"swarm/internal/config"
	"swarm/internal/store"
	"swarm/internal/swarm"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// EnqueueTask builds and enqueues a task for tests using the provided store.
func EnqueueTask(t testing.TB, st *store.Store, kind swarm.Kind, priority int, opts ...swarm.TaskOption) *swarm.Task {
	t.Helper()

	task, err := swarm.NewTask(kind, priority, nil, opts...)
	if err != nil {
		t.Fatalf("swarm.NewTask: %v", err)
	}
	if err := st.EnqueueTask(context.Background(), task); err != nil {
		t.Fatalf("store.EnqueueTask: %v", err)
	}
	return task
}
