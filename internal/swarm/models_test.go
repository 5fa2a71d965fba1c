package swarm_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"swarm/internal/swarm"
)

func TestParseKind(t *testing.T) {
	cases := []struct {
		input string
		want  swarm.Kind
		ok    bool
	}{
		{"verification", swarm.KindVerification, true},
		{" Data_Collection ", swarm.KindDataCollection, true},
		{"SELF_HEALING", swarm.KindSelfHealing, true},
		{"optimization", swarm.KindOptimization, true},
		{"ripping", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := swarm.ParseKind(tc.input)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ParseKind(%q) = %q, %v; want %q, %v", tc.input, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNewTaskValidation(t *testing.T) {
	if _, err := swarm.NewTask(swarm.KindVerification, 11, nil); !errors.Is(err, swarm.ErrInvalidPriority) {
		t.Fatalf("expected ErrInvalidPriority, got %v", err)
	}
	if _, err := swarm.NewTask(swarm.KindVerification, 0, nil); !errors.Is(err, swarm.ErrInvalidPriority) {
		t.Fatalf("expected ErrInvalidPriority for 0, got %v", err)
	}
	if _, err := swarm.NewTask("ripping", 5, nil); !errors.Is(err, swarm.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}

	task, err := swarm.NewTask(swarm.KindSelfHealing, 5, map[string]any{"healing_type": "general"})
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}
	if task.ID == "" {
		t.Fatal("expected generated task id")
	}
	if task.Status != swarm.TaskPending {
		t.Fatalf("expected pending status, got %s", task.Status)
	}
	if got := task.PayloadString("healing_type", "fallback"); got != "general" {
		t.Fatalf("PayloadString = %q", got)
	}
	if got := task.PayloadString("missing", "fallback"); got != "fallback" {
		t.Fatalf("PayloadString fallback = %q", got)
	}
}

func TestNewTaskOptions(t *testing.T) {
	deadline := time.Now().Add(time.Hour)
	task, err := swarm.NewTask(
		swarm.KindOptimization, 7, nil,
		swarm.WithTaskID("  custom-id  "),
		swarm.WithDeadline(deadline),
		swarm.WithMaxRetries(3),
	)
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}
	if task.ID != "custom-id" {
		t.Fatalf("expected trimmed explicit id, got %q", task.ID)
	}
	if task.Deadline == nil || !task.Deadline.Equal(deadline.UTC()) {
		t.Fatalf("unexpected deadline: %v", task.Deadline)
	}
	if task.MaxRetries != 3 {
		t.Fatalf("expected max retries 3, got %d", task.MaxRetries)
	}
}

func TestValidDroneTransition(t *testing.T) {
	allowed := []struct{ from, to swarm.DroneStatus }{
		{swarm.DroneIdle, swarm.DroneWorking},
		{swarm.DroneWorking, swarm.DroneCompleted},
		{swarm.DroneWorking, swarm.DroneFailed},
		{swarm.DroneCompleted, swarm.DroneIdle},
		{swarm.DroneFailed, swarm.DroneIdle},
		{swarm.DroneIdle, swarm.DroneTerminated},
	}
	for _, tc := range allowed {
		if !swarm.ValidDroneTransition(tc.from, tc.to) {
			t.Fatalf("expected %s -> %s to be valid", tc.from, tc.to)
		}
	}

	forbidden := []struct{ from, to swarm.DroneStatus }{
		{swarm.DroneWorking, swarm.DroneTerminated},
		{swarm.DroneTerminated, swarm.DroneIdle},
		{swarm.DroneIdle, swarm.DroneCompleted},
		{swarm.DroneCompleted, swarm.DroneWorking},
	}
	for _, tc := range forbidden {
		if swarm.ValidDroneTransition(tc.from, tc.to) {
			t.Fatalf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}
}

func TestNewDroneIDCarriesKind(t *testing.T) {
	id := swarm.NewDroneID(swarm.KindDataCollection)
	if !strings.HasPrefix(id, "data_collection-") {
		t.Fatalf("unexpected drone id: %s", id)
	}
	if id == swarm.NewDroneID(swarm.KindDataCollection) {
		t.Fatal("expected unique drone ids")
	}
}

func TestResultHelpers(t *testing.T) {
	failed := &swarm.Result{Data: map[string]any{"error": "boom", "fatal": true}}
	if failed.ErrorMessage() != "boom" {
		t.Fatalf("ErrorMessage = %q", failed.ErrorMessage())
	}
	if !failed.Fatal() {
		t.Fatal("expected fatal result")
	}

	ok := &swarm.Result{Data: map[string]any{"records": 3}}
	if ok.ErrorMessage() != "" || ok.Fatal() {
		t.Fatalf("unexpected helpers on success result: %#v", ok)
	}
}
