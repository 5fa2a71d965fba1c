package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"swarm/internal/config"
	"swarm/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectBody     string
		expectTags     string
		expectPriority string
	}{
		{
			name:        "swarm started",
			event:       notifications.EventSwarmStarted,
			payload:     notifications.Payload{"pool_size": "10"},
			expectTitle: "Swarm - Started",
			expectBody:  "Swarm scheduler started (pool size 10)",
			expectTags:  "swarm,lifecycle,started",
		},
		{
			name:  "task failed",
			event: notifications.EventTaskFailed,
			payload: notifications.Payload{
				"task_id": "t1",
				"kind":    "verification",
				"error":   "boom",
			},
			expectTitle:    "Swarm - Task Failed",
			expectBody:     "Task t1 (verification) failed: boom",
			expectTags:     "swarm,task,failed",
			expectPriority: "high",
		},
		{
			name:  "health degraded",
			event: notifications.EventHealthDegraded,
			payload: notifications.Payload{
				"health_score": "45",
				"issues":       "disk headroom low",
			},
			expectTitle:    "Swarm - Health Degraded",
			expectBody:     "Health score dropped to 45\ndisk headroom low",
			expectTags:     "swarm,health,alert",
			expectPriority: "high",
		},
		{
			name:           "test notification",
			event:          notifications.EventTest,
			expectTitle:    "Swarm - Test",
			expectBody:     "Notification system test",
			expectTags:     "swarm,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var gotTitle, gotBody, gotTags, gotPriority string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotTitle = r.Header.Get("Title")
				gotTags = r.Header.Get("Tags")
				gotPriority = r.Header.Get("Priority")
				body, _ := io.ReadAll(r.Body)
				gotBody = string(body)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			svc := notifications.NewService(&cfg)

			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("Publish failed: %v", err)
			}
			if gotTitle != tc.expectTitle {
				t.Errorf("Title = %q, want %q", gotTitle, tc.expectTitle)
			}
			if gotBody != tc.expectBody {
				t.Errorf("Body = %q, want %q", gotBody, tc.expectBody)
			}
			if gotTags != tc.expectTags {
				t.Errorf("Tags = %q, want %q", gotTags, tc.expectTags)
			}
			if gotPriority != tc.expectPriority {
				t.Errorf("Priority = %q, want %q", gotPriority, tc.expectPriority)
			}
		})
	}
}

func TestNtfyServiceRespectsCategoryToggles(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Lifecycle = false
	cfg.Notifications.TaskFailures = false
	cfg.Notifications.HealthAlerts = false
	svc := notifications.NewService(&cfg)

	ctx := context.Background()
	for _, event := range []notifications.Event{
		notifications.EventSwarmStarted,
		notifications.EventSwarmStopped,
		notifications.EventTaskFailed,
		notifications.EventHealthDegraded,
	} {
		if err := svc.Publish(ctx, event, nil); err != nil {
			t.Fatalf("Publish(%s) failed: %v", event, err)
		}
	}
	if requests != 0 {
		t.Fatalf("expected disabled categories to be dropped, got %d requests", requests)
	}

	if err := svc.Publish(ctx, notifications.EventTest, nil); err != nil {
		t.Fatalf("Publish(test) failed: %v", err)
	}
	if requests != 1 {
		t.Fatalf("test event must always publish, got %d requests", requests)
	}
}

func TestNtfyServiceSurfacesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)

	err := svc.Publish(context.Background(), notifications.EventTest, nil)
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected 429 error, got %v", err)
	}
}
