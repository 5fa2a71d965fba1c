package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"swarm/internal/config"
)

const (
	userAgent      = "Swarm-Go/0.1.0"
	defaultTimeout = 10 * time.Second
)

// Event enumerates the swarm milestones that produce notifications.
type Event string

const (
	EventSwarmStarted   Event = "swarm_started"
	EventSwarmStopped   Event = "swarm_stopped"
	EventTaskFailed     Event = "task_failed"
	EventHealthDegraded Event = "health_degraded"
	EventTest           Event = "test"
)

// Payload carries event-specific fields referenced by the message templates.
type Payload map[string]string

// Service defines the notification surface exposed to scheduler components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := cfg.Notifications.Timeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		lifecycle:    cfg.Notifications.Lifecycle,
		taskFailures: cfg.Notifications.TaskFailures,
		healthAlerts: cfg.Notifications.HealthAlerts,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	lifecycle    bool
	taskFailures bool
	healthAlerts bool
}

// Publish renders the event into an ntfy message and posts it. Events whose
// category is disabled in configuration are dropped silently.
func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled(event) {
		return nil
	}
	msg, ok := render(event, payload)
	if !ok {
		return fmt.Errorf("notifications: unknown event %q", event)
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) enabled(event Event) bool {
	switch event {
	case EventSwarmStarted, EventSwarmStopped:
		return n.lifecycle
	case EventTaskFailed:
		return n.taskFailures
	case EventHealthDegraded:
		return n.healthAlerts
	default:
		return true
	}
}

func render(event Event, payload Payload) (message, bool) {
	get := func(key, fallback string) string {
		if value := strings.TrimSpace(payload[key]); value != "" {
			return value
		}
		return fallback
	}

	switch event {
	case EventSwarmStarted:
		return message{
			title: "Swarm - Started",
			body:  fmt.Sprintf("Swarm scheduler started (pool size %s)", get("pool_size", "?")),
			tags:  []string{"swarm", "lifecycle", "started"},
		}, true
	case EventSwarmStopped:
		return message{
			title: "Swarm - Stopped",
			body:  "Swarm scheduler stopped",
			tags:  []string{"swarm", "lifecycle", "stopped"},
		}, true
	case EventTaskFailed:
		return message{
			title: "Swarm - Task Failed",
			body: fmt.Sprintf("Task %s (%s) failed: %s",
				get("task_id", "unknown"), get("kind", "unknown"), get("error", "no error message")),
			tags:     []string{"swarm", "task", "failed"},
			priority: "high",
		}, true
	case EventHealthDegraded:
		return message{
			title: "Swarm - Health Degraded",
			body: fmt.Sprintf("Health score dropped to %s\n%s",
				get("health_score", "?"), get("issues", "no issue details")),
			tags:     []string{"swarm", "health", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Swarm - Test",
			body:     "Notification system test",
			tags:     []string{"swarm", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
