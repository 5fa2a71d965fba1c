package swarm

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the capability of a drone and the category of a task.
type Kind string

const (
	KindVerification   Kind = "verification"
	KindDataCollection Kind = "data_collection"
	KindSelfHealing    Kind = "self_healing"
	KindOptimization   Kind = "optimization"
)

var allKinds = []Kind{
	KindVerification,
	KindDataCollection,
	KindSelfHealing,
	KindOptimization,
}

var kindSet = func() map[Kind]struct{} {
	set := make(map[Kind]struct{}, len(allKinds))
	for _, kind := range allKinds {
		set[kind] = struct{}{}
	}
	return set
}()

// AllKinds returns the ordered list of known drone kinds.
func AllKinds() []Kind {
	cp := make([]Kind, len(allKinds))
	copy(cp, allKinds)
	return cp
}

// ParseKind converts a string into a known Kind.
func ParseKind(value string) (Kind, bool) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := kindSet[normalized]
	return normalized, ok
}

// DroneStatus represents the lifecycle of a drone instance.
type DroneStatus string

const (
	DroneIdle       DroneStatus = "idle"
	DroneWorking    DroneStatus = "working"
	DroneCompleted  DroneStatus = "completed"
	DroneFailed     DroneStatus = "failed"
	DroneTerminated DroneStatus = "terminated"
)

var droneTransitions = map[DroneStatus][]DroneStatus{
	DroneIdle:      {DroneWorking, DroneTerminated},
	DroneWorking:   {DroneCompleted, DroneFailed},
	DroneCompleted: {DroneIdle},
	DroneFailed:    {DroneIdle},
	// DroneTerminated is absorbing.
}

// ValidDroneTransition reports whether a drone status change follows the
// lifecycle edges. Terminated has no outgoing edges.
func ValidDroneTransition(from, to DroneStatus) bool {
	for _, next := range droneTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TaskStatus represents the lifecycle of a submitted task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskAssigned  TaskStatus = "assigned"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Task priority bounds. Higher values are dispatched first.
const (
	MinPriority = 1
	MaxPriority = 10
)

// Task is a unit of requested work. Immutable once enqueued; only the
// scheduler updates its status and assignment columns.
type Task struct {
	ID         string
	Kind       Kind
	Priority   int
	Payload    map[string]any
	Status     TaskStatus
	CreatedAt  time.Time
	Deadline   *time.Time
	RetryCount int
	MaxRetries int

	// Assignment bookkeeping, set by the scheduler when the task leaves
	// the pending queue.
	DroneID    string
	AssignedAt *time.Time
}

// TaskOption customizes optional Task fields at construction time.
type TaskOption func(*Task)

// WithTaskID supplies an explicit task identifier instead of a generated one.
func WithTaskID(id string) TaskOption {
	return func(t *Task) {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			t.ID = trimmed
		}
	}
}

// WithDeadline attaches a completion deadline to the task.
func WithDeadline(deadline time.Time) TaskOption {
	return func(t *Task) {
		d := deadline.UTC()
		t.Deadline = &d
	}
}

// WithMaxRetries sets the retry budget carried on the task record. The
// scheduler persists the field but does not resubmit failed tasks.
func WithMaxRetries(max int) TaskOption {
	return func(t *Task) {
		if max > 0 {
			t.MaxRetries = max
		}
	}
}

// NewTask validates inputs and builds a pending task. The identifier is
// generated when no explicit one is supplied via WithTaskID.
func NewTask(kind Kind, priority int, payload map[string]any, opts ...TaskOption) (*Task, error) {
	if _, ok := kindSet[kind]; !ok {
		return nil, ErrUnknownKind
	}
	if priority < MinPriority || priority > MaxPriority {
		return nil, ErrInvalidPriority
	}
	task := &Task{
		Kind:      kind,
		Priority:  priority,
		Payload:   payload,
		Status:    TaskPending,
		CreatedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(task)
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	return task, nil
}

// PayloadString returns the payload value for key as a string, or fallback
// when absent or not a string.
func (t *Task) PayloadString(key, fallback string) string {
	if t == nil || t.Payload == nil {
		return fallback
	}
	if value, ok := t.Payload[key].(string); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

// Result is the immutable outcome of one task execution attempt. Created
// exactly once per attempt by the drone that executed the task.
type Result struct {
	TaskID          string
	DroneID         string
	Success         bool
	Data            map[string]any
	ExecutionTime   time.Duration
	CompletedAt     time.Time
	Recommendations []string
}

// ErrorMessage extracts the captured error string from a failed result.
func (r *Result) ErrorMessage() string {
	if r == nil || r.Data == nil {
		return ""
	}
	if msg, ok := r.Data["error"].(string); ok {
		return msg
	}
	return ""
}

// Fatal reports whether the execution ended in an unrecoverable drone fault.
// The scheduler terminates the drone instead of returning it to the idle pool.
func (r *Result) Fatal() bool {
	if r == nil || r.Data == nil {
		return false
	}
	fatal, ok := r.Data["fatal"].(bool)
	return ok && fatal
}

// DroneRecord is the registry and persistence snapshot of a drone instance.
type DroneRecord struct {
	ID             string
	Kind           Kind
	Status         DroneStatus
	CreatedAt      time.Time
	LastActivity   time.Time
	TasksCompleted int
	TasksFailed    int
	TotalExecution time.Duration
	CurrentTaskID  string
}

// NewDroneID generates a drone identifier carrying its kind for readability
// in logs and persisted rows.
func NewDroneID(kind Kind) string {
	return string(kind) + "-" + uuid.NewString()[:8]
}
