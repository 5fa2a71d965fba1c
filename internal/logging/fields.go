package logging

// Standardized attribute keys used across the daemon so log consumers can
// rely on stable field names.
const (
	FieldComponent = "component"
	FieldTaskID    = "task_id"
	FieldDroneID   = "drone_id"
	FieldKind      = "kind"
	FieldStatus    = "status"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
)
