package logging

import (
	"log/slog"
	"time"
)

// Common field names for consistent logging across components.
const (
	FieldService   = "service"
	FieldComponent = "component"
	FieldRequestID = "request_id"
	FieldActorID   = "actor_id"
	FieldEventID   = "event_id"
	FieldAction    = "action"
	FieldDecision  = "decision"
	FieldCount     = "count"
	FieldJob       = "job"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// Component returns a slog attribute naming the emitting component.
func Component(name string) slog.Attr {
	return slog.String(FieldComponent, name)
}

// ActorID returns a slog attribute for the subject of an event.
func ActorID(id string) slog.Attr {
	return slog.String(FieldActorID, id)
}

// EventID returns a slog attribute for a log event ID.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// Action returns a slog attribute for an event action tag.
func Action(action string) slog.Attr {
	return slog.String(FieldAction, action)
}

// Decision returns a slog attribute for a remediation decision.
func Decision(d string) slog.Attr {
	return slog.String(FieldDecision, d)
}

// Count returns a slog attribute for an incident count.
func Count(n int) slog.Attr {
	return slog.Int(FieldCount, n)
}

// Job returns a slog attribute for a scheduled job name.
func Job(name string) slog.Attr {
	return slog.String(FieldJob, name)
}

// Method returns a slog attribute for the HTTP method.
func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

// Path returns a slog attribute for the HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status returns a slog attribute for the HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns a slog attribute for a duration in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns a slog attribute for an error. A nil error yields an empty value.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
