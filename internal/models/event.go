// Package models defines the log event record observed by the sentinel and the
// remediation record it writes back.
package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType is the severity class of a LogEvent.
type EventType string

const (
	EventTypeInfo    EventType = "info"
	EventTypeWarning EventType = "warning"
	EventTypeError   EventType = "error"
)

const (
	// PriorityP0 marks a critical event.
	PriorityP0 = "P0"

	// ActionAutoBlock tags the audit record written when an actor is disabled.
	ActionAutoBlock = "sentinel.auto_block"

	// UnknownActor is the placeholder actor used by callers that could not
	// attribute an event.
	UnknownActor = "unknown"
)

// LogEvent is an immutable application log record.
type LogEvent struct {
	ID        string         `json:"id" validate:"required"`
	Type      EventType      `json:"type" validate:"required,oneof=info warning error"`
	Action    string         `json:"action,omitempty" validate:"omitempty,max=256"`
	ActorID   string         `json:"actorId,omitempty" validate:"omitempty,max=256"`
	TargetID  string         `json:"targetId,omitempty" validate:"omitempty,max=256"`
	Priority  string         `json:"priority,omitempty"`
	Message   string         `json:"message,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt" validate:"required"`
}

// NewLogEvent returns an event with a fresh ID and the current UTC time.
func NewLogEvent(t EventType, action, actorID, message string) *LogEvent {
	return &LogEvent{
		ID:        uuid.New().String(),
		Type:      t,
		Action:    action,
		ActorID:   actorID,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
}

// NewRemediationRecord builds the audit event for an automatic block of target.
func NewRemediationRecord(sentinelID, target string, incidents int, window time.Duration) *LogEvent {
	ev := NewLogEvent(EventTypeWarning, ActionAutoBlock, sentinelID,
		"Automatically disabled actor after repeated security incidents")
	ev.TargetID = target
	ev.Metadata = map[string]any{
		"incidentsDetected": incidents,
		"timeWindow":        window.String(),
	}
	return ev
}
