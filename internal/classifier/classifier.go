// Package classifier decides whether a single log event is a security incident.
package classifier

import (
	"strings"

	"github.com/estatehub/sentinel/internal/models"
)

// Reason explains a classification result.
type Reason string

const (
	ReasonIncident      Reason = "incident"
	ReasonSeverity      Reason = "severity"
	ReasonNoAction      Reason = "no_action"
	ReasonActionPattern Reason = "action_pattern"
	ReasonNoActor       Reason = "no_actor"
	ReasonUnknownActor  Reason = "unknown_actor"
	ReasonSelf          Reason = "self"
)

type Classification struct {
	Incident bool
	Reason   Reason
}

// Classifier holds the sentinel's own actor identity so its audit records are
// never treated as incidents.
type Classifier struct {
	selfID string
}

func New(selfID string) *Classifier {
	return &Classifier{selfID: selfID}
}

// Classify is pure and total.
func (c *Classifier) Classify(ev *models.LogEvent) Classification {
	if ev == nil {
		return Classification{Reason: ReasonSeverity}
	}
	if ev.Type != models.EventTypeWarning && ev.Type != models.EventTypeError {
		return Classification{Reason: ReasonSeverity}
	}
	if ev.Action == "" {
		return Classification{Reason: ReasonNoAction}
	}
	if !MatchesAction(ev.Action) {
		return Classification{Reason: ReasonActionPattern}
	}

	actor := strings.TrimSpace(ev.ActorID)
	switch {
	case actor == "":
		return Classification{Reason: ReasonNoActor}
	case strings.EqualFold(actor, models.UnknownActor):
		return Classification{Reason: ReasonUnknownActor}
	case actor == c.selfID:
		return Classification{Reason: ReasonSelf}
	}

	return Classification{Incident: true, Reason: ReasonIncident}
}

// MatchesAction reports whether action looks like an auth, login or signup tag:
// "auth.*", "*login*" or "*signup*", case-insensitive.
func MatchesAction(action string) bool {
	a := strings.ToLower(action)
	return strings.HasPrefix(a, "auth.") ||
		strings.Contains(a, "login") ||
		strings.Contains(a, "signup")
}
