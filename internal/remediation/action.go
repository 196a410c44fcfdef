package remediation

import (
	"github.com/estatehub/sentinel/internal/identity"
	"github.com/estatehub/sentinel/internal/models"
)

// Kind is the decision for one event.
type Kind int

const (
	KindNone Kind = iota
	KindAlert
	KindBlock
)

func (k Kind) String() string {
	switch k {
	case KindAlert:
		return "alert"
	case KindBlock:
		return "block"
	default:
		return "none"
	}
}

// Action is the result of Evaluate.
type Action struct {
	Kind    Kind
	ActorID string
	Count   int

	// Event is the triggering event for Alert and Block.
	Event *models.LogEvent
}

// Outcome reports what Execute did.
type Outcome struct {
	Action     Action
	Claimed    bool
	Disable    identity.DisableResult
	DisableErr error
	RecordID   string
	AuditErr   error
	Alerted    bool
}
