// Package identity talks to the service that owns actor access state. The
// sentinel only ever moves an actor from enabled to disabled.
package identity

import (
	"context"
	"errors"
)

// ErrActorNotFound is terminal: the actor no longer exists.
var ErrActorNotFound = errors.New("actor not found")

// DisableResult reports what a disable call changed.
type DisableResult int

const (
	// Disabled means this call performed the enabled -> disabled transition.
	Disabled DisableResult = iota + 1
	// AlreadyDisabled means another caller got there first; nothing changed.
	AlreadyDisabled
)

func (r DisableResult) String() string {
	switch r {
	case Disabled:
		return "disabled"
	case AlreadyDisabled:
		return "already_disabled"
	default:
		return "unknown"
	}
}

// Directory disables actors. Implementations must be idempotent: disabling an
// already-disabled actor returns AlreadyDisabled and no error.
type Directory interface {
	Disable(ctx context.Context, actorID, by string) (DisableResult, error)
}
