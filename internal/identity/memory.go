package identity

import (
	"context"
	"sync"
)

// InMemoryDirectory is a Directory for development and tests. Unknown actors
// are created enabled on first sight unless Strict is set.
type InMemoryDirectory struct {
	mu       sync.Mutex
	disabled map[string]string
	known    map[string]bool
	calls    int

	// Strict makes unknown actors return ErrActorNotFound.
	Strict bool

	// Err, when set, is returned by every call.
	Err error
}

func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{
		disabled: make(map[string]string),
		known:    make(map[string]bool),
	}
}

// Add registers an enabled actor.
func (d *InMemoryDirectory) Add(actorID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.known[actorID] = true
}

func (d *InMemoryDirectory) Disable(ctx context.Context, actorID, by string) (DisableResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls++
	if d.Err != nil {
		return 0, d.Err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if d.Strict && !d.known[actorID] {
		return 0, ErrActorNotFound
	}
	d.known[actorID] = true

	if _, ok := d.disabled[actorID]; ok {
		return AlreadyDisabled, nil
	}
	d.disabled[actorID] = by
	return Disabled, nil
}

// IsDisabled reports the actor's access state.
func (d *InMemoryDirectory) IsDisabled(actorID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.disabled[actorID]
	return ok
}

// Calls returns how many Disable calls were made.
func (d *InMemoryDirectory) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}
