package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/estatehub/sentinel/internal/classifier"
	"github.com/estatehub/sentinel/internal/models"
)

// InMemoryStore is an EventStore for development and tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string]*models.LogEvent
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string]*models.LogEvent)}
}

func (s *InMemoryStore) Append(ctx context.Context, ev *models.LogEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[ev.ID]; exists {
		return nil
	}
	cp := *ev
	s.events[ev.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByActor(ctx context.Context, q ActorQuery) ([]*models.LogEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var out []*models.LogEvent
	for _, ev := range s.events {
		if ev.ActorID != q.ActorID || !ev.CreatedAt.After(q.Since) {
			continue
		}
		if q.IncidentsOnly && !isIncidentShaped(ev) {
			continue
		}
		cp := *ev
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *InMemoryStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.LogEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var out []*models.LogEvent
	for _, ev := range s.events {
		if ev.CreatedAt.Before(cutoff) {
			cp := *ev
			out = append(out, &cp)
		}
	}
	s.mu.RUnlock()

	sortOldestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) DeleteBatch(ctx context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for _, id := range ids {
		if _, ok := s.events[id]; ok {
			delete(s.events, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *InMemoryStore) Export(ctx context.Context, collection string, w io.Writer) (int, error) {
	if collection != CollectionLogEvents {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	s.mu.RLock()
	all := make([]*models.LogEvent, 0, len(s.events))
	for _, ev := range s.events {
		all = append(all, ev)
	}
	s.mu.RUnlock()
	sortOldestFirst(all)

	enc := json.NewEncoder(w)
	for i, ev := range all {
		if err := enc.Encode(ev); err != nil {
			return i, fmt.Errorf("failed to encode event %s: %w", ev.ID, err)
		}
	}
	return len(all), nil
}

// Get returns a copy of the event with id.
func (s *InMemoryStore) Get(id string) (*models.LogEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ev
	return &cp, nil
}

// Len returns the number of stored events.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// FindByAction returns every event tagged with action.
func (s *InMemoryStore) FindByAction(action string) []*models.LogEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.LogEvent
	for _, ev := range s.events {
		if ev.Action == action {
			cp := *ev
			out = append(out, &cp)
		}
	}
	sortOldestFirst(out)
	return out
}

func (s *InMemoryStore) Ping(ctx context.Context) error { return nil }

func (s *InMemoryStore) Close() error { return nil }

func isIncidentShaped(ev *models.LogEvent) bool {
	return (ev.Type == models.EventTypeWarning || ev.Type == models.EventTypeError) &&
		classifier.MatchesAction(ev.Action)
}

func sortOldestFirst(evs []*models.LogEvent) {
	sort.Slice(evs, func(i, j int) bool {
		if evs[i].CreatedAt.Equal(evs[j].CreatedAt) {
			return evs[i].ID < evs[j].ID
		}
		return evs[i].CreatedAt.Before(evs[j].CreatedAt)
	})
}

func sortNewestFirst(evs []*models.LogEvent) {
	sort.Slice(evs, func(i, j int) bool {
		if evs[i].CreatedAt.Equal(evs[j].CreatedAt) {
			return evs[i].ID > evs[j].ID
		}
		return evs[i].CreatedAt.After(evs[j].CreatedAt)
	})
}
