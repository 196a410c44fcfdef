// Package seeder generates synthetic application log events and feeds them
// through the same path the application uses: append to the store, then
// publish to the change feed.
package seeder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/estatehub/sentinel/internal/logging"
	"github.com/estatehub/sentinel/internal/messaging"
	"github.com/estatehub/sentinel/internal/models"
)

// Appender is the store surface the seeder writes to.
type Appender interface {
	Append(ctx context.Context, ev *models.LogEvent) error
}

type Seeder struct {
	store     Appender
	publisher messaging.Publisher
	subject   string
	faker     *gofakeit.Faker
	logger    *logging.Logger
}

// New creates a seeder. publisher may be nil when no feed is running. A seed
// of zero picks a random one.
func New(store Appender, publisher messaging.Publisher, seed int64, logger *logging.Logger) *Seeder {
	return &Seeder{
		store:     store,
		publisher: publisher,
		subject:   messaging.SubjectLogsAppended,
		faker:     gofakeit.New(seed),
		logger:    logger.With(logging.Component("seeder")),
	}
}

// WithSubject overrides the subject events are published on.
func (s *Seeder) WithSubject(subject string) *Seeder {
	s.subject = subject
	return s
}

// Generate builds events for a named pattern without writing them.
func (s *Seeder) Generate(pattern string, p Params) ([]*models.LogEvent, error) {
	pat, ok := Lookup(pattern)
	if !ok {
		return nil, fmt.Errorf("unknown pattern %q (available: %v)", pattern, Patterns())
	}
	if p.Count <= 0 {
		p.Count = 1
	}
	if p.Now.IsZero() {
		p.Now = time.Now().UTC()
	}
	return pat.Generate(s.faker, p), nil
}

// Seed appends each event and publishes it. It stops at the first failure
// and returns how many events were fully written.
func (s *Seeder) Seed(ctx context.Context, events []*models.LogEvent) (int, error) {
	for i, ev := range events {
		if err := s.store.Append(ctx, ev); err != nil {
			return i, fmt.Errorf("failed to append event %s: %w", ev.ID, err)
		}
		if s.publisher == nil {
			continue
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return i, fmt.Errorf("failed to marshal event %s: %w", ev.ID, err)
		}
		if err := s.publish(ctx, ev.ActorID, data); err != nil {
			return i, fmt.Errorf("failed to publish event %s: %w", ev.ID, err)
		}
	}
	s.logger.InfoContext(ctx, "Seeded events", logging.Count(len(events)))
	return len(events), nil
}

// publish keys by actor where the transport supports it, keeping one actor's
// burst on a single partition.
func (s *Seeder) publish(ctx context.Context, actorID string, data []byte) error {
	if kp, ok := s.publisher.(messaging.KeyedPublisher); ok && actorID != "" {
		return kp.PublishKeyed(ctx, s.subject, []byte(actorID), data)
	}
	return s.publisher.Publish(ctx, s.subject, data)
}

// Run generates and seeds a pattern in one step.
func (s *Seeder) Run(ctx context.Context, pattern string, p Params) ([]*models.LogEvent, error) {
	events, err := s.Generate(pattern, p)
	if err != nil {
		return nil, err
	}
	n, err := s.Seed(ctx, events)
	return events[:n], err
}
