// Package aggregator counts an actor's security incidents over a trailing
// window.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/estatehub/sentinel/internal/classifier"
	"github.com/estatehub/sentinel/internal/repository"
)

// ErrAggregation wraps every store failure, including timeouts. Callers must
// not read it as a zero count.
var ErrAggregation = errors.New("incident aggregation failed")

// Aggregator is the window counter.
type Aggregator struct {
	store      repository.EventStore
	classifier *classifier.Classifier
	timeout    time.Duration
	now        func() time.Time
}

// New returns an Aggregator whose store queries are bounded by timeout.
func New(store repository.EventStore, c *classifier.Classifier, timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Aggregator{store: store, classifier: c, timeout: timeout, now: time.Now}
}

// CountRecent returns how many qualifying incidents actorID produced with
// createdAt > now-window, reading at most limit records. Hitting the cap can
// only under-count.
func (a *Aggregator) CountRecent(ctx context.Context, actorID string, window time.Duration, limit int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	events, err := a.store.FindByActor(ctx, repository.ActorQuery{
		ActorID:       actorID,
		Since:         a.now().Add(-window),
		IncidentsOnly: true,
		Limit:         limit,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrAggregation, err)
	}

	count := 0
	for _, ev := range events {
		if a.classifier.Classify(ev).Incident {
			count++
		}
	}
	return count, nil
}
