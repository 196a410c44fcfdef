// Package repository stores LogEvents and answers the window, retention and
// export queries the sentinel runs against them.
package repository

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/estatehub/sentinel/internal/models"
)

// CollectionLogEvents is the only collection the sentinel owns.
const CollectionLogEvents = "log_events"

var (
	ErrNotFound          = errors.New("event not found")
	ErrUnknownCollection = errors.New("unknown collection")
)

// ActorQuery selects an actor's recent events.
type ActorQuery struct {
	ActorID string
	Limit   int

	// Since is exclusive: only events with CreatedAt > Since match.
	Since time.Time

	// IncidentsOnly restricts matches to warning/error events whose action
	// looks like an auth, login or signup tag.
	IncidentsOnly bool
}

// EventStore is the append-only event log.
type EventStore interface {
	Append(ctx context.Context, ev *models.LogEvent) error
	FindByActor(ctx context.Context, q ActorQuery) ([]*models.LogEvent, error)

	// ListBefore returns up to limit events created before cutoff, oldest first.
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.LogEvent, error)
	// DeleteBatch removes ids atomically and reports how many existed.
	// Missing ids are ignored.
	DeleteBatch(ctx context.Context, ids []string) (int, error)

	// Export writes every document of collection to w as NDJSON.
	Export(ctx context.Context, collection string, w io.Writer) (int, error)

	Ping(ctx context.Context) error
	Close() error
}
