package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/estatehub/sentinel/internal/models"
)

const exportPageSize = 1000

// PostgresStore implements EventStore on the log_events table.
type PostgresStore struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

// NewPostgresStore connects and pings the database.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresStore{pool: pool, queryTimeout: 5 * time.Second}, nil
}

// Pool exposes the connection pool for components sharing the database.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, ev *models.LogEvent) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	metadata, err := marshalMetadata(ev.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO log_events (id, type, action, actor_id, target_id, priority, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	_, err = s.pool.Exec(ctx, query,
		ev.ID, string(ev.Type), nullable(ev.Action), nullable(ev.ActorID), nullable(ev.TargetID),
		nullable(ev.Priority), ev.Message, metadata, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByActor(ctx context.Context, q ActorQuery) ([]*models.LogEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	query := `
		SELECT id, type, action, actor_id, target_id, priority, message, metadata, created_at
		FROM log_events
		WHERE actor_id = $1 AND created_at > $2`
	if q.IncidentsOnly {
		query += `
		  AND type IN ('warning', 'error')
		  AND (lower(action) LIKE 'auth.%' OR action ILIKE '%login%' OR action ILIKE '%signup%')`
	}
	query += `
		ORDER BY created_at DESC
		LIMIT $3`

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx, query, q.ActorID, q.Since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query actor events: %w", err)
	}
	return collectEvents(rows)
}

func (s *PostgresStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.LogEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	query := `
		SELECT id, type, action, actor_id, target_id, priority, message, metadata, created_at
		FROM log_events
		WHERE created_at < $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired events: %w", err)
	}
	return collectEvents(rows)
}

func (s *PostgresStore) DeleteBatch(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM log_events WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to delete events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit delete: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Export pages through log_events by (created_at, id) so the snapshot does not
// hold one long-running cursor.
func (s *PostgresStore) Export(ctx context.Context, collection string, w io.Writer) (int, error) {
	if collection != CollectionLogEvents {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	enc := json.NewEncoder(w)
	total := 0
	var lastCreated time.Time
	var lastID string

	for {
		page, err := s.exportPage(ctx, lastCreated, lastID)
		if err != nil {
			return total, err
		}
		for _, ev := range page {
			if err := enc.Encode(ev); err != nil {
				return total, fmt.Errorf("failed to encode event %s: %w", ev.ID, err)
			}
			total++
		}
		if len(page) < exportPageSize {
			return total, nil
		}
		last := page[len(page)-1]
		lastCreated, lastID = last.CreatedAt, last.ID
	}
}

func (s *PostgresStore) exportPage(ctx context.Context, afterCreated time.Time, afterID string) ([]*models.LogEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	query := `
		SELECT id, type, action, actor_id, target_id, priority, message, metadata, created_at
		FROM log_events
		WHERE (created_at, id) > ($1::timestamptz, $2::text)
		ORDER BY created_at ASC, id ASC
		LIMIT $3`

	rows, err := s.pool.Query(ctx, query, afterCreated, afterID, exportPageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to export events: %w", err)
	}
	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]*models.LogEvent, error) {
	defer rows.Close()

	var events []*models.LogEvent
	for rows.Next() {
		var (
			ev                              models.LogEvent
			evType                          string
			action, actor, target, priority *string
			metadata                        []byte
		)
		if err := rows.Scan(&ev.ID, &evType, &action, &actor, &target, &priority,
			&ev.Message, &metadata, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		ev.Type = models.EventType(evType)
		ev.Action = deref(action)
		ev.ActorID = deref(actor)
		ev.TargetID = deref(target)
		ev.Priority = deref(priority)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &ev.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata for %s: %w", ev.ID, err)
			}
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("event query timed out: %w", err)
		}
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return b, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
