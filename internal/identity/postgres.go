package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDirectory disables actors directly in the identity database's users
// table with a conditional update, so concurrent callers race on a single row
// and exactly one of them observes Disabled.
type PostgresDirectory struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewPostgresDirectory(pool *pgxpool.Pool, timeout time.Duration) *PostgresDirectory {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PostgresDirectory{pool: pool, timeout: timeout}
}

func (d *PostgresDirectory) Disable(ctx context.Context, actorID, by string) (DisableResult, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	tag, err := d.pool.Exec(ctx, `
		UPDATE users
		SET disabled_at = NOW(), disabled_by = $2
		WHERE id = $1 AND deleted_at IS NULL AND disabled_at IS NULL`,
		actorID, by,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to disable user: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return Disabled, nil
	}

	var exists bool
	err = d.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND deleted_at IS NULL)`, actorID,
	).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return 0, ErrActorNotFound
	}
	return AlreadyDisabled, nil
}
