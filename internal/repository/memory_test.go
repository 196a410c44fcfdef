package repository

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatehub/sentinel/internal/models"
)

func event(id string, t models.EventType, action, actor string, at time.Time) *models.LogEvent {
	return &models.LogEvent{ID: id, Type: t, Action: action, ActorID: actor, CreatedAt: at}
}

func TestInMemoryStore_FindByActor(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	now := time.Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(ctx, event(fmt.Sprintf("now-%d", i), models.EventTypeError, "auth.login_failed", "u1", now.Add(-time.Duration(i)*time.Minute))))
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, store.Append(ctx, event(fmt.Sprintf("old-%d", i), models.EventTypeError, "auth.login_failed", "u1", now.Add(-15*time.Minute))))
	}
	require.NoError(t, store.Append(ctx, event("other-actor", models.EventTypeError, "auth.login_failed", "u2", now)))
	require.NoError(t, store.Append(ctx, event("info", models.EventTypeInfo, "auth.login", "u1", now)))
	require.NoError(t, store.Append(ctx, event("payment", models.EventTypeError, "payment.failed", "u1", now)))

	t.Run("window excludes older events", func(t *testing.T) {
		got, err := store.FindByActor(ctx, ActorQuery{ActorID: "u1", Since: now.Add(-10 * time.Minute), IncidentsOnly: true, Limit: 100})
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("without incident filter all types match", func(t *testing.T) {
		got, err := store.FindByActor(ctx, ActorQuery{ActorID: "u1", Since: now.Add(-10 * time.Minute), Limit: 100})
		require.NoError(t, err)
		assert.Len(t, got, 5)
	})

	t.Run("limit caps results newest first", func(t *testing.T) {
		got, err := store.FindByActor(ctx, ActorQuery{ActorID: "u1", Since: now.Add(-time.Hour), IncidentsOnly: true, Limit: 2})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "now-0", got[0].ID)
	})

	t.Run("unknown actor is zero, not an error", func(t *testing.T) {
		got, err := store.FindByActor(ctx, ActorQuery{ActorID: "nobody", Since: now.Add(-time.Hour), Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("cancelled context fails", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := store.FindByActor(cctx, ActorQuery{ActorID: "u1"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestInMemoryStore_AppendIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	ev := event("e1", models.EventTypeError, "auth.login_failed", "u1", time.Now())

	require.NoError(t, store.Append(ctx, ev))
	require.NoError(t, store.Append(ctx, ev))
	assert.Equal(t, 1, store.Len())
}

func TestInMemoryStore_ListBeforeAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	cutoff := time.Now().Add(-30 * 24 * time.Hour)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, event(fmt.Sprintf("old-%d", i), models.EventTypeInfo, "", "", cutoff.Add(-time.Duration(5-i)*time.Hour))))
	}
	require.NoError(t, store.Append(ctx, event("new", models.EventTypeInfo, "", "", time.Now())))

	batch, err := store.ListBefore(ctx, cutoff, 3)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, "old-0", batch[0].ID)
	assert.Equal(t, "old-2", batch[2].ID)

	n, err := store.DeleteBatch(ctx, []string{"old-0", "old-1", "old-2", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = store.DeleteBatch(ctx, []string{"old-0"})
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, 3, store.Len())
	_, err = store.Get("new")
	assert.NoError(t, err)
	_, err = store.Get("old-0")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryStore_Export(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	for i := 0; i < 4; i++ {
		require.NoError(t, store.Append(ctx, event(fmt.Sprintf("e%d", i), models.EventTypeInfo, "", "", time.Now())))
	}

	var buf bytes.Buffer
	n, err := store.Export(ctx, CollectionLogEvents, &buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	lines := 0
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		lines++
	}
	assert.Equal(t, 4, lines)

	_, err = store.Export(ctx, "users", &buf)
	assert.ErrorIs(t, err, ErrUnknownCollection)
}
