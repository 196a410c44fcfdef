package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatehub/sentinel/internal/logging"
	"github.com/estatehub/sentinel/internal/models"
	"github.com/estatehub/sentinel/internal/repository"
)

func seedAges(t *testing.T, store *repository.InMemoryStore, now time.Time, old, fresh int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < old; i++ {
		ev := models.NewLogEvent(models.EventTypeInfo, "page.view", "u1", "old")
		ev.ID = fmt.Sprintf("old-%04d", i)
		ev.CreatedAt = now.Add(-31*24*time.Hour - time.Duration(i)*time.Minute)
		require.NoError(t, store.Append(ctx, ev))
	}
	for i := 0; i < fresh; i++ {
		ev := models.NewLogEvent(models.EventTypeInfo, "page.view", "u1", "fresh")
		ev.ID = fmt.Sprintf("new-%04d", i)
		ev.CreatedAt = now.Add(-time.Duration(i) * time.Minute)
		require.NoError(t, store.Append(ctx, ev))
	}
}

func TestRetentionJob_DrainsBacklogInBatches(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := repository.NewInMemoryStore()
	seedAges(t, store, now, 700, 300)

	job := NewRetentionJob(store, DefaultRetentionConfig(), logging.Nop())
	job.now = func() time.Time { return now }

	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 500, res.Deleted)
	assert.Equal(t, now.Add(-30*24*time.Hour), res.Cutoff)
	assert.Equal(t, 500, store.Len())

	// Oldest go first.
	_, err = store.Get("old-0699")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	res, err = job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 200, res.Deleted)
	assert.Equal(t, 300, store.Len())

	res, err = job.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Deleted)
	assert.Zero(t, res.Found)
	assert.Equal(t, 300, store.Len())
}

func TestRetentionJob_BoundaryEventIsKept(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := repository.NewInMemoryStore()
	ev := models.NewLogEvent(models.EventTypeInfo, "page.view", "u1", "edge")
	ev.CreatedAt = now.Add(-30 * 24 * time.Hour)
	require.NoError(t, store.Append(context.Background(), ev))

	job := NewRetentionJob(store, DefaultRetentionConfig(), logging.Nop())
	job.now = func() time.Time { return now }

	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Deleted)
	assert.Equal(t, 1, store.Len())
}

type racingPurger struct {
	*repository.InMemoryStore
}

// DeleteBatch deletes everything first, as a concurrent run would have.
func (p racingPurger) DeleteBatch(ctx context.Context, ids []string) (int, error) {
	_, _ = p.InMemoryStore.DeleteBatch(ctx, ids)
	return p.InMemoryStore.DeleteBatch(ctx, ids)
}

func TestRetentionJob_AlreadyDeletedIsNoop(t *testing.T) {
	now := time.Now()
	store := repository.NewInMemoryStore()
	seedAges(t, store, now, 3, 0)

	job := NewRetentionJob(racingPurger{store}, DefaultRetentionConfig(), logging.Nop())
	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Found)
	assert.Zero(t, res.Deleted)
}

type failingPurger struct{ listErr, deleteErr error }

func (f failingPurger) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.LogEvent, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return []*models.LogEvent{{ID: "x"}}, nil
}

func (f failingPurger) DeleteBatch(ctx context.Context, ids []string) (int, error) {
	return 0, f.deleteErr
}

func TestRetentionJob_Errors(t *testing.T) {
	boom := errors.New("connection reset")

	_, err := NewRetentionJob(failingPurger{listErr: boom}, DefaultRetentionConfig(), logging.Nop()).Run(context.Background())
	assert.ErrorIs(t, err, boom)

	_, err = NewRetentionJob(failingPurger{deleteErr: boom}, DefaultRetentionConfig(), logging.Nop()).Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "delete")
}

func TestRetentionJob_ThroughRunner(t *testing.T) {
	store := repository.NewInMemoryStore()
	seedAges(t, store, time.Now(), 2, 1)

	r := NewRunner("retention", 0, NewRetentionJob(store, DefaultRetentionConfig(), logging.Nop()).Func(), logging.Nop())
	res, err := r.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.(RetentionResult).Deleted)
}
