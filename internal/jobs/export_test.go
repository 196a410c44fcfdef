package jobs

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatehub/sentinel/internal/logging"
	"github.com/estatehub/sentinel/internal/models"
	"github.com/estatehub/sentinel/internal/objectstore"
	"github.com/estatehub/sentinel/internal/repository"
)

func TestExportJob_WritesCollectionsAndManifest(t *testing.T) {
	ctx := context.Background()
	store := repository.NewInMemoryStore()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(ctx, models.NewLogEvent(models.EventTypeError, "auth.login_failed", "u1", "bad password")))
	}
	objects := objectstore.NewMemoryStore()

	job := NewExportJob(store, objects, []string{repository.CollectionLogEvents}, logging.Nop())
	job.now = func() time.Time { return time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC) }

	res, err := job.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, "mem://exports/20260504T030201Z/", res.OutputURI)
	assert.NotEmpty(t, res.Handle)
	assert.Equal(t, 3, res.Documents)
	require.Len(t, res.Collections, 1)
	assert.Equal(t, "mem://exports/20260504T030201Z/log_events.ndjson", res.Collections[0].URI)

	assert.Equal(t, []string{
		"exports/20260504T030201Z/log_events.ndjson",
		"exports/20260504T030201Z/manifest.json",
	}, objects.Keys())

	data, ok := objects.Object("exports/20260504T030201Z/log_events.ndjson")
	require.True(t, ok)
	lines := 0
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var ev models.LogEvent
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		assert.Equal(t, "u1", ev.ActorID)
		lines++
	}
	assert.Equal(t, 3, lines)
	assert.Equal(t, "application/x-ndjson", objects.ContentType("exports/20260504T030201Z/log_events.ndjson"))

	raw, ok := objects.Object("exports/20260504T030201Z/manifest.json")
	require.True(t, ok)
	var manifest ExportResult
	require.NoError(t, json.Unmarshal(raw, &manifest))
	assert.Equal(t, res.Handle, manifest.Handle)
	assert.Equal(t, 3, manifest.Documents)
}

func TestExportJob_HandlesAreUnique(t *testing.T) {
	store := repository.NewInMemoryStore()
	job := NewExportJob(store, objectstore.NewMemoryStore(), []string{repository.CollectionLogEvents}, logging.Nop())

	a, err := job.Run(context.Background())
	require.NoError(t, err)
	b, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, a.Handle, b.Handle)
	assert.Zero(t, a.Documents)
}

func TestExportJob_Failures(t *testing.T) {
	store := repository.NewInMemoryStore()

	t.Run("unknown collection", func(t *testing.T) {
		job := NewExportJob(store, objectstore.NewMemoryStore(), []string{"payments"}, logging.Nop())
		_, err := job.Run(context.Background())
		assert.ErrorIs(t, err, repository.ErrUnknownCollection)
	})

	t.Run("storage unavailable", func(t *testing.T) {
		objects := objectstore.NewMemoryStore()
		objects.Err = errors.New("bucket not found")
		job := NewExportJob(store, objects, []string{repository.CollectionLogEvents}, logging.Nop())
		_, err := job.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket not found")
	})

	t.Run("no object storage", func(t *testing.T) {
		job := NewExportJob(store, nil, []string{repository.CollectionLogEvents}, logging.Nop())
		_, err := job.Run(context.Background())
		assert.ErrorIs(t, err, objectstore.ErrNotConfigured)
	})

	t.Run("runner surfaces the error", func(t *testing.T) {
		job := NewExportJob(store, nil, []string{repository.CollectionLogEvents}, logging.Nop())
		r := NewRunner("export", 0, job.Func(), logging.Nop())
		res, err := r.RunNow(context.Background())
		assert.ErrorIs(t, err, objectstore.ErrNotConfigured)
		assert.Nil(t, res)
	})
}

// abortingStore reads a little of each body and then gives up, as an upload
// rejected part way through would.
type abortingStore struct{ read int }

func (s *abortingStore) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	buf := make([]byte, 16)
	n, _ := io.ReadFull(body, buf)
	s.read += n
	return "", errors.New("connection reset")
}

func TestExportJob_UploadFailureMidStream(t *testing.T) {
	ctx := context.Background()
	store := repository.NewInMemoryStore()
	for i := 0; i < 200; i++ {
		require.NoError(t, store.Append(ctx, models.NewLogEvent(models.EventTypeInfo, "page.view", "u1", "viewed listing")))
	}
	objects := &abortingStore{}
	job := NewExportJob(store, objects, []string{repository.CollectionLogEvents}, logging.Nop())

	done := make(chan error, 1)
	go func() {
		_, err := job.Run(ctx)
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to upload log_events")
		assert.Contains(t, err.Error(), "connection reset")
	case <-time.After(2 * time.Second):
		t.Fatal("export did not return after the upload failed")
	}
	assert.Equal(t, 16, objects.read)
}

func TestExportJob_StreamsLargeCollection(t *testing.T) {
	ctx := context.Background()
	store := repository.NewInMemoryStore()
	for i := 0; i < 2000; i++ {
		require.NoError(t, store.Append(ctx, models.NewLogEvent(models.EventTypeInfo, "page.view", "u1", "viewed listing")))
	}
	objects := objectstore.NewMemoryStore()
	job := NewExportJob(store, objects, []string{repository.CollectionLogEvents}, logging.Nop())

	res, err := job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2000, res.Documents)

	data, ok := objects.Object(res.Collections[0].URI[len("mem://"):])
	require.True(t, ok)
	assert.Equal(t, 2000, bytes.Count(data, []byte("\n")))
}
