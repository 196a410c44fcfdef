package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/estatehub/sentinel/internal/logging"
	"github.com/estatehub/sentinel/internal/metrics"
	"github.com/estatehub/sentinel/internal/objectstore"
)

const manifestName = "manifest.json"

// ExportConfig controls the export job.
type ExportConfig struct {
	Enabled     bool                 `mapstructure:"enabled" yaml:"enabled"`
	Interval    time.Duration        `mapstructure:"interval" yaml:"interval" validate:"gte=0"`
	Collections []string             `mapstructure:"collections" yaml:"collections" validate:"min=1,dive,required"`
	S3          objectstore.S3Config `mapstructure:"s3" yaml:"s3"`
}

func DefaultExportConfig() ExportConfig {
	return ExportConfig{
		Enabled:     false,
		Interval:    24 * time.Hour,
		Collections: []string{"log_events"},
	}
}

// Exporter writes a collection as newline-delimited JSON.
type Exporter interface {
	Export(ctx context.Context, collection string, w io.Writer) (int, error)
}

// CollectionExport describes one exported collection.
type CollectionExport struct {
	Name      string `json:"name"`
	URI       string `json:"uri"`
	Documents int    `json:"documents"`
}

// ExportResult reports a completed export. Handle identifies the run and is
// recorded in the manifest written next to the collections.
type ExportResult struct {
	Handle      string             `json:"handle"`
	OutputURI   string             `json:"outputUri"`
	Collections []CollectionExport `json:"collections"`
	Documents   int                `json:"documents"`
	StartedAt   time.Time          `json:"startedAt"`
	CompletedAt time.Time          `json:"completedAt"`
}

// ExportJob snapshots collections to object storage under
// exports/<timestamp>/. The manifest is written last, so a prefix without
// one is an incomplete export.
type ExportJob struct {
	source      Exporter
	objects     objectstore.Store
	collections []string
	logger      *logging.Logger
	now         func() time.Time
}

func NewExportJob(source Exporter, objects objectstore.Store, collections []string, logger *logging.Logger) *ExportJob {
	return &ExportJob{
		source:      source,
		objects:     objects,
		collections: collections,
		logger:      logger.With(logging.Job(NameExport)),
		now:         time.Now,
	}
}

func (j *ExportJob) Run(ctx context.Context) (*ExportResult, error) {
	if j.objects == nil {
		return nil, objectstore.ErrNotConfigured
	}

	started := j.now().UTC()
	res := &ExportResult{
		Handle:    uuid.NewString(),
		StartedAt: started,
	}
	prefix := "exports/" + started.Format("20060102T150405Z") + "/"

	for _, name := range j.collections {
		uri, n, err := j.exportCollection(ctx, name, prefix+name+".ndjson")
		if err != nil {
			return nil, err
		}
		metrics.ExportDocuments.WithLabelValues(name).Add(float64(n))
		res.Collections = append(res.Collections, CollectionExport{Name: name, URI: uri, Documents: n})
		res.Documents += n
	}

	res.CompletedAt = j.now().UTC()
	manifest, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	uri, err := j.objects.Put(ctx, prefix+manifestName, bytes.NewReader(manifest), "application/json")
	if err != nil {
		return nil, fmt.Errorf("failed to upload manifest: %w", err)
	}
	res.OutputURI = strings.TrimSuffix(uri, manifestName)

	j.logger.InfoContext(ctx, "Export completed",
		"handle", res.Handle,
		"output_uri", res.OutputURI,
		logging.Count(res.Documents))
	return res, nil
}

// exportCollection streams one collection into the object store through a
// pipe, so at most one upload part is held in memory.
func (j *ExportJob) exportCollection(ctx context.Context, name, key string) (string, int, error) {
	pr, pw := io.Pipe()
	type exported struct {
		n   int
		err error
	}
	done := make(chan exported, 1)
	go func() {
		n, err := j.source.Export(ctx, name, pw)
		pw.CloseWithError(err)
		done <- exported{n: n, err: err}
	}()

	uri, putErr := j.objects.Put(ctx, key, pr, "application/x-ndjson")
	if putErr != nil {
		// Unblocks the exporter if the upload gave up mid-stream.
		pr.CloseWithError(putErr)
	}
	out := <-done

	switch {
	case out.err != nil && !errors.Is(out.err, putErr):
		return "", 0, fmt.Errorf("failed to export %s: %w", name, out.err)
	case putErr != nil:
		return "", 0, fmt.Errorf("failed to upload %s: %w", name, putErr)
	}
	return uri, out.n, nil
}

// Func adapts the job for a Runner.
func (j *ExportJob) Func() Func {
	return func(ctx context.Context) (any, error) {
		res, err := j.Run(ctx)
		if err != nil {
			return nil, err
		}
		return res, nil
	}
}
