package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/estatehub/sentinel/internal/logging"
	"github.com/estatehub/sentinel/internal/metrics"
	"github.com/estatehub/sentinel/internal/models"
)

// RetentionConfig controls the retention job.
type RetentionConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	Interval  time.Duration `mapstructure:"interval" yaml:"interval" validate:"gte=0"`
	MaxAge    time.Duration `mapstructure:"max_age" yaml:"max_age" validate:"gt=0"`
	BatchSize int           `mapstructure:"batch_size" yaml:"batch_size" validate:"gt=0"`
}

func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		Enabled:   true,
		Interval:  24 * time.Hour,
		MaxAge:    30 * 24 * time.Hour,
		BatchSize: 500,
	}
}

// Purger is the store surface retention needs.
type Purger interface {
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.LogEvent, error)
	DeleteBatch(ctx context.Context, ids []string) (int, error)
}

// RetentionResult reports one retention run.
type RetentionResult struct {
	Cutoff  time.Time `json:"cutoff"`
	Found   int       `json:"found"`
	Deleted int       `json:"deleted"`
}

// RetentionJob deletes one batch of the oldest expired events per run. A
// backlog drains over successive runs.
type RetentionJob struct {
	store  Purger
	cfg    RetentionConfig
	logger *logging.Logger
	now    func() time.Time
}

func NewRetentionJob(store Purger, cfg RetentionConfig, logger *logging.Logger) *RetentionJob {
	return &RetentionJob{
		store:  store,
		cfg:    cfg,
		logger: logger.With(logging.Job(NameRetention)),
		now:    time.Now,
	}
}

func (j *RetentionJob) Run(ctx context.Context) (RetentionResult, error) {
	cutoff := j.now().UTC().Add(-j.cfg.MaxAge)
	res := RetentionResult{Cutoff: cutoff}

	expired, err := j.store.ListBefore(ctx, cutoff, j.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("failed to list expired events: %w", err)
	}
	res.Found = len(expired)
	if len(expired) == 0 {
		j.logger.DebugContext(ctx, "No expired events")
		return res, nil
	}

	ids := make([]string, len(expired))
	for i, ev := range expired {
		ids[i] = ev.ID
	}

	deleted, err := j.store.DeleteBatch(ctx, ids)
	if err != nil {
		return res, fmt.Errorf("failed to delete expired events: %w", err)
	}
	res.Deleted = deleted
	metrics.RetentionDeleted.Add(float64(deleted))

	j.logger.InfoContext(ctx, "Expired events deleted",
		logging.Count(deleted),
		"found", len(expired),
		"cutoff", cutoff.Format(time.RFC3339))
	return res, nil
}

// Func adapts the job for a Runner.
func (j *RetentionJob) Func() Func {
	return func(ctx context.Context) (any, error) {
		return j.Run(ctx)
	}
}
