// Package jobs runs the sentinel's maintenance work (retention and export)
// on a fixed interval and on demand.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/estatehub/sentinel/internal/logging"
	"github.com/estatehub/sentinel/internal/metrics"
	"github.com/estatehub/sentinel/internal/middleware"
)

// Job names, as used in routes, metrics and logs.
const (
	NameRetention = "retention"
	NameExport    = "export"
)

// ErrJobRunning is returned by RunNow while a run is already in progress.
var ErrJobRunning = errors.New("job already running")

// Func is one run of a job. The result is reported in the job status.
type Func func(ctx context.Context) (any, error)

// Status describes a job and its most recent run.
type Status struct {
	Name       string        `json:"name"`
	Interval   string        `json:"interval,omitempty"`
	Running    bool          `json:"running"`
	Runs       int           `json:"runs"`
	LastStart  *time.Time    `json:"lastStart,omitempty"`
	LastEnd    *time.Time    `json:"lastEnd,omitempty"`
	LastDur    time.Duration `json:"-"`
	LastError  string        `json:"lastError,omitempty"`
	LastResult any           `json:"lastResult,omitempty"`
}

// Runner executes a job on a ticker and on demand, never overlapping with
// itself. Runs use a context detached from the caller's cancellation, so
// Stop waits for an in-flight run to finish its current batch.
type Runner struct {
	name     string
	interval time.Duration
	fn       Func
	logger   *logging.Logger

	mu      sync.Mutex
	running bool
	runDone chan struct{}
	status  Status

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRunner creates a runner. An interval of zero disables the ticker and
// leaves the job on-demand only.
func NewRunner(name string, interval time.Duration, fn Func, logger *logging.Logger) *Runner {
	st := Status{Name: name}
	if interval > 0 {
		st.Interval = interval.String()
	}
	return &Runner{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger.With(logging.Job(name)),
		status:   st,
		stop:     make(chan struct{}),
	}
}

func (r *Runner) Name() string {
	return r.name
}

// Start launches the ticker loop. It does nothing for on-demand runners.
func (r *Runner) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	r.wg.Add(1)
	go r.loop(ctx)
	r.logger.Info("Job scheduled", "interval", r.interval.String())
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runCtx := middleware.WithRequestID(ctx, r.name+"-"+uuid.NewString())
			if _, err := r.RunNow(runCtx); errors.Is(err, ErrJobRunning) {
				metrics.JobRuns.WithLabelValues(r.name, "skipped").Inc()
				r.logger.Warn("Previous run still in progress, skipping tick")
			}
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunNow runs the job synchronously and returns its result.
func (r *Runner) RunNow(ctx context.Context) (any, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrJobRunning
	}
	r.running = true
	done := make(chan struct{})
	r.runDone = done
	start := time.Now()
	r.status.Running = true
	r.status.LastStart = &start
	r.mu.Unlock()
	defer close(done)

	r.logger.InfoContext(ctx, "Job started")
	result, err := r.fn(context.WithoutCancel(ctx))
	elapsed := time.Since(start)

	end := time.Now()
	r.mu.Lock()
	r.running = false
	r.status.Running = false
	r.status.Runs++
	r.status.LastEnd = &end
	r.status.LastDur = elapsed
	r.status.LastResult = result
	r.status.LastError = ""
	if err != nil {
		r.status.LastError = err.Error()
	}
	r.mu.Unlock()

	metrics.JobDuration.WithLabelValues(r.name).Observe(elapsed.Seconds())
	if err != nil {
		metrics.JobRuns.WithLabelValues(r.name, "failed").Inc()
		r.logger.ErrorContext(ctx, "Job failed", logging.Duration(elapsed), logging.Error(err))
		return result, err
	}
	metrics.JobRuns.WithLabelValues(r.name, "succeeded").Inc()
	r.logger.InfoContext(ctx, "Job completed", logging.Duration(elapsed))
	return result, nil
}

// Status returns a snapshot of the job's state.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Stop ends the ticker loop and waits for any in-flight run.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()

	r.mu.Lock()
	done := r.runDone
	running := r.running
	r.mu.Unlock()
	if running {
		<-done
	}
}
