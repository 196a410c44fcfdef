// Package remediation turns a classified event and its actor's recent incident
// count into an action, and carries that action out.
package remediation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/estatehub/sentinel/internal/alert"
	"github.com/estatehub/sentinel/internal/classifier"
	"github.com/estatehub/sentinel/internal/identity"
	"github.com/estatehub/sentinel/internal/logging"
	"github.com/estatehub/sentinel/internal/metrics"
	"github.com/estatehub/sentinel/internal/models"
)

// Config holds the decision parameters.
type Config struct {
	SelfID          string        `mapstructure:"actor_id" yaml:"actor_id" validate:"required"`
	Window          time.Duration `mapstructure:"window" yaml:"window" validate:"gt=0"`
	Threshold       int           `mapstructure:"threshold" yaml:"threshold" validate:"gte=1"`
	CountLimit      int           `mapstructure:"count_limit" yaml:"count_limit" validate:"gtefield=Threshold"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout" yaml:"query_timeout" validate:"gt=0"`
	IdentityTimeout time.Duration `mapstructure:"identity_timeout" yaml:"identity_timeout" validate:"gt=0"`
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		SelfID:          "sentinel",
		Window:          10 * time.Minute,
		Threshold:       5,
		CountLimit:      10,
		QueryTimeout:    5 * time.Second,
		IdentityTimeout: 5 * time.Second,
	}
}

// Counter counts an actor's incidents in a trailing window.
type Counter interface {
	CountRecent(ctx context.Context, actorID string, window time.Duration, limit int) (int, error)
}

// Recorder appends audit records to the event log.
type Recorder interface {
	Append(ctx context.Context, ev *models.LogEvent) error
}

// Claimer deduplicates block side effects across concurrent evaluations.
type Claimer interface {
	Claim(ctx context.Context, actorID, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, actorID string) error
}

// Deps are the engine's collaborators. Claims may be nil.
type Deps struct {
	Classifier *classifier.Classifier
	Counter    Counter
	Identity   identity.Directory
	Recorder   Recorder
	Alerts     alert.Sender
	Claims     Claimer
	Logger     *logging.Logger
}

// Engine evaluates events and executes the resulting actions. It holds no
// per-actor state; every invocation is independent.
type Engine struct {
	cfg        Config
	classifier *classifier.Classifier
	counter    Counter
	identity   identity.Directory
	recorder   Recorder
	alerts     alert.Sender
	claims     Claimer
	logger     *logging.Logger
}

func NewEngine(cfg Config, deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	cls := deps.Classifier
	if cls == nil {
		cls = classifier.New(cfg.SelfID)
	}
	return &Engine{
		cfg:        cfg,
		classifier: cls,
		counter:    deps.Counter,
		identity:   deps.Identity,
		recorder:   deps.Recorder,
		alerts:     deps.Alerts,
		claims:     deps.Claims,
		logger:     logger.With(logging.Component("remediation")),
	}
}

// Evaluate decides what to do about ev. Non-incidents return None without
// touching the store. A count failure returns None and the error; the caller
// must not remediate.
func (e *Engine) Evaluate(ctx context.Context, ev *models.LogEvent) (Action, error) {
	if !e.classifier.Classify(ev).Incident {
		metrics.EventsEvaluated.WithLabelValues(KindNone.String()).Inc()
		return Action{Kind: KindNone}, nil
	}

	start := time.Now()
	count, err := e.counter.CountRecent(ctx, ev.ActorID, e.cfg.Window, e.cfg.CountLimit)
	metrics.AggregationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AggregationErrors.Inc()
		metrics.EventsEvaluated.WithLabelValues("error").Inc()
		return Action{Kind: KindNone}, err
	}

	var action Action
	switch {
	case count >= e.cfg.Threshold:
		action = Action{Kind: KindBlock, ActorID: ev.ActorID, Count: count, Event: ev}
	case ev.Priority == models.PriorityP0:
		action = Action{Kind: KindAlert, ActorID: ev.ActorID, Count: count, Event: ev}
	default:
		action = Action{Kind: KindNone, ActorID: ev.ActorID, Count: count}
	}

	metrics.EventsEvaluated.WithLabelValues(action.Kind.String()).Inc()
	return action, nil
}

// Execute performs the side effects of a. It never returns an error; every
// step's result is reported in the Outcome. Steps run on a context detached
// from cancellation so a decided block is not abandoned mid-way.
func (e *Engine) Execute(ctx context.Context, a Action) Outcome {
	ctx = context.WithoutCancel(ctx)

	switch a.Kind {
	case KindBlock:
		return e.block(ctx, a)
	case KindAlert:
		e.alerts.Send(ctx, alert.PriorityText(a.Event))
		metrics.RemediationSteps.WithLabelValues("alert", "sent").Inc()
		return Outcome{Action: a, Alerted: true}
	default:
		return Outcome{Action: a}
	}
}

// Handle runs Evaluate then Execute for one event. Aggregation failures are
// logged and returned; nothing is executed for them.
func (e *Engine) Handle(ctx context.Context, ev *models.LogEvent) (Outcome, error) {
	action, err := e.Evaluate(ctx, ev)
	if err != nil {
		e.logger.ErrorContext(ctx, "Incident aggregation failed, not remediating",
			logging.EventID(ev.ID),
			logging.ActorID(ev.ActorID),
			logging.Error(err),
		)
		return Outcome{Action: action}, err
	}

	if action.Kind != KindNone {
		e.logger.InfoContext(ctx, "Incident decision",
			logging.EventID(ev.ID),
			logging.ActorID(action.ActorID),
			logging.Decision(action.Kind.String()),
			logging.Count(action.Count),
		)
	}
	return e.Execute(ctx, action), nil
}

func (e *Engine) block(ctx context.Context, a Action) Outcome {
	out := Outcome{Action: a}
	log := e.logger.With(logging.ActorID(a.ActorID), logging.Count(a.Count))

	owner := ""
	if a.Event != nil {
		owner = a.Event.ID
	}
	claimed := e.claim(ctx, a.ActorID, owner, log)
	out.Claimed = claimed

	// (a) disable
	disableCtx, cancel := context.WithTimeout(ctx, e.cfg.IdentityTimeout)
	out.Disable, out.DisableErr = e.identity.Disable(disableCtx, a.ActorID, e.cfg.SelfID)
	cancel()

	switch {
	case errors.Is(out.DisableErr, identity.ErrActorNotFound):
		metrics.RemediationSteps.WithLabelValues("disable", "not_found").Inc()
		log.WarnContext(ctx, "Actor not found in identity service, cannot disable")
	case out.DisableErr != nil:
		metrics.RemediationSteps.WithLabelValues("disable", "error").Inc()
		log.ErrorContext(ctx, "Failed to disable actor", logging.Error(out.DisableErr))
		if claimed && e.claims != nil {
			// Let the next incident retry and audit its own attempt.
			if err := e.claims.Release(ctx, a.ActorID); err != nil {
				log.WarnContext(ctx, "Failed to release block claim", logging.Error(err))
			}
		}
	default:
		metrics.RemediationSteps.WithLabelValues("disable", out.Disable.String()).Inc()
	}

	if !shouldAudit(out.Disable, out.DisableErr, claimed) {
		log.DebugContext(ctx, "Block already handled, skipping audit record and alert",
			slog.String("disable_result", out.Disable.String()),
		)
		return out
	}

	// (b) audit record
	rec := models.NewRemediationRecord(e.cfg.SelfID, a.ActorID, a.Count, e.cfg.Window)
	if a.Event != nil {
		rec.Metadata["triggerEventId"] = a.Event.ID
	}
	if out.DisableErr != nil {
		rec.Metadata["disableError"] = out.DisableErr.Error()
	}
	if err := e.recorder.Append(ctx, rec); err != nil {
		out.AuditErr = err
		metrics.RemediationSteps.WithLabelValues("audit", "error").Inc()
		log.ErrorContext(ctx, "Failed to write remediation record", logging.Error(err))
	} else {
		out.RecordID = rec.ID
		metrics.RemediationSteps.WithLabelValues("audit", "written").Inc()
	}

	// (c) alert
	e.alerts.Send(ctx, alert.BlockText(a.ActorID, a.Count, e.cfg.Window, out.DisableErr))
	out.Alerted = true
	metrics.RemediationSteps.WithLabelValues("alert", "sent").Inc()

	log.InfoContext(ctx, "Actor blocked",
		slog.String("disable_result", out.Disable.String()),
		slog.String("record_id", out.RecordID),
	)
	return out
}

// claim fails open: without a working claim store every evaluation audits.
func (e *Engine) claim(ctx context.Context, actorID, owner string, log *logging.Logger) bool {
	if e.claims == nil {
		return true
	}
	ok, err := e.claims.Claim(ctx, actorID, owner, e.cfg.Window)
	if err != nil {
		log.WarnContext(ctx, "Block claim unavailable, proceeding without dedup", logging.Error(err))
		return true
	}
	return ok
}

// shouldAudit: only the claim holder records a block, whether the disable
// succeeded or failed. An actor someone else already disabled is left alone.
func shouldAudit(res identity.DisableResult, err error, claimed bool) bool {
	if !claimed {
		return false
	}
	return err != nil || res == identity.Disabled
}
