package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/estatehub/sentinel/internal/logging"
	"github.com/estatehub/sentinel/internal/messaging"
	"github.com/estatehub/sentinel/internal/metrics"
	"github.com/estatehub/sentinel/internal/models"
	"github.com/estatehub/sentinel/internal/remediation"
)

// Handler is the pipeline entry point, satisfied by *remediation.Engine.
type Handler interface {
	Handle(ctx context.Context, ev *models.LogEvent) (remediation.Outcome, error)
}

// Consumer feeds every message from a source through the pipeline once.
type Consumer struct {
	source  messaging.Consumer
	decoder *Decoder
	handler Handler
	logger  *logging.Logger

	mu   sync.Mutex
	stop func()
}

func NewConsumer(source messaging.Consumer, decoder *Decoder, handler Handler, logger *logging.Logger) *Consumer {
	return &Consumer{
		source:  source,
		decoder: decoder,
		handler: handler,
		logger:  logger.With(logging.Component("feed")),
	}
}

// Start subscribes to the source. It returns once the subscription is live.
func (c *Consumer) Start(ctx context.Context) error {
	stop, err := c.source.Consume(ctx, c.HandleMessage)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.stop = stop
	c.mu.Unlock()
	c.logger.Info("Feed consumer started")
	return nil
}

// Stop unsubscribes and waits for in-flight messages.
func (c *Consumer) Stop() {
	c.mu.Lock()
	stop := c.stop
	c.stop = nil
	c.mu.Unlock()
	if stop != nil {
		stop()
		c.logger.Info("Feed consumer stopped")
	}
}

// HandleMessage decodes one message and runs the pipeline on it. Pipeline
// failures are contained here: the message is acknowledged either way, and
// the next incident for the same actor re-runs the decision.
func (c *Consumer) HandleMessage(ctx context.Context, msg *messaging.Message) error {
	ev, err := c.decoder.Decode(msg.Data)
	if err != nil {
		metrics.FeedMessages.WithLabelValues("invalid").Inc()
		c.logger.WarnContext(ctx, "Dropping invalid feed message", logging.Error(err))
		return err
	}

	if _, err := c.handler.Handle(ctx, ev); err != nil {
		metrics.FeedMessages.WithLabelValues("failed").Inc()
		if errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	metrics.FeedMessages.WithLabelValues("handled").Inc()
	return nil
}
