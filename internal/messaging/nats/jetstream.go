package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/estatehub/sentinel/internal/logging"
	"github.com/estatehub/sentinel/internal/messaging"
	"github.com/estatehub/sentinel/internal/workerpool"
)

// JetStreamClient adds durable streams and consumers to Client.
type JetStreamClient struct {
	*Client
	js  jetstream.JetStream
	cfg Config
}

// StreamConfig defines a JetStream stream.
type StreamConfig struct {
	Name      string
	Subjects  []string
	MaxAge    time.Duration
	MaxBytes  int64
	Retention jetstream.RetentionPolicy
	Storage   jetstream.StorageType
}

// ConsumerConfig defines a durable JetStream consumer.
type ConsumerConfig struct {
	Name          string
	FilterSubject string
	AckWait       time.Duration
	MaxDeliver    int
	MaxAckPending int
}

// AppLogsStream keeps appended log events for a day. Limits retention so
// other consumers of the same subject are not starved.
func AppLogsStream(name, subject string) StreamConfig {
	return StreamConfig{
		Name:      name,
		Subjects:  []string{subject},
		MaxAge:    24 * time.Hour,
		MaxBytes:  1024 * 1024 * 1024,
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	}
}

// SentinelConsumer is the durable consumer the feed reads from.
func SentinelConsumer(name, subject string, maxAckPending int) ConsumerConfig {
	return ConsumerConfig{
		Name:          name,
		FilterSubject: subject,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		MaxAckPending: maxAckPending,
	}
}

func NewJetStreamClient(cfg Config, logger *logging.Logger) (*JetStreamClient, error) {
	client, err := NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(client.conn)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &JetStreamClient{Client: client, js: js, cfg: cfg}, nil
}

func (c *JetStreamClient) CreateOrUpdateStream(ctx context.Context, cfg StreamConfig) (jetstream.Stream, error) {
	stream, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Name,
		Subjects:  cfg.Subjects,
		MaxAge:    cfg.MaxAge,
		MaxBytes:  cfg.MaxBytes,
		Retention: cfg.Retention,
		Storage:   cfg.Storage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream %s: %w", cfg.Name, err)
	}
	return stream, nil
}

func (c *JetStreamClient) CreateOrUpdateConsumer(ctx context.Context, streamName string, cfg ConsumerConfig) (jetstream.Consumer, error) {
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream %s: %w", streamName, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          cfg.Name,
		Durable:       cfg.Name,
		FilterSubject: cfg.FilterSubject,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
		MaxAckPending: cfg.MaxAckPending,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update consumer %s: %w", cfg.Name, err)
	}
	return consumer, nil
}

// Publish stores data in the stream and waits for the server ack.
func (c *JetStreamClient) Publish(ctx context.Context, subject string, data []byte) error {
	if _, err := c.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Consume reads the configured durable consumer and runs handler on
// cfg.Workers goroutines. Each message is settled after its handler returns:
// success acks, an ErrPermanent failure terminates, anything else naks with
// delay.
func (c *JetStreamClient) Consume(ctx context.Context, handler messaging.MessageHandler) (func(), error) {
	stream, err := c.js.Stream(ctx, c.cfg.Stream)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream %s: %w", c.cfg.Stream, err)
	}

	consumer, err := stream.Consumer(ctx, c.cfg.Consumer)
	if err != nil {
		return nil, fmt.Errorf("failed to get consumer %s: %w", c.cfg.Consumer, err)
	}

	consumeCtx, cancel := context.WithCancel(ctx)

	pool := workerpool.New(consumeCtx, c.cfg.Workers, c.cfg.Workers*2, func(ctx context.Context, msg jetstream.Msg) {
		settle(msg, handler(ctx, toMessage(msg)))
	})

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := pool.SubmitWait(consumeCtx, msg); err != nil {
			// Shutting down; let the server redeliver.
			_ = msg.Nak()
		}
	})
	if err != nil {
		cancel()
		pool.Drain()
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	return func() {
		cons.Stop()
		// Callbacks still blocked on a full queue get ErrClosed and Nak.
		pool.Drain()
		cancel()
	}, nil
}

func toMessage(msg jetstream.Msg) *messaging.Message {
	m := &messaging.Message{
		Subject:   msg.Subject(),
		Data:      msg.Data(),
		Timestamp: time.Now(),
	}
	if meta, err := msg.Metadata(); err == nil {
		m.Timestamp = meta.Timestamp
	}
	if headers := msg.Headers(); headers != nil {
		m.Metadata = make(map[string]string, len(headers))
		for k := range headers {
			m.Metadata[k] = headers.Get(k)
		}
	}
	return m
}

func settle(msg jetstream.Msg, err error) {
	switch {
	case err == nil:
		_ = msg.Ack()
	case errors.Is(err, messaging.ErrPermanent):
		_ = msg.Term()
	default:
		_ = msg.NakWithDelay(5 * time.Second)
	}
}

// Setup creates the app-logs stream and the sentinel consumer if missing.
func (c *JetStreamClient) Setup(ctx context.Context, maxAckPending int) error {
	if _, err := c.CreateOrUpdateStream(ctx, AppLogsStream(c.cfg.Stream, c.cfg.Subject)); err != nil {
		return err
	}
	_, err := c.CreateOrUpdateConsumer(ctx, c.cfg.Stream, SentinelConsumer(c.cfg.Consumer, c.cfg.Subject, maxAckPending))
	return err
}
