// Package kafka implements the messaging interfaces on Kafka consumer groups.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/estatehub/sentinel/internal/logging"
	"github.com/estatehub/sentinel/internal/messaging"
)

// Config holds Kafka settings.
type Config struct {
	Brokers  []string      `mapstructure:"brokers" yaml:"brokers"`
	Topic    string        `mapstructure:"topic" yaml:"topic"`
	GroupID  string        `mapstructure:"group_id" yaml:"group_id"`
	MinBytes int           `mapstructure:"min_bytes" yaml:"min_bytes"`
	MaxBytes int           `mapstructure:"max_bytes" yaml:"max_bytes"`
	MaxWait  time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
}

func DefaultConfig() Config {
	return Config{
		Brokers:  []string{"localhost:9092"},
		Topic:    messaging.SubjectLogsAppended,
		GroupID:  "sentinel",
		MinBytes: 1,
		MaxBytes: 10 << 20,
		MaxWait:  500 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka: at least one broker is required")
	}
	if c.Topic == "" {
		return errors.New("kafka: topic is required")
	}
	if c.GroupID == "" {
		return errors.New("kafka: consumer group is required")
	}
	return nil
}

// fetcher is the part of *kafka.Reader the consumer loop uses.
type fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads a topic as part of a consumer group. Offsets are committed
// after the handler returns, so delivery is at-least-once.
type Consumer struct {
	reader fetcher
	topic  string
	logger *logging.Logger
}

func NewConsumer(cfg Config, logger *logging.Logger) (*Consumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = logger.With(logging.Component("kafka"))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       cfg.MinBytes,
		MaxBytes:       cfg.MaxBytes,
		MaxWait:        cfg.MaxWait,
		StartOffset:    kafka.FirstOffset,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: time.Second,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...))
		}),
	})

	return &Consumer{reader: reader, topic: cfg.Topic, logger: logger}, nil
}

// Consume runs the fetch loop in a goroutine until ctx ends or stop is called.
func (c *Consumer) Consume(ctx context.Context, handler messaging.MessageHandler) (func(), error) {
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		c.loop(loopCtx, handler)
	}()

	return func() {
		cancel()
		<-done
		if err := c.reader.Close(); err != nil {
			c.logger.Warn("Failed to close kafka reader", logging.Error(err))
		}
	}, nil
}

func (c *Consumer) loop(ctx context.Context, handler messaging.MessageHandler) {
	for {
		km, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("Failed to fetch message", logging.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
				continue
			}
		}

		msg := &messaging.Message{
			Subject:   km.Topic,
			Key:       km.Key,
			Data:      km.Value,
			Timestamp: km.Time,
		}
		if len(km.Headers) > 0 {
			msg.Metadata = make(map[string]string, len(km.Headers))
			for _, h := range km.Headers {
				msg.Metadata[h.Key] = string(h.Value)
			}
		}

		err = handler(ctx, msg)
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			// Uncommitted, so the group redelivers it after restart.
			c.logger.Info("Stopping before commit", slogOffset(km))
			return
		}
		if err != nil && !errors.Is(err, messaging.ErrPermanent) {
			c.logger.Warn("Handler failed, committing anyway",
				slogOffset(km), logging.Error(err))
		}

		if err := c.reader.CommitMessages(context.WithoutCancel(ctx), km); err != nil {
			c.logger.Error("Failed to commit offset", slogOffset(km), logging.Error(err))
		}
	}
}

var _ messaging.KeyedPublisher = (*Producer)(nil)

// Producer writes messages to Kafka. The subject is used as the topic.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(cfg Config) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *Producer) Publish(ctx context.Context, subject string, data []byte) error {
	return p.PublishKeyed(ctx, subject, nil, data)
}

// PublishKeyed writes with a partition key so one actor's events stay ordered.
func (p *Producer) PublishKeyed(ctx context.Context, topic string, key, data []byte) error {
	if err := p.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Key: key, Value: data}); err != nil {
		return fmt.Errorf("failed to write to %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
