// Package nats implements the messaging interfaces on NATS core and JetStream.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/estatehub/sentinel/internal/logging"
	"github.com/estatehub/sentinel/internal/messaging"
)

// Config holds NATS connection settings.
type Config struct {
	URL           string        `mapstructure:"url" yaml:"url"`
	Name          string        `mapstructure:"name" yaml:"name"`
	MaxReconnects int           `mapstructure:"max_reconnects" yaml:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait" yaml:"reconnect_wait"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Username      string        `mapstructure:"username" yaml:"username"`
	Password      string        `mapstructure:"password" yaml:"password"`
	Token         string        `mapstructure:"token" yaml:"token"`

	Stream   string `mapstructure:"stream" yaml:"stream"`
	Subject  string `mapstructure:"subject" yaml:"subject"`
	Consumer string `mapstructure:"consumer" yaml:"consumer"`
	Workers  int    `mapstructure:"workers" yaml:"workers"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "sentinel",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
		Stream:        messaging.StreamAppLogs,
		Subject:       messaging.SubjectLogsAppended,
		Consumer:      messaging.ConsumerSentinel,
		Workers:       8,
	}
}

// Client is a plain NATS connection.
type Client struct {
	conn   *nats.Conn
	logger *logging.Logger
}

func NewClient(cfg Config, logger *logging.Logger) (*Client, error) {
	logger = logger.With(logging.Component("nats"))

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", logging.Error(err))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
	}

	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Client{conn: conn, logger: logger}, nil
}

// Publish sends data to subject on core NATS.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.conn.Publish(subject, data)
}

func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// CheckHealth flushes the connection, which round-trips a PING.
func (c *Client) CheckHealth(ctx context.Context) error {
	if !c.IsConnected() {
		return fmt.Errorf("not connected to NATS")
	}
	return c.conn.FlushWithContext(ctx)
}

// Drain lets in-flight messages finish before closing.
func (c *Client) Drain() error {
	return c.conn.Drain()
}

func (c *Client) Close() error {
	c.conn.Close()
	return nil
}
