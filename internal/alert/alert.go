// Package alert relays formatted messages to an external webhook. Delivery is
// best-effort: failures are logged and counted, never returned.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/estatehub/sentinel/internal/logging"
	"github.com/estatehub/sentinel/internal/metrics"
)

// Config holds relay credentials. An empty RelayURL disables alerts.
type Config struct {
	RelayURL string        `mapstructure:"relay_url" yaml:"relay_url" validate:"omitempty,url"`
	Channel  string        `mapstructure:"channel" yaml:"channel"`
	Token    string        `mapstructure:"token" yaml:"token"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Sender is what the remediation engine depends on.
type Sender interface {
	Send(ctx context.Context, text string)
}

// Dispatcher posts {channel, text} to the relay.
type Dispatcher struct {
	cfg    Config
	client *http.Client
	logger *logging.Logger
}

func NewDispatcher(cfg Config, logger *logging.Logger) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Dispatcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(logging.Component("alert")),
	}
}

// Enabled reports whether relay credentials are configured.
func (d *Dispatcher) Enabled() bool {
	return d.cfg.RelayURL != ""
}

// Send makes a single POST attempt. No retries.
func (d *Dispatcher) Send(ctx context.Context, text string) {
	if !d.Enabled() {
		metrics.AlertsSent.WithLabelValues("skipped").Inc()
		d.logger.InfoContext(ctx, "Alert relay not configured, skipping alert")
		return
	}

	if err := d.post(ctx, text); err != nil {
		metrics.AlertsSent.WithLabelValues("failed").Inc()
		d.logger.WarnContext(ctx, "Alert delivery failed", logging.Error(err))
		return
	}
	metrics.AlertsSent.WithLabelValues("sent").Inc()
}

func (d *Dispatcher) post(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{
		"channel": d.cfg.Channel,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("marshal relay payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.RelayURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Sentinel/1.0")
	if d.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.cfg.Token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send relay request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("relay returned status %d", resp.StatusCode)
	}
	return nil
}
