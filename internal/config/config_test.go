package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, time.Hour, cfg.Server.JobTimeout)
	assert.Equal(t, "sentinel", cfg.Sentinel.SelfID)
	assert.Equal(t, 10*time.Minute, cfg.Sentinel.Window)
	assert.Equal(t, 5, cfg.Sentinel.Threshold)
	assert.Equal(t, 10, cfg.Sentinel.CountLimit)
	assert.Equal(t, 5*time.Second, cfg.Sentinel.QueryTimeout)
	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, FeedNATS, cfg.Feed.Source)
	assert.Equal(t, 8, cfg.Feed.Workers)
	assert.Equal(t, "APP_LOGS", cfg.NATS.Stream)
	assert.Equal(t, "app.logs.appended", cfg.NATS.Subject)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Retention.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Retention.Interval)
	assert.Equal(t, 720*time.Hour, cfg.Retention.MaxAge)
	assert.Equal(t, 500, cfg.Retention.BatchSize)
	assert.False(t, cfg.Export.Enabled)
	assert.Equal(t, []string{"log_events"}, cfg.Export.Collections)
	assert.Equal(t, 10*time.Second, cfg.Alert.Timeout)
}

func TestLoad_FileAndEnvPrecedence(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
sentinel:
  threshold: 7
  count_limit: 20
  window: 15m
store:
  backend: memory
identity:
  backend: memory
feed:
  source: none
`)
	t.Setenv("SENTINEL_SERVER_PORT", "9100")
	t.Setenv("SENTINEL_ALERT_RELAY_URL", "https://hooks.example.com/relay")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 7, cfg.Sentinel.Threshold)
	assert.Equal(t, 15*time.Minute, cfg.Sentinel.Window)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, FeedNone, cfg.Feed.Source)
	assert.Equal(t, "https://hooks.example.com/relay", cfg.Alert.RelayURL)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "unknown store", body: "store:\n  backend: mongo\n", want: "Backend"},
		{name: "threshold above limit", body: "sentinel:\n  threshold: 11\n", want: "CountLimit"},
		{name: "zero window", body: "sentinel:\n  window: 0s\n", want: "Window"},
		{name: "bad relay url", body: "alert:\n  relay_url: not a url\n", want: "RelayURL"},
		{name: "unknown feed", body: "feed:\n  source: sqs\n", want: "Source"},
		{name: "export without bucket", body: "export:\n  enabled: true\n", want: "export.s3.bucket"},
		{name: "postgres identity on opensearch", body: "store:\n  backend: opensearch\nidentity:\n  backend: postgres\n", want: "store.backend=postgres"},
		{name: "http identity without url", body: "identity:\n  url: \"\"\n", want: "identity.url"},
		{name: "kafka without brokers", body: "feed:\n  source: kafka\nkafka:\n  brokers: []\n", want: "broker"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPostgresConnString(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "sentinel", Password: "p@ss:word", Database: "sentinel", SSLMode: "disable"}
	assert.Equal(t, "postgres://sentinel:p%40ss%3Aword@db:5432/sentinel?sslmode=disable", p.ConnString())
}

func TestShow_MasksSecrets(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Database.Postgres.Password = "db-secret"
	cfg.Auth.JWTSecret = "jwt-secret"
	cfg.Alert.Token = "relay-secret"
	cfg.Export.S3.SecretAccessKey = "aws-secret"
	cfg.Redis.URL = "redis://:redis-secret@cache:6379/0"

	out, err := Show(cfg)
	require.NoError(t, err)
	text := string(out)

	for _, secret := range []string{"db-secret", "jwt-secret", "relay-secret", "aws-secret", "redis-secret"} {
		assert.NotContains(t, text, secret)
	}
	assert.Contains(t, text, masked)
	assert.Equal(t, "db-secret", cfg.Database.Postgres.Password)

	var round map[string]any
	require.NoError(t, yaml.Unmarshal(out, &round))
	server := round["server"].(map[string]any)
	assert.Equal(t, 8090, server["port"])
	assert.Equal(t, "15s", server["read_timeout"])
}
