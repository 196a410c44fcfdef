// Package config provides configuration loading for the sentinel service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/estatehub/sentinel/internal/alert"
	"github.com/estatehub/sentinel/internal/jobs"
	"github.com/estatehub/sentinel/internal/messaging/kafka"
	"github.com/estatehub/sentinel/internal/messaging/nats"
	"github.com/estatehub/sentinel/internal/remediation"
	"github.com/estatehub/sentinel/internal/repository"
)

// Store backends.
const (
	BackendPostgres   = "postgres"
	BackendOpenSearch = "opensearch"
	BackendMemory     = "memory"
	BackendHTTP       = "http"
)

// Feed sources.
const (
	FeedNATS  = "nats"
	FeedKafka = "kafka"
	FeedNone  = "none"
)

// Config holds all configuration for the sentinel service
type Config struct {
	Server     ServerConfig                `mapstructure:"server" yaml:"server"`
	Logging    LoggingConfig               `mapstructure:"logging" yaml:"logging"`
	Sentinel   remediation.Config          `mapstructure:"sentinel" yaml:"sentinel"`
	Store      StoreConfig                 `mapstructure:"store" yaml:"store"`
	Database   DatabaseConfig              `mapstructure:"database" yaml:"database"`
	OpenSearch repository.OpenSearchConfig `mapstructure:"opensearch" yaml:"opensearch"`
	Identity   IdentityConfig              `mapstructure:"identity" yaml:"identity"`
	Redis      RedisConfig                 `mapstructure:"redis" yaml:"redis"`
	Feed       FeedConfig                  `mapstructure:"feed" yaml:"feed"`
	NATS       nats.Config                 `mapstructure:"nats" yaml:"nats"`
	Kafka      kafka.Config                `mapstructure:"kafka" yaml:"kafka"`
	Alert      alert.Config                `mapstructure:"alert" yaml:"alert"`
	Retention  jobs.RetentionConfig        `mapstructure:"retention" yaml:"retention"`
	Export     jobs.ExportConfig           `mapstructure:"export" yaml:"export"`
	Auth       AuthConfig                  `mapstructure:"auth" yaml:"auth"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// JobTimeout bounds the response of an on-demand job trigger. It
	// overrides WriteTimeout on those routes only.
	JobTimeout time.Duration `mapstructure:"job_timeout" yaml:"job_timeout" validate:"gte=0"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn warning error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=json text"`
}

// StoreConfig selects the event store backend
type StoreConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend" validate:"oneof=postgres opensearch memory"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// ConnString builds a postgres:// URL usable by pgx and migrate.
func (p PostgresConfig) ConnString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Database,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	return u.String()
}

// IdentityConfig selects how actors are disabled
type IdentityConfig struct {
	Backend string        `mapstructure:"backend" yaml:"backend" validate:"oneof=http postgres memory"`
	URL     string        `mapstructure:"url" yaml:"url" validate:"omitempty,url"`
	Token   string        `mapstructure:"token" yaml:"token"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// RedisConfig holds Redis configuration for burst claims
type RedisConfig struct {
	URL        string `mapstructure:"url" yaml:"url"`
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	MaxRetries int    `mapstructure:"max_retries" yaml:"max_retries"`
	PoolSize   int    `mapstructure:"pool_size" yaml:"pool_size"`
}

// FeedConfig selects the change feed
type FeedConfig struct {
	Source  string `mapstructure:"source" yaml:"source" validate:"oneof=nats kafka none"`
	Workers int    `mapstructure:"workers" yaml:"workers" validate:"min=1"`
}

// AuthConfig holds the trigger endpoint token settings
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.job_timeout", "1h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	rem := remediation.DefaultConfig()
	v.SetDefault("sentinel.actor_id", rem.SelfID)
	v.SetDefault("sentinel.window", rem.Window.String())
	v.SetDefault("sentinel.threshold", rem.Threshold)
	v.SetDefault("sentinel.count_limit", rem.CountLimit)
	v.SetDefault("sentinel.query_timeout", rem.QueryTimeout.String())
	v.SetDefault("sentinel.identity_timeout", rem.IdentityTimeout.String())

	v.SetDefault("store.backend", BackendPostgres)

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "sentinel")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "sentinel")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("opensearch.url", "https://localhost:9200")
	v.SetDefault("opensearch.username", "admin")
	v.SetDefault("opensearch.password", "")
	v.SetDefault("opensearch.insecure", true)
	v.SetDefault("opensearch.index", "sentinel-log-events")

	v.SetDefault("identity.backend", BackendHTTP)
	v.SetDefault("identity.url", "http://localhost:8080")
	v.SetDefault("identity.token", "")
	v.SetDefault("identity.timeout", rem.IdentityTimeout.String())

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("feed.source", FeedNATS)
	v.SetDefault("feed.workers", 8)

	nc := nats.DefaultConfig()
	v.SetDefault("nats.url", nc.URL)
	v.SetDefault("nats.name", nc.Name)
	v.SetDefault("nats.max_reconnects", nc.MaxReconnects)
	v.SetDefault("nats.reconnect_wait", nc.ReconnectWait.String())
	v.SetDefault("nats.timeout", nc.Timeout.String())
	v.SetDefault("nats.username", "")
	v.SetDefault("nats.password", "")
	v.SetDefault("nats.token", "")
	v.SetDefault("nats.stream", nc.Stream)
	v.SetDefault("nats.subject", nc.Subject)
	v.SetDefault("nats.consumer", nc.Consumer)

	kc := kafka.DefaultConfig()
	v.SetDefault("kafka.brokers", kc.Brokers)
	v.SetDefault("kafka.topic", kc.Topic)
	v.SetDefault("kafka.group_id", kc.GroupID)
	v.SetDefault("kafka.min_bytes", kc.MinBytes)
	v.SetDefault("kafka.max_bytes", kc.MaxBytes)
	v.SetDefault("kafka.max_wait", kc.MaxWait.String())

	v.SetDefault("alert.relay_url", "")
	v.SetDefault("alert.channel", "#security-alerts")
	v.SetDefault("alert.token", "")
	v.SetDefault("alert.timeout", "10s")

	rc := jobs.DefaultRetentionConfig()
	v.SetDefault("retention.enabled", rc.Enabled)
	v.SetDefault("retention.interval", rc.Interval.String())
	v.SetDefault("retention.max_age", rc.MaxAge.String())
	v.SetDefault("retention.batch_size", rc.BatchSize)

	ec := jobs.DefaultExportConfig()
	v.SetDefault("export.enabled", ec.Enabled)
	v.SetDefault("export.interval", ec.Interval.String())
	v.SetDefault("export.collections", ec.Collections)
	v.SetDefault("export.s3.region", "us-east-1")
	v.SetDefault("export.s3.bucket", "")
	v.SetDefault("export.s3.prefix", "sentinel")
	v.SetDefault("export.s3.endpoint", "")
	v.SetDefault("export.s3.access_key_id", "")
	v.SetDefault("export.s3.secret_access_key", "")
	v.SetDefault("export.s3.use_path_style", false)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "1h")
}

// Load reads configuration from defaults, an optional file and environment
// variables, in increasing precedence, and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/sentinel")
	}

	// Environment variables override (SENTINEL_SERVER_PORT, etc.)
	v.SetEnvPrefix("SENTINEL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// Only fail if a specific config path was given or the file is broken
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and the cross-field rules the tags
// cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Identity.Backend == BackendHTTP && c.Identity.URL == "" {
		return errors.New("invalid config: identity.url is required for the http identity backend")
	}
	if c.Identity.Backend == BackendPostgres && c.Store.Backend != BackendPostgres {
		return errors.New("invalid config: the postgres identity backend requires store.backend=postgres")
	}
	if c.Feed.Source == FeedKafka {
		if err := c.Kafka.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}
	if c.Export.Enabled && c.Export.S3.Bucket == "" {
		return errors.New("invalid config: export.s3.bucket is required when export is enabled")
	}
	return nil
}
