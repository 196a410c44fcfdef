package config

import (
	"fmt"
	"net/url"

	"gopkg.in/yaml.v3"
)

const masked = "********"

// Redacted returns a copy of the configuration with secrets masked.
func (c Config) Redacted() Config {
	c.Database.Postgres.Password = mask(c.Database.Postgres.Password)
	c.OpenSearch.Password = mask(c.OpenSearch.Password)
	c.Identity.Token = mask(c.Identity.Token)
	c.Redis.URL = maskURL(c.Redis.URL)
	c.NATS.Password = mask(c.NATS.Password)
	c.NATS.Token = mask(c.NATS.Token)
	c.Alert.Token = mask(c.Alert.Token)
	c.Alert.RelayURL = maskURL(c.Alert.RelayURL)
	c.Export.S3.SecretAccessKey = mask(c.Export.S3.SecretAccessKey)
	c.Auth.JWTSecret = mask(c.Auth.JWTSecret)
	c.Export.Collections = append([]string(nil), c.Export.Collections...)
	c.Kafka.Brokers = append([]string(nil), c.Kafka.Brokers...)
	return c
}

// Show renders the effective configuration as YAML with secrets masked.
func Show(c *Config) ([]byte, error) {
	out, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	return out, nil
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return masked
}

// maskURL hides the password part of a URL's userinfo, keeping the rest
// readable.
func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
