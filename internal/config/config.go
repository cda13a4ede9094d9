// Package config handles chatdesk configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"chat-app-client/internal/reconnect"
)

// Config is the root configuration structure.
type Config struct {
	API       APIConfig       `yaml:"api" mapstructure:"api"`
	Widget    WidgetConfig    `yaml:"widget" mapstructure:"widget"`
	Reconnect ReconnectConfig `yaml:"reconnect" mapstructure:"reconnect"`
	Paging    PagingConfig    `yaml:"paging" mapstructure:"paging"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Relay     RelayConfig     `yaml:"relay" mapstructure:"relay"`
}

// APIConfig points the client at the backend.
type APIConfig struct {
	// BaseURL is the REST base path, e.g. https://chat.example.com/api.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// WebsocketURL defaults to BaseURL with a ws(s) scheme and a /ws suffix.
	WebsocketURL string `yaml:"ws_url" mapstructure:"ws_url"`

	// Token is the agent bearer token.
	Token string `yaml:"token" mapstructure:"token"`

	// RequestTimeout bounds every REST call.
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
}

// WidgetConfig mirrors the embed-time widget configuration.
type WidgetConfig struct {
	Source string `yaml:"source" mapstructure:"source"`

	// Store selects the session store backend: memory, redis or dynamodb.
	Store string `yaml:"store" mapstructure:"store"`

	RedisURL  string        `yaml:"redis_url" mapstructure:"redis_url"`
	RedisPass string        `yaml:"redis_pass" mapstructure:"redis_pass"`
	RedisTTL  time.Duration `yaml:"redis_ttl" mapstructure:"redis_ttl"`

	DynamoTable string `yaml:"dynamo_table" mapstructure:"dynamo_table"`
}

// ReconnectConfig feeds reconnect.Policy.
type ReconnectConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	InitialInterval time.Duration `yaml:"initial_interval" mapstructure:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval" mapstructure:"max_interval"`
	Multiplier      float64       `yaml:"multiplier" mapstructure:"multiplier"`
	Jitter          float64       `yaml:"jitter" mapstructure:"jitter"`
	MaxAttempts     int           `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// PagingConfig holds the fixed page sizes used by the registries.
type PagingConfig struct {
	ConversationPageSize int `yaml:"conversation_page_size" mapstructure:"conversation_page_size"`
	MessagePageSize      int `yaml:"message_page_size" mapstructure:"message_page_size"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MetricsConfig enables the prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// RelayConfig republishes socket envelopes on Redis when RedisURL is set.
type RelayConfig struct {
	RedisURL  string `yaml:"redis_url" mapstructure:"redis_url"`
	RedisPass string `yaml:"redis_pass" mapstructure:"redis_pass"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			RequestTimeout: 15 * time.Second,
		},
		Widget: WidgetConfig{
			Source:      "widget",
			Store:       "memory",
			RedisTTL:    30 * 24 * time.Hour,
			DynamoTable: "WidgetSessions",
		},
		Reconnect: ReconnectConfig{
			Enabled:         true,
			InitialInterval: time.Second,
			MaxInterval:     30 * time.Second,
			Multiplier:      2,
			Jitter:          0.5,
			MaxAttempts:     10,
		},
		Paging: PagingConfig{
			ConversationPageSize: 20,
			MessagePageSize:      20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Relay: RelayConfig{
			Prefix: "chat",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.API.BaseURL) == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	} else if _, err := url.ParseRequestURI(c.API.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("api.base_url: %w", err))
	}
	if c.API.RequestTimeout <= 0 {
		errs = append(errs, errors.New("api.request_timeout must be positive"))
	}
	if c.Paging.ConversationPageSize <= 0 {
		errs = append(errs, errors.New("paging.conversation_page_size must be positive"))
	}
	if c.Paging.MessagePageSize <= 0 {
		errs = append(errs, errors.New("paging.message_page_size must be positive"))
	}
	switch c.Widget.Store {
	case "memory", "redis", "dynamodb":
	default:
		errs = append(errs, fmt.Errorf("widget.store: unknown backend %q", c.Widget.Store))
	}
	if c.Reconnect.Multiplier < 1 {
		errs = append(errs, errors.New("reconnect.multiplier must be >= 1"))
	}
	if c.Reconnect.Jitter < 0 || c.Reconnect.Jitter > 1 {
		errs = append(errs, errors.New("reconnect.jitter must be within [0,1]"))
	}

	return errors.Join(errs...)
}

// ResolvedWebsocketURL returns WebsocketURL, deriving it from BaseURL when empty.
func (a APIConfig) ResolvedWebsocketURL() (string, error) {
	if a.WebsocketURL != "" {
		return a.WebsocketURL, nil
	}
	u, err := url.Parse(a.BaseURL)
	if err != nil {
		return "", fmt.Errorf("derive websocket url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// Policy converts the reconnect settings.
func (r ReconnectConfig) Policy() reconnect.Policy {
	if !r.Enabled {
		return reconnect.Disabled()
	}
	return reconnect.Policy{
		Enabled:         true,
		InitialInterval: r.InitialInterval,
		MaxInterval:     r.MaxInterval,
		Multiplier:      r.Multiplier,
		Jitter:          r.Jitter,
		MaxAttempts:     r.MaxAttempts,
	}
}
