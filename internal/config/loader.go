package config

import (
	"fmt"
	"os"
	"path/filepath"

	"chat-app-client/internal/env"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles configuration loading with Viper.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// SetConfigFile sets an explicit config file path.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// BindFlags binds CLI flags by key. Flags that were not set keep lower-precedence values.
func (l *Loader) BindFlags(flags *pflag.FlagSet, bindings map[string]string) error {
	for key, name := range bindings {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := l.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load loads configuration with precedence defaults < config file < env vars < flags.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()
	l.setup(cfg)

	if err := l.loadConfigFile(); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ConfigFileUsed returns the config file that was loaded.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) setup(cfg *Config) {
	v := l.v
	v.SetConfigName("chatdesk")
	v.SetConfigType("yaml")

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		v.AddConfigPath(filepath.Join(xdg, "chatdesk"))
	}
	if home, _ := os.UserHomeDir(); home != "" {
		v.AddConfigPath(filepath.Join(home, ".config", "chatdesk"))
	}
	v.AddConfigPath(".")

	v.SetDefault("api.base_url", cfg.API.BaseURL)
	v.SetDefault("api.ws_url", cfg.API.WebsocketURL)
	v.SetDefault("api.token", cfg.API.Token)
	v.SetDefault("api.request_timeout", cfg.API.RequestTimeout)

	v.SetDefault("widget.source", cfg.Widget.Source)
	v.SetDefault("widget.store", cfg.Widget.Store)
	v.SetDefault("widget.redis_url", cfg.Widget.RedisURL)
	v.SetDefault("widget.redis_pass", cfg.Widget.RedisPass)
	v.SetDefault("widget.redis_ttl", cfg.Widget.RedisTTL)
	v.SetDefault("widget.dynamo_table", cfg.Widget.DynamoTable)

	v.SetDefault("reconnect.enabled", cfg.Reconnect.Enabled)
	v.SetDefault("reconnect.initial_interval", cfg.Reconnect.InitialInterval)
	v.SetDefault("reconnect.max_interval", cfg.Reconnect.MaxInterval)
	v.SetDefault("reconnect.multiplier", cfg.Reconnect.Multiplier)
	v.SetDefault("reconnect.jitter", cfg.Reconnect.Jitter)
	v.SetDefault("reconnect.max_attempts", cfg.Reconnect.MaxAttempts)

	v.SetDefault("paging.conversation_page_size", cfg.Paging.ConversationPageSize)
	v.SetDefault("paging.message_page_size", cfg.Paging.MessagePageSize)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.addr", cfg.Metrics.Addr)

	v.SetDefault("relay.redis_url", cfg.Relay.RedisURL)
	v.SetDefault("relay.redis_pass", cfg.Relay.RedisPass)
	v.SetDefault("relay.prefix", cfg.Relay.Prefix)

	bindEnvVars(v)
}

// bindEnvVars maps config keys onto the names declared in the env package.
func bindEnvVars(v *viper.Viper) {
	bindings := map[string]string{
		"api.base_url":      env.BaseURL,
		"api.ws_url":        env.WebsocketURL,
		"api.token":         env.Token,
		"widget.source":     env.Source,
		"widget.redis_url":  env.ChatRedisURL,
		"widget.redis_pass": env.ChatRedisPass,
		"logging.level":     env.LogLevel,
		"logging.format":    env.LogFormat,
	}
	for key, name := range bindings {
		_ = v.BindEnv(key, name)
	}

	// Remaining keys follow the CHAT_<SECTION>_<KEY> convention.
	for _, key := range []string{
		"api.request_timeout",
		"widget.store",
		"widget.redis_ttl",
		"widget.dynamo_table",
		"reconnect.enabled",
		"reconnect.initial_interval",
		"reconnect.max_interval",
		"reconnect.multiplier",
		"reconnect.jitter",
		"reconnect.max_attempts",
		"paging.conversation_page_size",
		"paging.message_page_size",
		"metrics.addr",
		"relay.redis_url",
		"relay.redis_pass",
		"relay.prefix",
	} {
		_ = v.BindEnv(key, envName(key))
	}
}

func envName(key string) string {
	out := []byte(env.Prefix + "_")
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c == '.':
			out = append(out, '_')
		case c >= 'a' && c <= 'z':
			out = append(out, c-'a'+'A')
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

func (l *Loader) loadConfigFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && l.configFile == "" {
			return nil
		}
		return err
	}
	return nil
}
