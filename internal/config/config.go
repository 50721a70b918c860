package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Polling interval bounds accepted at startup and at runtime
const (
	MinPollInterval = 60 * time.Second
	MaxPollInterval = 600 * time.Second
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	return Load("")
}

// Load reads configuration from configFile, or from the standard search paths when it is empty
func Load(configFile string) (*Config, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/agenda-relay/")
		v.AddConfigPath("$HOME/.agenda-relay")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("AGENDA_RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// IMAP defaults
	v.SetDefault("imap.host", "")
	v.SetDefault("imap.port", 993)
	v.SetDefault("imap.username", "")
	v.SetDefault("imap.password", "")
	v.SetDefault("imap.tls", true)
	v.SetDefault("imap.starttls", false)
	v.SetDefault("imap.insecure_skip_verify", false)
	v.SetDefault("imap.mailbox", "INBOX")
	v.SetDefault("imap.dial_timeout", "30s")
	v.SetDefault("imap.keyring_service", "")
	v.SetDefault("imap.keyring_key", "")

	// Forwarder defaults
	v.SetDefault("forwarder.endpoint", "")
	v.SetDefault("forwarder.timeout", "60s")
	v.SetDefault("forwarder.max_body_size", 0)
	v.SetDefault("forwarder.user_agent", "agenda-relay")

	// Filter defaults
	v.SetDefault("filter.authorized_domains", []string{})

	// Body extraction defaults
	v.SetDefault("body.html_to_text", false)

	// Poller defaults
	v.SetDefault("poller.enabled", true)
	v.SetDefault("poller.interval", "300s")
	v.SetDefault("poller.run_on_start", true)

	// Journal defaults
	v.SetDefault("journal.type", "memory")
	v.SetDefault("journal.max_entries", 100)
	v.SetDefault("journal.retention", "168h")
	v.SetDefault("journal.cleanup_frequency", "1h")
	v.SetDefault("journal.sqlite_path", "/var/lib/agenda-relay/journal.db")
	v.SetDefault("journal.mysql_dsn", "")

	// Status API defaults
	v.SetDefault("status.enabled", true)
	v.SetDefault("status.listen_address", "127.0.0.1:8088")
	v.SetDefault("status.shutdown_timeout", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Set overrides a configuration value
func (c *Config) Set(key string, value any) {
	c.v.Set(key, value)
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	d, err := time.ParseDuration(c.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
