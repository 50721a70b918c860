package config

import (
	"errors"
	"fmt"
	"time"
)

// IMAPConfig represents the configuration for the mail server
type IMAPConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	TLS                bool
	StartTLS           bool
	InsecureSkipVerify bool
	Mailbox            string
	DialTimeout        time.Duration
	KeyringService     string
	KeyringKey         string
}

// ForwarderConfig represents the configuration for the scheduling service endpoint
type ForwarderConfig struct {
	Endpoint    string
	Timeout     time.Duration
	MaxBodySize int
	UserAgent   string
}

// FilterConfig represents the sender domain policy
type FilterConfig struct {
	AuthorizedDomains []string
}

// BodyConfig represents body extraction options
type BodyConfig struct {
	HTMLToText bool
}

// PollerConfig represents the polling schedule
type PollerConfig struct {
	Enabled    bool
	Interval   time.Duration
	RunOnStart bool
}

// JournalConfig represents the event history storage
type JournalConfig struct {
	Type             string
	MaxEntries       int
	Retention        time.Duration
	CleanupFrequency time.Duration
	SQLitePath       string
	MySQLDSN         string
}

// StatusConfig represents the status HTTP API
type StatusConfig struct {
	Enabled         bool
	ListenAddress   string
	ShutdownTimeout time.Duration
}

// GetIMAP returns the IMAP configuration
func (c *Config) GetIMAP() (IMAPConfig, error) {
	dialTimeout, err := c.GetDuration("imap.dial_timeout")
	if err != nil {
		return IMAPConfig{}, err
	}
	return IMAPConfig{
		Host:               c.GetString("imap.host"),
		Port:               c.GetInt("imap.port"),
		Username:           c.GetString("imap.username"),
		Password:           c.GetString("imap.password"),
		TLS:                c.GetBool("imap.tls"),
		StartTLS:           c.GetBool("imap.starttls"),
		InsecureSkipVerify: c.GetBool("imap.insecure_skip_verify"),
		Mailbox:            c.GetString("imap.mailbox"),
		DialTimeout:        dialTimeout,
		KeyringService:     c.GetString("imap.keyring_service"),
		KeyringKey:         c.GetString("imap.keyring_key"),
	}, nil
}

// GetForwarder returns the forwarder configuration
func (c *Config) GetForwarder() (ForwarderConfig, error) {
	timeout, err := c.GetDuration("forwarder.timeout")
	if err != nil {
		return ForwarderConfig{}, err
	}
	return ForwarderConfig{
		Endpoint:    c.GetString("forwarder.endpoint"),
		Timeout:     timeout,
		MaxBodySize: c.GetInt("forwarder.max_body_size"),
		UserAgent:   c.GetString("forwarder.user_agent"),
	}, nil
}

// GetFilter returns the domain filter configuration
func (c *Config) GetFilter() FilterConfig {
	return FilterConfig{
		AuthorizedDomains: c.GetStringSlice("filter.authorized_domains"),
	}
}

// GetBody returns the body extraction configuration
func (c *Config) GetBody() BodyConfig {
	return BodyConfig{
		HTMLToText: c.GetBool("body.html_to_text"),
	}
}

// GetPoller returns the poller configuration
func (c *Config) GetPoller() (PollerConfig, error) {
	interval, err := c.GetDuration("poller.interval")
	if err != nil {
		return PollerConfig{}, err
	}
	return PollerConfig{
		Enabled:    c.GetBool("poller.enabled"),
		Interval:   interval,
		RunOnStart: c.GetBool("poller.run_on_start"),
	}, nil
}

// GetJournal returns the journal configuration
func (c *Config) GetJournal() (JournalConfig, error) {
	retention, err := c.GetDuration("journal.retention")
	if err != nil {
		return JournalConfig{}, err
	}
	cleanupFreq, err := c.GetDuration("journal.cleanup_frequency")
	if err != nil {
		return JournalConfig{}, err
	}
	return JournalConfig{
		Type:             c.GetString("journal.type"),
		MaxEntries:       c.GetInt("journal.max_entries"),
		Retention:        retention,
		CleanupFrequency: cleanupFreq,
		SQLitePath:       c.GetString("journal.sqlite_path"),
		MySQLDSN:         c.GetString("journal.mysql_dsn"),
	}, nil
}

// GetStatus returns the status API configuration
func (c *Config) GetStatus() (StatusConfig, error) {
	shutdownTimeout, err := c.GetDuration("status.shutdown_timeout")
	if err != nil {
		return StatusConfig{}, err
	}
	return StatusConfig{
		Enabled:         c.GetBool("status.enabled"),
		ListenAddress:   c.GetString("status.listen_address"),
		ShutdownTimeout: shutdownTimeout,
	}, nil
}

// ValidateInterval reports whether a polling interval is within the accepted range
func ValidateInterval(d time.Duration) error {
	if d < MinPollInterval || d > MaxPollInterval {
		return fmt.Errorf("poll interval %s outside %s-%s", d, MinPollInterval, MaxPollInterval)
	}
	return nil
}

// ValidateIMAP checks the settings needed to reach the mailbox.
// A password may come from the keyring instead of the configuration.
func (c *Config) ValidateIMAP() error {
	imapCfg, err := c.GetIMAP()
	if err != nil {
		return err
	}

	var errs []error
	if imapCfg.Host == "" {
		errs = append(errs, errors.New("imap.host is required"))
	}
	if imapCfg.Port <= 0 || imapCfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("imap.port %d is invalid", imapCfg.Port))
	}
	if imapCfg.Username == "" {
		errs = append(errs, errors.New("imap.username is required"))
	}
	if imapCfg.Password == "" && imapCfg.KeyringKey == "" {
		errs = append(errs, errors.New("imap.password or imap.keyring_key is required"))
	}
	return errors.Join(errs...)
}

// ValidateForwarder checks the settings needed to forward messages
func (c *Config) ValidateForwarder() error {
	fwd, err := c.GetForwarder()
	if err != nil {
		return err
	}

	var errs []error
	if fwd.Endpoint == "" {
		errs = append(errs, errors.New("forwarder.endpoint is required"))
	}
	if fwd.Timeout <= 0 {
		errs = append(errs, errors.New("forwarder.timeout must be positive"))
	}
	if len(c.GetFilter().AuthorizedDomains) == 0 {
		errs = append(errs, errors.New("filter.authorized_domains must list at least one domain"))
	}
	return errors.Join(errs...)
}

// Validate checks everything the daemon needs before it starts
func (c *Config) Validate() error {
	var errs []error
	errs = append(errs, c.ValidateIMAP(), c.ValidateForwarder())

	if poller, err := c.GetPoller(); err != nil {
		errs = append(errs, err)
	} else if err := ValidateInterval(poller.Interval); err != nil {
		errs = append(errs, fmt.Errorf("poller.interval: %w", err))
	}

	if journal, err := c.GetJournal(); err != nil {
		errs = append(errs, err)
	} else {
		switch journal.Type {
		case "memory", "sqlite":
		case "mysql":
			if journal.MySQLDSN == "" {
				errs = append(errs, errors.New("journal.mysql_dsn is required for the mysql journal"))
			}
		default:
			errs = append(errs, fmt.Errorf("unsupported journal type: %s", journal.Type))
		}
	}

	if _, err := c.GetStatus(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
