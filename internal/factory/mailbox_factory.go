package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/agenda-relay/internal/adapters/imap"
	"github.com/mikey/agenda-relay/internal/config"
	"github.com/mikey/agenda-relay/internal/credential"
)

// SecretSource looks up secrets by key
type SecretSource interface {
	Get(key string) (string, error)
}

// MailboxFactory creates the IMAP mailbox
type MailboxFactory struct {
	cfg     *config.Config
	logger  *zap.Logger
	secrets func(service string) (SecretSource, error)
}

// NewMailboxFactory creates a new mailbox factory backed by the OS keyring
func NewMailboxFactory(cfg *config.Config, logger *zap.Logger) *MailboxFactory {
	return &MailboxFactory{
		cfg:    cfg,
		logger: logger,
		secrets: func(service string) (SecretSource, error) {
			return credential.Open(service)
		},
	}
}

// CreateMailbox creates the mailbox, resolving the password from the keyring when configured
func (f *MailboxFactory) CreateMailbox() (*imap.Mailbox, error) {
	ic, err := f.cfg.GetIMAP()
	if err != nil {
		return nil, fmt.Errorf("invalid imap configuration: %w", err)
	}

	password, err := f.resolvePassword(ic)
	if err != nil {
		return nil, err
	}

	security := imap.SecurityNone
	switch {
	case ic.TLS:
		security = imap.SecurityTLS
	case ic.StartTLS:
		security = imap.SecurityStartTLS
	default:
		f.logger.Warn("IMAP connection is not encrypted", zap.String("host", ic.Host))
	}

	return imap.NewMailbox(imap.Options{
		Host:               ic.Host,
		Port:               ic.Port,
		Username:           ic.Username,
		Password:           password,
		Security:           security,
		InsecureSkipVerify: ic.InsecureSkipVerify,
		Mailbox:            ic.Mailbox,
		DialTimeout:        ic.DialTimeout,
	}, f.logger)
}

// resolvePassword prefers an explicit password over the keyring
func (f *MailboxFactory) resolvePassword(ic config.IMAPConfig) (string, error) {
	if ic.Password != "" || ic.KeyringKey == "" {
		return ic.Password, nil
	}

	store, err := f.secrets(ic.KeyringService)
	if err != nil {
		return "", err
	}
	password, err := store.Get(ic.KeyringKey)
	if err != nil {
		return "", fmt.Errorf("failed to read IMAP password from keyring: %w", err)
	}
	f.logger.Debug("IMAP password loaded from keyring", zap.String("key", ic.KeyringKey))
	return password, nil
}
