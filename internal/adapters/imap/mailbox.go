package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"go.uber.org/zap"

	"github.com/mikey/agenda-relay/internal/core"
)

// Security selects how the connection is protected
type Security string

const (
	SecurityTLS      Security = "tls"
	SecurityStartTLS Security = "starttls"
	SecurityNone     Security = "none"
)

// Options configures the IMAP mailbox
type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	Security           Security
	InsecureSkipVerify bool
	Mailbox            string
	DialTimeout        time.Duration
}

// Mailbox is an implementation of the core.Mailbox interface on top of go-imap v2
type Mailbox struct {
	opts   Options
	logger *zap.Logger
}

// NewMailbox creates a new IMAP mailbox
func NewMailbox(opts Options, logger *zap.Logger) (*Mailbox, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("imap port must be positive")
	}
	if opts.Mailbox == "" {
		opts.Mailbox = "INBOX"
	}
	if opts.Security == "" {
		opts.Security = SecurityTLS
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 30 * time.Second
	}
	return &Mailbox{opts: opts, logger: logger}, nil
}

// Open connects, authenticates and selects the mailbox read-write
func (m *Mailbox) Open(ctx context.Context) (core.MailboxSession, error) {
	client, cleanup, err := m.dial(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := client.Select(m.opts.Mailbox, nil).Wait(); err != nil {
		cleanup()
		return nil, fmt.Errorf("selecting %s: %w", m.opts.Mailbox, err)
	}

	return &session{client: client, cleanup: cleanup, logger: m.logger}, nil
}

// Probe connects, authenticates and selects the mailbox read-only
func (m *Mailbox) Probe(ctx context.Context) error {
	client, cleanup, err := m.dial(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	data, err := client.Select(m.opts.Mailbox, &imapv2.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return fmt.Errorf("selecting %s: %w", m.opts.Mailbox, err)
	}

	m.logger.Debug("IMAP probe succeeded",
		zap.String("mailbox", m.opts.Mailbox),
		zap.Uint32("messages", data.NumMessages))
	return nil
}

func (m *Mailbox) address() string {
	return net.JoinHostPort(m.opts.Host, strconv.Itoa(m.opts.Port))
}

func (m *Mailbox) dial(ctx context.Context) (*imapclient.Client, func(), error) {
	address := m.address()
	tlsConfig := &tls.Config{
		ServerName:         m.opts.Host,
		InsecureSkipVerify: m.opts.InsecureSkipVerify,
	}
	options := &imapclient.Options{TLSConfig: tlsConfig}

	dialer := &net.Dialer{Timeout: m.opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	var client *imapclient.Client
	switch m.opts.Security {
	case SecurityTLS:
		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("tls handshake with %s: %w", address, err)
		}
		client = imapclient.New(tlsConn, options)
	case SecurityStartTLS:
		client, err = imapclient.NewStartTLS(conn, options)
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("starttls with %s: %w", address, err)
		}
	default:
		client = imapclient.New(conn, options)
	}

	// Commands do not take a context; closing the connection unblocks them
	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	if err := client.Login(m.opts.Username, m.opts.Password).Wait(); err != nil {
		stopClose()
		_ = client.Close()
		return nil, nil, fmt.Errorf("imap login failed for %s: %w", m.opts.Username, err)
	}

	m.logger.Debug("IMAP connection established",
		zap.String("address", address),
		zap.String("user", m.opts.Username),
		zap.String("security", string(m.opts.Security)))

	cleanup := func() {
		stopClose()
		if ctx.Err() == nil {
			if err := client.Logout().Wait(); err != nil {
				m.logger.Debug("IMAP logout failed", zap.Error(err))
			}
		}
		if err := client.Close(); err != nil {
			m.logger.Debug("IMAP connection closed", zap.Error(err))
		}
	}

	return client, cleanup, nil
}

// session is one selected mailbox connection
type session struct {
	client  *imapclient.Client
	cleanup func()
	logger  *zap.Logger
}

// ListUnseen returns the UIDs of messages without the \Seen flag, in ascending order
func (s *session) ListUnseen(ctx context.Context) ([]uint32, error) {
	criteria := &imapv2.SearchCriteria{
		NotFlag: []imapv2.Flag{imapv2.FlagSeen},
	}
	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching unseen messages: %w", err)
	}

	all := data.AllUIDs()
	uids := make([]uint32, 0, len(all))
	for _, uid := range all {
		uids = append(uids, uint32(uid))
	}
	return uids, nil
}

// Fetch returns the full raw message without setting \Seen
func (s *session) Fetch(ctx context.Context, uid uint32) ([]byte, error) {
	section := &imapv2.FetchItemBodySection{Peek: true}
	options := &imapv2.FetchOptions{
		UID:         true,
		BodySection: []*imapv2.FetchItemBodySection{section},
	}

	cmd := s.client.Fetch(imapv2.UIDSetNum(imapv2.UID(uid)), options)
	defer cmd.Close()

	msg := cmd.Next()
	if msg == nil {
		if err := cmd.Close(); err != nil {
			return nil, fmt.Errorf("%w: uid %d: %w", core.ErrFetch, uid, err)
		}
		return nil, fmt.Errorf("%w: uid %d not found", core.ErrFetch, uid)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("%w: uid %d: %w", core.ErrFetch, uid, err)
	}

	raw := buf.FindBodySection(section)
	if raw == nil {
		return nil, fmt.Errorf("%w: uid %d has no body", core.ErrFetch, uid)
	}
	return raw, nil
}

// MarkSeen adds the \Seen flag
func (s *session) MarkSeen(ctx context.Context, uid uint32) error {
	cmd := s.client.Store(imapv2.UIDSetNum(imapv2.UID(uid)), &imapv2.StoreFlags{
		Op:     imapv2.StoreFlagsAdd,
		Silent: true,
		Flags:  []imapv2.Flag{imapv2.FlagSeen},
	}, nil)
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("marking uid %d seen: %w", uid, err)
	}
	return nil
}

// Close logs out and releases the connection
func (s *session) Close() error {
	s.cleanup()
	return nil
}
