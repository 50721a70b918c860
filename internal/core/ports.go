package core

import (
	"context"
)

// Mailbox opens cycle-scoped sessions against the mail server
type Mailbox interface {
	// Open connects, authenticates and selects the inbox
	Open(ctx context.Context) (MailboxSession, error)

	// Probe connects, authenticates, selects the inbox read-only and disconnects
	Probe(ctx context.Context) error
}

// MailboxSession is one authenticated connection with the inbox selected
type MailboxSession interface {
	// ListUnseen returns the UIDs of unseen messages in listing order
	ListUnseen(ctx context.Context) ([]uint32, error)

	// Fetch returns the full raw message
	Fetch(ctx context.Context, uid uint32) ([]byte, error)

	// MarkSeen flags a message as read
	MarkSeen(ctx context.Context, uid uint32) error

	// Close logs out and releases the connection
	Close() error
}

// MessageParser turns raw message bytes into a ParsedMessage
type MessageParser interface {
	Parse(raw []byte) (*ParsedMessage, error)
}

// DomainFilter decides whether a sender may be forwarded
type DomainFilter interface {
	IsAuthorized(address string) bool
}

// Forwarder submits a parsed message to the scheduling service.
// Transport failures are reported as an OutcomeError result, never as a Go error.
type Forwarder interface {
	Forward(ctx context.Context, msg *ParsedMessage) *ForwardResult
}

// Journal stores the activity history
type Journal interface {
	// Append stores events
	Append(ctx context.Context, events ...Event) error

	// List returns the newest events first, optionally filtered by level
	List(ctx context.Context, level Level, limit int) ([]Event, error)

	// Clear removes every event
	Clear(ctx context.Context) error

	// Cleanup removes events past retention
	Cleanup(ctx context.Context) error
}
