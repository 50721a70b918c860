package core

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IngestionService is the core service that drains the inbox into the scheduling service
type IngestionService struct {
	mailbox   Mailbox
	parser    MessageParser
	filter    DomainFilter
	forwarder Forwarder
	logger    *zap.Logger
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(
	mailbox Mailbox,
	parser MessageParser,
	filter DomainFilter,
	forwarder Forwarder,
	logger *zap.Logger,
) *IngestionService {
	return &IngestionService{
		mailbox:   mailbox,
		parser:    parser,
		filter:    filter,
		forwarder: forwarder,
		logger:    logger,
	}
}

// CheckConnectivity probes the mail server without touching any message
func (s *IngestionService) CheckConnectivity(ctx context.Context) error {
	if err := s.mailbox.Probe(ctx); err != nil {
		s.logger.Warn("Mailbox probe failed", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	s.logger.Debug("Mailbox probe succeeded")
	return nil
}

// RunCycle processes every unseen message once.
// The counters passed in are copied into the report and updated there.
// A returned error always wraps ErrConnection; per-message failures never abort the cycle.
func (s *IngestionService) RunCycle(ctx context.Context, counters SessionCounters) (*CycleReport, error) {
	report := &CycleReport{
		CycleID:   uuid.NewString(),
		StartedAt: time.Now(),
		Counters:  counters,
	}
	logger := s.logger.With(zap.String("cycle_id", report.CycleID))
	defer func() {
		report.FinishedAt = time.Now()
	}()

	session, err := s.mailbox.Open(ctx)
	if err != nil {
		logger.Error("Failed to open mailbox", zap.Error(err))
		report.add(Event{Level: LevelError, Message: "Mailbox error: " + truncate(err.Error(), 80)})
		return report, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Debug("Mailbox session close failed", zap.Error(err))
		}
	}()

	uids, err := session.ListUnseen(ctx)
	if err != nil {
		logger.Error("Failed to list unseen messages", zap.Error(err))
		report.add(Event{Level: LevelError, Message: "Mailbox error: " + truncate(err.Error(), 80)})
		return report, fmt.Errorf("%w: listing unseen: %w", ErrConnection, err)
	}

	report.Unseen = len(uids)
	if len(uids) == 0 {
		logger.Debug("No unseen messages")
		report.add(Event{Level: LevelInfo, Message: "No new messages found."})
		return report, nil
	}

	logger.Info("Found unseen messages", zap.Int("count", len(uids)))
	report.add(Event{Level: LevelInfo, Message: fmt.Sprintf("Found %d unseen message(s).", len(uids))})

	for _, uid := range uids {
		s.processMessage(ctx, logger.With(zap.Uint32("uid", uid)), session, uid, report)
	}

	logger.Info("Cycle completed",
		zap.Int("unseen", report.Unseen),
		zap.Int("processed", report.Processed))

	return report, nil
}

func (s *IngestionService) processMessage(
	ctx context.Context,
	logger *zap.Logger,
	session MailboxSession,
	uid uint32,
	report *CycleReport,
) {
	raw, err := session.Fetch(ctx, uid)
	if err != nil {
		logger.Error("Failed to fetch message", zap.Error(err))
		report.add(Event{
			UID:     uid,
			Level:   LevelError,
			Outcome: OutcomeSkipped,
			Message: fmt.Sprintf("Failed to fetch message UID %d", uid),
		})
		return
	}

	msg, err := s.parser.Parse(raw)
	if err != nil {
		logger.Error("Failed to parse message", zap.Error(err))
		report.Counters.Error++
		report.add(Event{
			UID:     uid,
			Level:   LevelError,
			Outcome: OutcomeSkipped,
			Message: "Failed to process message: " + truncate(err.Error(), 80),
		})
		return
	}

	if !s.filter.IsAuthorized(msg.SenderAddress) {
		logger.Info("Rejecting message from external domain", zap.String("sender", msg.SenderAddress))
		report.add(Event{
			UID:     uid,
			Level:   LevelWarning,
			Outcome: OutcomeDomainRejected,
			Message: "Rejected (external domain): " + msg.SenderAddress,
			Sender:  msg.SenderAddress,
			Subject: msg.Subject,
		})
		s.acknowledge(ctx, logger, session, uid, report)
		report.Counters.Record(OutcomeDomainRejected)
		report.Processed++
		return
	}

	logger.Info("Forwarding message",
		zap.String("sender", msg.SenderAddress),
		zap.String("subject", msg.Subject),
		zap.Strings("cc", msg.Cc),
		zap.Strings("to", msg.To))
	report.add(Event{
		UID:     uid,
		Level:   LevelInfo,
		Message: fmt.Sprintf("Processing: %q from %s", msg.Subject, msg.SenderAddress),
		Sender:  msg.SenderAddress,
		Subject: msg.Subject,
	})
	if len(msg.Cc) > 0 {
		report.add(Event{UID: uid, Level: LevelInfo, Message: "  CC detected: " + strings.Join(msg.Cc, ", ")})
	}
	if len(msg.To) > 1 {
		report.add(Event{UID: uid, Level: LevelInfo, Message: "  To detected: " + strings.Join(msg.To, ", ")})
	}

	result := s.forwarder.Forward(ctx, msg)
	logger.Info("Message forwarded",
		zap.String("outcome", string(result.Outcome)),
		zap.String("reason", string(result.Reason)),
		zap.Int("status", result.StatusCode),
		zap.Duration("duration", result.Duration))

	evt := DescribeResult(msg, result)
	evt.UID = uid
	report.add(evt)

	s.acknowledge(ctx, logger, session, uid, report)
	report.Counters.Record(result.Outcome)
	report.Processed++
}

// acknowledge marks a classified message as seen.
// A failure is reported but does not undo the classification.
func (s *IngestionService) acknowledge(
	ctx context.Context,
	logger *zap.Logger,
	session MailboxSession,
	uid uint32,
	report *CycleReport,
) {
	if err := session.MarkSeen(ctx, uid); err != nil {
		logger.Error("Failed to mark message as seen", zap.Error(err))
		report.add(Event{
			UID:     uid,
			Level:   LevelError,
			Message: fmt.Sprintf("Failed to mark message UID %d as seen: %s", uid, truncate(err.Error(), 80)),
		})
	}
}

// DescribeResult turns a forward result into an activity event
func DescribeResult(msg *ParsedMessage, result *ForwardResult) Event {
	evt := Event{
		Outcome: result.Outcome,
		Sender:  msg.SenderAddress,
		Subject: msg.Subject,
		Details: result.Details,
	}
	detail := func(key string) string {
		if v, ok := result.Details[key]; ok && v != "" {
			return v
		}
		return "?"
	}

	switch result.Outcome {
	case OutcomeSuccess:
		evt.Level = LevelSuccess
		evt.Message = fmt.Sprintf("Meeting created: %q on %s - %s",
			detail(DetailTitle), detail(DetailDate), detail(DetailLocation))
	case OutcomeConflict:
		evt.Level = LevelConflict
		evt.Message = fmt.Sprintf("Schedule conflict: %q at %s on %s",
			msg.Subject, detail(DetailLocation), detail(DetailDate))
	case OutcomeRejected:
		evt.Level = LevelWarning
		if result.Reason == ReasonUnauthorizedDomain {
			evt.Message = fmt.Sprintf("Rejected (unauthorized domain): %q from %s", msg.Subject, msg.SenderAddress)
		} else {
			evt.Message = fmt.Sprintf("Rejected (%s): %q", result.Reason, msg.Subject)
		}
	default:
		evt.Level = LevelError
		evt.Message = fmt.Sprintf("Failed to process %q: %s", msg.Subject, detail(DetailError))
	}
	return evt
}

func (r *CycleReport) add(evt Event) {
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}
	evt.CycleID = r.CycleID
	r.Events = append(r.Events, evt)
}

// truncate cuts s to at most max bytes without splitting a rune
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
