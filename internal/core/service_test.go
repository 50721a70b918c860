package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeMailbox keeps messages in memory; raw bodies are "sender|subject" strings.
type fakeMailbox struct {
	messages   map[uint32]string
	order      []uint32
	seen       map[uint32]bool
	fetchFail  map[uint32]bool
	markFail   map[uint32]bool
	openErr    error
	listErr    error
	probeErr   error
	closed     int
	sessionsUp int
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{
		messages:  map[uint32]string{},
		seen:      map[uint32]bool{},
		fetchFail: map[uint32]bool{},
		markFail:  map[uint32]bool{},
	}
}

func (m *fakeMailbox) add(uid uint32, raw string) {
	m.messages[uid] = raw
	m.order = append(m.order, uid)
}

func (m *fakeMailbox) Open(ctx context.Context) (MailboxSession, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	m.sessionsUp++
	return &fakeSession{box: m}, nil
}

func (m *fakeMailbox) Probe(ctx context.Context) error {
	return m.probeErr
}

type fakeSession struct {
	box *fakeMailbox
}

func (s *fakeSession) ListUnseen(ctx context.Context) ([]uint32, error) {
	if s.box.listErr != nil {
		return nil, s.box.listErr
	}
	var uids []uint32
	for _, uid := range s.box.order {
		if !s.box.seen[uid] {
			uids = append(uids, uid)
		}
	}
	return uids, nil
}

func (s *fakeSession) Fetch(ctx context.Context, uid uint32) ([]byte, error) {
	if s.box.fetchFail[uid] {
		return nil, fmt.Errorf("%w: uid %d vanished", ErrFetch, uid)
	}
	return []byte(s.box.messages[uid]), nil
}

func (s *fakeSession) MarkSeen(ctx context.Context, uid uint32) error {
	if s.box.markFail[uid] {
		return errors.New("store failed")
	}
	s.box.seen[uid] = true
	return nil
}

func (s *fakeSession) Close() error {
	s.box.closed++
	return nil
}

type fakeParser struct{}

func (fakeParser) Parse(raw []byte) (*ParsedMessage, error) {
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: bad fixture", ErrParse)
	}
	return &ParsedMessage{
		SenderAddress: parts[0],
		Subject:       parts[1],
		Cc:            []string{},
		To:            []string{"agenda@corp.example"},
	}, nil
}

type suffixFilter string

func (f suffixFilter) IsAuthorized(address string) bool {
	return address != "" && strings.HasSuffix(strings.ToLower(address), "@"+string(f))
}

// scriptedForwarder answers by subject and records every call
type scriptedForwarder struct {
	results map[string]*ForwardResult
	calls   []string
}

func (f *scriptedForwarder) Forward(ctx context.Context, msg *ParsedMessage) *ForwardResult {
	f.calls = append(f.calls, msg.Subject)
	if r, ok := f.results[msg.Subject]; ok {
		return r
	}
	return &ForwardResult{Accepted: true, Outcome: OutcomeSuccess, StatusCode: 200, Details: map[string]string{}}
}

func newTestService(box *fakeMailbox, fwd *scriptedForwarder) *IngestionService {
	return NewIngestionService(box, fakeParser{}, suffixFilter("corp.example"), fwd, zap.NewNop())
}

func TestRunCycle_ClassifiesAndMarksSeen(t *testing.T) {
	box := newFakeMailbox()
	box.add(1, "alice@corp.example|Standup")
	box.add(2, "bob@corp.example|Busy room")
	box.add(3, "carol@corp.example|No time")
	box.add(4, "dave@corp.example|Boom")

	fwd := &scriptedForwarder{results: map[string]*ForwardResult{
		"Busy room": {Outcome: OutcomeConflict, Reason: ReasonConflict, StatusCode: 409,
			Details: map[string]string{DetailLocation: "Room A", DetailDate: "2024-05-02"}},
		"No time": {Outcome: OutcomeRejected, Reason: ReasonMissingDateTime, StatusCode: 422, Details: map[string]string{}},
		"Boom":    {Outcome: OutcomeError, Reason: ReasonOtherError, StatusCode: 500, Details: map[string]string{DetailError: "HTTP 500"}},
	}}

	report, err := newTestService(box, fwd).RunCycle(context.Background(), SessionCounters{})
	require.NoError(t, err)

	assert.Equal(t, 4, report.Unseen)
	assert.Equal(t, 4, report.Processed)
	assert.Equal(t, SessionCounters{Processed: 4, Success: 1, Conflict: 1, Rejected: 1, Error: 1}, report.Counters)
	assert.Equal(t, []string{"Standup", "Busy room", "No time", "Boom"}, fwd.calls)
	for uid := uint32(1); uid <= 4; uid++ {
		assert.True(t, box.seen[uid], "uid %d should be seen", uid)
	}
	assert.Equal(t, 1, box.closed)
	assert.NotEmpty(t, report.CycleID)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))

	for _, evt := range report.Events {
		assert.Equal(t, report.CycleID, evt.CycleID)
		assert.False(t, evt.Time.IsZero())
	}
}

func TestRunCycle_IsIdempotent(t *testing.T) {
	box := newFakeMailbox()
	box.add(1, "alice@corp.example|Standup")

	fwd := &scriptedForwarder{}
	svc := newTestService(box, fwd)

	first, err := svc.RunCycle(context.Background(), SessionCounters{})
	require.NoError(t, err)
	second, err := svc.RunCycle(context.Background(), first.Counters)
	require.NoError(t, err)

	assert.Len(t, fwd.calls, 1)
	assert.Equal(t, 0, second.Unseen)
	assert.Equal(t, first.Counters, second.Counters)
	require.Len(t, second.Events, 1)
	assert.Equal(t, "No new messages found.", second.Events[0].Message)
}

func TestRunCycle_DomainRejected(t *testing.T) {
	box := newFakeMailbox()
	box.add(7, "mallory@evil.example|Free meeting")

	fwd := &scriptedForwarder{}
	report, err := newTestService(box, fwd).RunCycle(context.Background(), SessionCounters{})
	require.NoError(t, err)

	assert.Empty(t, fwd.calls)
	assert.True(t, box.seen[7])
	assert.Equal(t, SessionCounters{Processed: 1, Rejected: 1}, report.Counters)

	last := report.Events[len(report.Events)-1]
	assert.Equal(t, LevelWarning, last.Level)
	assert.Equal(t, OutcomeDomainRejected, last.Outcome)
	assert.Equal(t, "Rejected (external domain): mallory@evil.example", last.Message)
}

func TestRunCycle_EmptySenderIsRejected(t *testing.T) {
	box := newFakeMailbox()
	box.add(1, "|No sender")

	fwd := &scriptedForwarder{}
	report, err := newTestService(box, fwd).RunCycle(context.Background(), SessionCounters{})
	require.NoError(t, err)

	assert.Empty(t, fwd.calls)
	assert.Equal(t, 1, report.Counters.Rejected)
}

func TestRunCycle_FetchFailureLeavesMessageUnseen(t *testing.T) {
	box := newFakeMailbox()
	box.add(1, "alice@corp.example|First")
	box.add(2, "bob@corp.example|Second")
	box.fetchFail[1] = true

	fwd := &scriptedForwarder{}
	report, err := newTestService(box, fwd).RunCycle(context.Background(), SessionCounters{})
	require.NoError(t, err)

	assert.False(t, box.seen[1])
	assert.True(t, box.seen[2])
	assert.Equal(t, []string{"Second"}, fwd.calls)
	assert.Equal(t, SessionCounters{Processed: 1, Success: 1}, report.Counters)
	assert.Equal(t, 1, report.Processed)
}

func TestRunCycle_ParseFailureCountsErrorOnly(t *testing.T) {
	box := newFakeMailbox()
	box.add(1, "garbage")

	report, err := newTestService(box, &scriptedForwarder{}).RunCycle(context.Background(), SessionCounters{})
	require.NoError(t, err)

	assert.False(t, box.seen[1])
	assert.Equal(t, SessionCounters{Error: 1}, report.Counters)
	assert.Equal(t, 0, report.Processed)
}

func TestRunCycle_ForwardErrorIsStillMarkedSeen(t *testing.T) {
	box := newFakeMailbox()
	box.add(1, "alice@corp.example|Slow")

	fwd := &scriptedForwarder{results: map[string]*ForwardResult{
		"Slow": {Outcome: OutcomeError, Reason: ReasonOtherError, Details: map[string]string{DetailError: "context deadline exceeded"}},
	}}
	report, err := newTestService(box, fwd).RunCycle(context.Background(), SessionCounters{})
	require.NoError(t, err)

	assert.True(t, box.seen[1])
	assert.Equal(t, SessionCounters{Processed: 1, Error: 1}, report.Counters)

	last := report.Events[len(report.Events)-1]
	assert.Equal(t, LevelError, last.Level)
	assert.Contains(t, last.Message, "context deadline exceeded")
}

func TestRunCycle_MarkSeenFailureKeepsClassification(t *testing.T) {
	box := newFakeMailbox()
	box.add(1, "alice@corp.example|Standup")
	box.markFail[1] = true

	report, err := newTestService(box, &scriptedForwarder{}).RunCycle(context.Background(), SessionCounters{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Counters.Success)
	var found bool
	for _, evt := range report.Events {
		if strings.Contains(evt.Message, "as seen") {
			found = true
			assert.Equal(t, LevelError, evt.Level)
		}
	}
	assert.True(t, found)
}

func TestRunCycle_ConnectionErrors(t *testing.T) {
	t.Run("open", func(t *testing.T) {
		box := newFakeMailbox()
		box.add(1, "alice@corp.example|Standup")
		box.openErr = errors.New("dial tcp: connection refused")

		counters := SessionCounters{Processed: 3, Success: 3}
		report, err := newTestService(box, &scriptedForwarder{}).RunCycle(context.Background(), counters)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConnection)
		assert.Equal(t, counters, report.Counters)
		assert.False(t, box.seen[1])
		require.Len(t, report.Events, 1)
		assert.Equal(t, LevelError, report.Events[0].Level)
	})

	t.Run("list", func(t *testing.T) {
		box := newFakeMailbox()
		box.listErr = errors.New("connection reset")

		report, err := newTestService(box, &scriptedForwarder{}).RunCycle(context.Background(), SessionCounters{})

		assert.ErrorIs(t, err, ErrConnection)
		assert.Equal(t, SessionCounters{}, report.Counters)
		assert.Equal(t, 1, box.closed)
	})
}

func TestRunCycle_RecipientEvents(t *testing.T) {
	box := newFakeMailbox()
	box.add(1, "alice@corp.example|Standup")

	parser := parserFunc(func(raw []byte) (*ParsedMessage, error) {
		return &ParsedMessage{
			SenderAddress: "alice@corp.example",
			Subject:       "Standup",
			Cc:            []string{"x@corp.example"},
			To:            []string{"a@corp.example", "b@corp.example"},
		}, nil
	})
	svc := NewIngestionService(box, parser, suffixFilter("corp.example"), &scriptedForwarder{}, zap.NewNop())

	report, err := svc.RunCycle(context.Background(), SessionCounters{})
	require.NoError(t, err)

	var messages []string
	for _, evt := range report.Events {
		messages = append(messages, evt.Message)
	}
	assert.Contains(t, messages, "  CC detected: x@corp.example")
	assert.Contains(t, messages, "  To detected: a@corp.example, b@corp.example")
}

func TestCheckConnectivity(t *testing.T) {
	box := newFakeMailbox()
	svc := newTestService(box, &scriptedForwarder{})

	assert.NoError(t, svc.CheckConnectivity(context.Background()))

	box.probeErr = errors.New("authentication failed")
	err := svc.CheckConnectivity(context.Background())
	assert.ErrorIs(t, err, ErrConnection)
	assert.Contains(t, err.Error(), "authentication failed")
}

func TestDescribeResult(t *testing.T) {
	msg := &ParsedMessage{SenderAddress: "alice@corp.example", Subject: "Standup"}

	tests := []struct {
		name      string
		result    *ForwardResult
		wantLevel Level
		wantMsg   string
	}{
		{
			name: "success",
			result: &ForwardResult{Outcome: OutcomeSuccess, Details: map[string]string{
				DetailTitle: "Standup", DetailDate: "2024-05-02 10:00", DetailLocation: "Room A"}},
			wantLevel: LevelSuccess,
			wantMsg:   `Meeting created: "Standup" on 2024-05-02 10:00 - Room A`,
		},
		{
			name:      "conflict defaults",
			result:    &ForwardResult{Outcome: OutcomeConflict, Reason: ReasonConflict, Details: map[string]string{}},
			wantLevel: LevelConflict,
			wantMsg:   `Schedule conflict: "Standup" at ? on ?`,
		},
		{
			name:      "missing room",
			result:    &ForwardResult{Outcome: OutcomeRejected, Reason: ReasonMissingRoom},
			wantLevel: LevelWarning,
			wantMsg:   `Rejected (missing_room): "Standup"`,
		},
		{
			name:      "unauthorized domain",
			result:    &ForwardResult{Outcome: OutcomeRejected, Reason: ReasonUnauthorizedDomain},
			wantLevel: LevelWarning,
			wantMsg:   `Rejected (unauthorized domain): "Standup" from alice@corp.example`,
		},
		{
			name:      "error",
			result:    &ForwardResult{Outcome: OutcomeError, Details: map[string]string{DetailError: "HTTP 503"}},
			wantLevel: LevelError,
			wantMsg:   `Failed to process "Standup": HTTP 503`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt := DescribeResult(msg, tt.result)
			assert.Equal(t, tt.wantLevel, evt.Level)
			assert.Equal(t, tt.wantMsg, evt.Message)
			assert.Equal(t, tt.result.Outcome, evt.Outcome)
		})
	}
}

func TestSessionCounters_Record(t *testing.T) {
	var c SessionCounters
	c.Record(OutcomeSuccess)
	c.Record(OutcomeConflict)
	c.Record(OutcomeRejected)
	c.Record(OutcomeDomainRejected)
	c.Record(OutcomeError)
	c.Record(OutcomeSkipped)

	assert.Equal(t, SessionCounters{Processed: 5, Success: 1, Conflict: 1, Rejected: 2, Error: 1}, c)
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 80))
	assert.Equal(t, "abc", truncate("abcdef", 3))

	// "é" is two bytes; cutting at 2 would split it
	out := truncate("aé", 2)
	assert.Equal(t, "a", out)
	assert.True(t, utf8.ValidString(out))

	long := strings.Repeat("日", 40)
	out = truncate(long, 80)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, strings.Repeat("日", 26), out)
}

type parserFunc func([]byte) (*ParsedMessage, error)

func (f parserFunc) Parse(raw []byte) (*ParsedMessage, error) { return f(raw) }
