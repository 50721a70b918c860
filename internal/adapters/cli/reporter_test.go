package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mikey/agenda-relay/internal/core"
)

func TestReporter_PrintMessage(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, true)

	r.PrintMessage(&core.ParsedMessage{
		SenderAddress: "alice@corp.example",
		SenderDisplay: "Alice <alice@corp.example>",
		Subject:       "Standup",
		Body:          strings.Repeat("a", 600),
		To:            []string{"agenda@corp.example"},
		Cc:            []string{},
	}, true)

	out := buf.String()
	assert.Contains(t, out, "From: Alice <alice@corp.example>")
	assert.Contains(t, out, "Cc: (none)")
	assert.Contains(t, out, "Authorized sender: true")
	assert.Contains(t, out, strings.Repeat("a", 500)+"...")
}

func TestReporter_PrintForwardResult(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, false)

	r.PrintForwardResult(
		&core.ParsedMessage{SenderAddress: "alice@corp.example", Subject: "Standup"},
		&core.ForwardResult{Outcome: core.OutcomeConflict, Reason: core.ReasonConflict, StatusCode: 409,
			Details: map[string]string{core.DetailLocation: "Room A", core.DetailDate: "2024-05-02"}},
	)

	out := buf.String()
	assert.Contains(t, out, "Outcome: conflict")
	assert.Contains(t, out, "HTTP status: 409")
	assert.Contains(t, out, `[CONFLICT] Schedule conflict: "Standup" at Room A on 2024-05-02`)
}

func TestReporter_PrintReport(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, false)

	start := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	r.PrintReport(&core.CycleReport{
		CycleID:    "c1",
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Second),
		Unseen:     1,
		Events:     []core.Event{{Time: start, Level: core.LevelInfo, Message: "Found 1 unseen message(s)."}},
		Counters:   core.SessionCounters{Processed: 1, Success: 1},
	})

	out := buf.String()
	assert.Contains(t, out, "10:00:00 [INFO] Found 1 unseen message(s).")
	assert.Contains(t, out, "Success: 1")
	assert.Contains(t, out, "Duration: 2s")
}

func TestReporter_PrintCheck(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, false)

	r.PrintCheck(nil)
	r.PrintCheck(errors.New("refused"))
	assert.Equal(t, "IMAP connection OK\nIMAP connection failed: refused\n", buf.String())
}
