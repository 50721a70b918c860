package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/mikey/agenda-relay/internal/core"
)

// previewSize is how much of the body is printed in verbose mode
const previewSize = 500

// Reporter prints pipeline results for a terminal
type Reporter struct {
	out     io.Writer
	verbose bool
}

// NewReporter creates a new CLI reporter
func NewReporter(out io.Writer, verbose bool) *Reporter {
	return &Reporter{out: out, verbose: verbose}
}

// PrintMessage prints a parsed message and whether its sender is authorized
func (r *Reporter) PrintMessage(msg *core.ParsedMessage, authorized bool) {
	fmt.Fprintf(r.out, "\n=== Message Summary ===\n")
	fmt.Fprintf(r.out, "From: %s\n", msg.SenderDisplay)
	fmt.Fprintf(r.out, "Sender address: %s\n", orNone(msg.SenderAddress))
	fmt.Fprintf(r.out, "To: %s\n", orNone(strings.Join(msg.To, ", ")))
	fmt.Fprintf(r.out, "Cc: %s\n", orNone(strings.Join(msg.Cc, ", ")))
	fmt.Fprintf(r.out, "Subject: %s\n", msg.Subject)
	fmt.Fprintf(r.out, "Body length: %d bytes\n", len(msg.Body))
	fmt.Fprintf(r.out, "Authorized sender: %t\n", authorized)

	if r.verbose {
		preview := msg.Body
		if len(preview) > previewSize {
			preview = preview[:previewSize] + "..."
		}
		fmt.Fprintf(r.out, "\nBody preview:\n%s\n", preview)
	}
}

// PrintForwardResult prints the classification of one forwarded message
func (r *Reporter) PrintForwardResult(msg *core.ParsedMessage, result *core.ForwardResult) {
	evt := core.DescribeResult(msg, result)

	fmt.Fprintf(r.out, "\n=== Result ===\n")
	fmt.Fprintf(r.out, "Outcome: %s\n", result.Outcome)
	if result.Reason != "" {
		fmt.Fprintf(r.out, "Reason: %s\n", result.Reason)
	}
	if result.StatusCode != 0 {
		fmt.Fprintf(r.out, "HTTP status: %d\n", result.StatusCode)
	}
	fmt.Fprintf(r.out, "Processing time: %v\n", result.Duration)
	fmt.Fprintf(r.out, "[%s] %s\n", strings.ToUpper(string(evt.Level)), evt.Message)
}

// PrintReport prints a cycle report with its activity log
func (r *Reporter) PrintReport(report *core.CycleReport) {
	fmt.Fprintf(r.out, "\n=== Cycle %s ===\n", report.CycleID)
	for _, evt := range report.Events {
		fmt.Fprintf(r.out, "%s [%s] %s\n", evt.Time.Format("15:04:05"), strings.ToUpper(string(evt.Level)), evt.Message)
	}

	c := report.Counters
	fmt.Fprintf(r.out, "\n=== Totals ===\n")
	fmt.Fprintf(r.out, "Unseen: %d\n", report.Unseen)
	fmt.Fprintf(r.out, "Processed: %d\n", c.Processed)
	fmt.Fprintf(r.out, "Success: %d\n", c.Success)
	fmt.Fprintf(r.out, "Conflict: %d\n", c.Conflict)
	fmt.Fprintf(r.out, "Rejected: %d\n", c.Rejected)
	fmt.Fprintf(r.out, "Error: %d\n", c.Error)
	fmt.Fprintf(r.out, "Duration: %v\n", report.Duration())
}

// PrintCheck prints the result of a connectivity probe
func (r *Reporter) PrintCheck(err error) {
	if err != nil {
		fmt.Fprintf(r.out, "IMAP connection failed: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "IMAP connection OK\n")
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
