package core

import (
	"time"
)

// ParsedMessage represents the fields extracted from one mailbox message
type ParsedMessage struct {
	SenderAddress string
	SenderDisplay string
	Subject       string
	Body          string
	Cc            []string
	To            []string
}

// ForwardAddress is the sender value sent to the scheduling service.
// The bare address wins; the decoded display form is used when no address could be parsed.
func (m *ParsedMessage) ForwardAddress() string {
	if m.SenderAddress != "" {
		return m.SenderAddress
	}
	return m.SenderDisplay
}

// Outcome is the terminal classification of a message
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeConflict       Outcome = "conflict"
	OutcomeRejected       Outcome = "rejected"
	OutcomeDomainRejected Outcome = "domain_rejected"
	OutcomeError          Outcome = "error"
	// OutcomeSkipped marks a message that could not be fetched or parsed; it stays unseen.
	OutcomeSkipped Outcome = "skipped"
)

// Reason is the sub-reason reported by the scheduling service
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonConflict           Reason = "conflict"
	ReasonMissingDateTime    Reason = "missing_date_time"
	ReasonMissingRoom        Reason = "missing_room"
	ReasonUnauthorizedDomain Reason = "unauthorized_domain"
	ReasonOtherError         Reason = "other_error"
)

// Detail keys used in ForwardResult.Details
const (
	DetailTitle    = "title"
	DetailDate     = "date"
	DetailLocation = "location"
	DetailError    = "error"
)

// ForwardResult represents the interpreted answer of the scheduling service
type ForwardResult struct {
	Accepted   bool
	Outcome    Outcome
	Reason     Reason
	StatusCode int
	Details    map[string]string
	Duration   time.Duration
}

// Level is the severity of an activity event
type Level string

const (
	LevelInfo     Level = "info"
	LevelSuccess  Level = "success"
	LevelWarning  Level = "warning"
	LevelConflict Level = "conflict"
	LevelError    Level = "error"
)

// Event is one entry of the activity history
type Event struct {
	ID      int64             `json:"id,omitempty" db:"id"`
	Time    time.Time         `json:"time" db:"created_at"`
	CycleID string            `json:"cycle_id" db:"cycle_id"`
	UID     uint32            `json:"uid,omitempty" db:"uid"`
	Level   Level             `json:"level" db:"level"`
	Outcome Outcome           `json:"outcome,omitempty" db:"outcome"`
	Message string            `json:"message" db:"message"`
	Sender  string            `json:"sender,omitempty" db:"sender"`
	Subject string            `json:"subject,omitempty" db:"subject"`
	Details map[string]string `json:"details,omitempty" db:"-"`
}

// SessionCounters holds the running totals shown to operators.
// The pipeline never keeps them; callers pass them in and keep the returned copy.
type SessionCounters struct {
	Processed int `json:"processed"`
	Success   int `json:"success"`
	Conflict  int `json:"conflict"`
	Rejected  int `json:"rejected"`
	Error     int `json:"error"`
}

// Record applies one classification to the counters
func (c *SessionCounters) Record(outcome Outcome) {
	switch outcome {
	case OutcomeSuccess:
		c.Processed++
		c.Success++
	case OutcomeConflict:
		c.Processed++
		c.Conflict++
	case OutcomeRejected, OutcomeDomainRejected:
		c.Processed++
		c.Rejected++
	case OutcomeError:
		c.Processed++
		c.Error++
	}
}

// Add accumulates another set of counters
func (c *SessionCounters) Add(other SessionCounters) {
	c.Processed += other.Processed
	c.Success += other.Success
	c.Conflict += other.Conflict
	c.Rejected += other.Rejected
	c.Error += other.Error
}

// CycleReport is the result of one poll-fetch-classify-acknowledge pass
type CycleReport struct {
	CycleID    string          `json:"cycle_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Unseen     int             `json:"unseen"`
	Processed  int             `json:"processed"`
	Events     []Event         `json:"events"`
	Counters   SessionCounters `json:"counters"`
}

// Duration returns how long the cycle ran
func (r *CycleReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
