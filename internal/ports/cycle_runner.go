package ports

import (
	"context"

	"github.com/mikey/agenda-relay/internal/core"
)

// CycleRunner defines the interface the presentation layer drives the pipeline through
type CycleRunner interface {
	// RunCycle processes every unseen message once
	RunCycle(ctx context.Context, counters core.SessionCounters) (*core.CycleReport, error)

	// CheckConnectivity probes the mail server
	CheckConnectivity(ctx context.Context) error
}
