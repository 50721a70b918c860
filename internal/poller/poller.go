package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/agenda-relay/internal/config"
	"github.com/mikey/agenda-relay/internal/core"
	"github.com/mikey/agenda-relay/internal/metrics"
	"github.com/mikey/agenda-relay/internal/ports"
)

// ErrStopped is returned by Trigger after Stop
var ErrStopped = errors.New("poller stopped")

// Options configures the poller
type Options struct {
	Enabled    bool
	Interval   time.Duration
	RunOnStart bool
}

// Status is a point-in-time view of the poller
type Status struct {
	Counters        core.SessionCounters `json:"counters"`
	IMAPConnected   bool                 `json:"imap_connected"`
	LastCheck       time.Time            `json:"last_check"`
	LastCycleID     string               `json:"last_cycle_id,omitempty"`
	LastCycleAt     time.Time            `json:"last_cycle_at"`
	Interval        time.Duration        `json:"-"`
	IntervalSeconds int                  `json:"interval_seconds"`
	Enabled         bool                 `json:"enabled"`
	CycleRunning    bool                 `json:"cycle_running"`
}

// Poller runs ingestion cycles on a schedule and on demand.
// It owns the session counters and the connectivity status.
type Poller struct {
	runner  ports.CycleRunner
	journal core.Journal
	logger  *zap.Logger
	opts    Options

	// cycleMu serializes cycles, scheduled or manual
	cycleMu sync.Mutex
	running atomic.Bool

	mu          sync.RWMutex
	counters    core.SessionCounters
	imapUp      bool
	lastCheck   time.Time
	lastCycleID string
	lastCycleAt time.Time
	interval    time.Duration

	intervalCh chan time.Duration
	stopCh     chan struct{}
	stopped    atomic.Bool
	wg         sync.WaitGroup
}

// New creates a new poller
func New(runner ports.CycleRunner, journal core.Journal, opts Options, logger *zap.Logger) (*Poller, error) {
	if err := config.ValidateInterval(opts.Interval); err != nil {
		return nil, err
	}
	metrics.PollInterval.Set(opts.Interval.Seconds())

	return &Poller{
		runner:     runner,
		journal:    journal,
		logger:     logger,
		opts:       opts,
		interval:   opts.Interval,
		intervalCh: make(chan time.Duration, 1),
		stopCh:     make(chan struct{}),
	}, nil
}

// Start probes the mail server and starts the schedule when enabled
func (p *Poller) Start() error {
	p.logger.Info("Starting poller",
		zap.Bool("enabled", p.opts.Enabled),
		zap.Duration("interval", p.opts.Interval),
		zap.Bool("run_on_start", p.opts.RunOnStart))

	if err := p.Check(context.Background()); err != nil {
		p.logger.Warn("Initial connectivity check failed", zap.Error(err))
	}

	if !p.opts.Enabled {
		return nil
	}

	p.wg.Add(1)
	go p.loop()
	return nil
}

// Stop stops the schedule and waits for a running cycle to finish
func (p *Poller) Stop() error {
	if p.stopped.Swap(true) {
		return nil
	}
	close(p.stopCh)
	p.wg.Wait()

	// Wait for a manually triggered cycle as well
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	p.logger.Info("Poller stopped")
	return nil
}

func (p *Poller) loop() {
	defer p.wg.Done()

	if p.opts.RunOnStart {
		p.scheduledCycle()
	}

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.scheduledCycle()
		case d := <-p.intervalCh:
			ticker.Reset(d)
			p.logger.Info("Polling interval changed", zap.Duration("interval", d))
		case <-p.stopCh:
			return
		}
	}
}

func (p *Poller) scheduledCycle() {
	select {
	case <-p.stopCh:
		return
	default:
	}
	// A cycle is never cancelled mid-way, so it does not inherit any shutdown signal
	if _, err := p.runCycle(context.Background()); err != nil {
		p.logger.Warn("Scheduled cycle failed", zap.Error(err))
	}
}

// Trigger runs one cycle now, waiting for any cycle already in progress
func (p *Poller) Trigger(ctx context.Context) (*core.CycleReport, error) {
	if p.stopped.Load() {
		return nil, ErrStopped
	}
	return p.runCycle(ctx)
}

func (p *Poller) runCycle(ctx context.Context) (*core.CycleReport, error) {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()
	p.running.Store(true)
	defer p.running.Store(false)

	// The caller may go away; the cycle still runs to completion
	report, err := p.runner.RunCycle(context.WithoutCancel(ctx), core.SessionCounters{})

	result := metrics.CycleOK
	if err != nil {
		result = metrics.CycleError
	}
	metrics.CyclesTotal.WithLabelValues(result).Inc()
	if report != nil {
		metrics.CycleDuration.Observe(report.Duration().Seconds())
		for _, evt := range report.Events {
			if evt.Outcome != "" {
				metrics.MessagesTotal.WithLabelValues(string(evt.Outcome)).Inc()
			}
		}
	}

	p.mu.Lock()
	p.setIMAPStatus(err == nil, time.Now())
	if report != nil {
		// The cycle reports a delta; a reset during the cycle is preserved
		p.counters.Add(report.Counters)
		report.Counters = p.counters
		p.lastCycleID = report.CycleID
		p.lastCycleAt = report.FinishedAt
	}
	p.mu.Unlock()

	if report != nil {
		p.record(ctx, report.Events...)
	}
	return report, err
}

// Check probes the mail server and records the result
func (p *Poller) Check(ctx context.Context) error {
	err := p.runner.CheckConnectivity(ctx)

	p.mu.Lock()
	p.setIMAPStatus(err == nil, time.Now())
	p.mu.Unlock()

	evt := core.Event{Level: core.LevelSuccess, Message: "IMAP connection OK"}
	if err != nil {
		evt = core.Event{Level: core.LevelError, Message: "IMAP connection failed: " + err.Error()}
	}
	p.record(ctx, evt)
	return err
}

// setIMAPStatus must be called with mu held
func (p *Poller) setIMAPStatus(up bool, at time.Time) {
	p.imapUp = up
	p.lastCheck = at
	if up {
		metrics.IMAPUp.Set(1)
	} else {
		metrics.IMAPUp.Set(0)
	}
}

// ResetCounters zeroes the session counters
func (p *Poller) ResetCounters() {
	p.mu.Lock()
	p.counters = core.SessionCounters{}
	p.mu.Unlock()

	p.logger.Info("Session counters reset")
}

// SetInterval changes the polling interval at runtime
func (p *Poller) SetInterval(d time.Duration) error {
	if err := config.ValidateInterval(d); err != nil {
		return err
	}

	p.mu.Lock()
	p.interval = d
	p.mu.Unlock()
	metrics.PollInterval.Set(d.Seconds())

	// Keep only the latest pending change
	for {
		select {
		case p.intervalCh <- d:
			return nil
		default:
		}
		select {
		case <-p.intervalCh:
		default:
		}
	}
}

// Interval returns the current polling interval
func (p *Poller) Interval() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.interval
}

// Snapshot returns the current status
func (p *Poller) Snapshot() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return Status{
		Counters:        p.counters,
		IMAPConnected:   p.imapUp,
		LastCheck:       p.lastCheck,
		LastCycleID:     p.lastCycleID,
		LastCycleAt:     p.lastCycleAt,
		Interval:        p.interval,
		IntervalSeconds: int(p.interval / time.Second),
		Enabled:         p.opts.Enabled,
		CycleRunning:    p.running.Load(),
	}
}

// record appends events to the journal; a journal failure never affects processing
func (p *Poller) record(ctx context.Context, events ...core.Event) {
	if p.journal == nil || len(events) == 0 {
		return
	}
	if err := p.journal.Append(context.WithoutCancel(ctx), events...); err != nil {
		p.logger.Error("Failed to append to journal", zap.Error(err), zap.Int("events", len(events)))
	}
}
