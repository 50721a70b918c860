package journal

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/agenda-relay/internal/core"
)

// DefaultMaxEntries is the history size kept when none is configured
const DefaultMaxEntries = 100

// MemoryJournal is an in-memory implementation of the core.Journal interface.
// It keeps at most maxEntries events and forgets them on restart.
type MemoryJournal struct {
	events      []core.Event
	nextID      int64
	maxEntries  int
	retention   time.Duration
	mu          sync.RWMutex
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewMemoryJournal creates a new in-memory journal
func NewMemoryJournal(logger *zap.Logger, maxEntries int, retention, cleanupFreq time.Duration) *MemoryJournal {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	j := &MemoryJournal{
		events:      make([]core.Event, 0, maxEntries),
		maxEntries:  maxEntries,
		retention:   retention,
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}

	if retention > 0 && cleanupFreq > 0 {
		go startCleanupTask(j, logger, cleanupFreq, j.stopCh)
	}

	return j
}

// Append stores events, dropping the oldest beyond maxEntries
func (j *MemoryJournal) Append(ctx context.Context, events ...core.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, evt := range events {
		j.nextID++
		evt.ID = j.nextID
		if evt.Time.IsZero() {
			evt.Time = time.Now()
		}
		j.events = append(j.events, evt)
	}

	if overflow := len(j.events) - j.maxEntries; overflow > 0 {
		j.events = append(j.events[:0], j.events[overflow:]...)
	}

	observe(backendMemory, "append", nil)
	return nil
}

// List returns the newest events first
func (j *MemoryJournal) List(ctx context.Context, level core.Level, limit int) ([]core.Event, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if limit <= 0 || limit > j.maxEntries {
		limit = j.maxEntries
	}

	result := make([]core.Event, 0, min(limit, len(j.events)))
	for i := len(j.events) - 1; i >= 0 && len(result) < limit; i-- {
		if level != "" && j.events[i].Level != level {
			continue
		}
		result = append(result, j.events[i])
	}

	observe(backendMemory, "list", nil)
	return result, nil
}

// Clear removes every event
func (j *MemoryJournal) Clear(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.events = j.events[:0]
	observe(backendMemory, "clear", nil)
	return nil
}

// Cleanup removes events older than the retention period
func (j *MemoryJournal) Cleanup(ctx context.Context) error {
	if j.retention <= 0 {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	cutoff := time.Now().Add(-j.retention)
	kept := j.events[:0]
	for _, evt := range j.events {
		if evt.Time.After(cutoff) {
			kept = append(kept, evt)
		}
	}
	expired := len(j.events) - len(kept)
	j.events = kept

	j.logger.Debug("Cleaned up expired journal entries", zap.Int("expired_count", expired))
	observe(backendMemory, "cleanup", nil)
	return nil
}

// Stop stops the background cleanup task
func (j *MemoryJournal) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
}
