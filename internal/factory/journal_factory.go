package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mikey/agenda-relay/internal/adapters/journal"
	"github.com/mikey/agenda-relay/internal/config"
)

// JournalFactory creates event journals based on configuration
type JournalFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewJournalFactory creates a new journal factory
func NewJournalFactory(cfg *config.Config, logger *zap.Logger) *JournalFactory {
	return &JournalFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateJournal creates a journal based on the configuration
func (f *JournalFactory) CreateJournal() (journal.Journal, error) {
	jc, err := f.cfg.GetJournal()
	if err != nil {
		return nil, fmt.Errorf("invalid journal configuration: %w", err)
	}

	f.logger.Info("Creating event journal", zap.String("type", jc.Type), zap.Int("max_entries", jc.MaxEntries))

	switch jc.Type {
	case "memory":
		return journal.NewMemoryJournal(f.logger, jc.MaxEntries, jc.Retention, jc.CleanupFrequency), nil
	case "sqlite":
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(jc.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return journal.NewSQLiteJournal(jc.SQLitePath, f.logger, jc.MaxEntries, jc.Retention, jc.CleanupFrequency)
	case "mysql":
		return journal.NewMySQLJournal(jc.MySQLDSN, f.logger, jc.MaxEntries, jc.Retention, jc.CleanupFrequency)
	default:
		return nil, fmt.Errorf("unsupported journal type: %s", jc.Type)
	}
}
