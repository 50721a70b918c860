package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mikey/agenda-relay/internal/core"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS journal_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at TIMESTAMP NOT NULL,
	cycle_id TEXT NOT NULL DEFAULT '',
	uid INTEGER NOT NULL DEFAULT 0,
	level TEXT NOT NULL,
	outcome TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL,
	sender TEXT NOT NULL DEFAULT '',
	subject TEXT NOT NULL DEFAULT '',
	details TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_journal_created_at ON journal_events(created_at);
CREATE INDEX IF NOT EXISTS idx_journal_level ON journal_events(level);
`

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS journal_events (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	created_at DATETIME(6) NOT NULL,
	cycle_id VARCHAR(36) NOT NULL DEFAULT '',
	uid INT UNSIGNED NOT NULL DEFAULT 0,
	level VARCHAR(16) NOT NULL,
	outcome VARCHAR(32) NOT NULL DEFAULT '',
	message TEXT NOT NULL,
	sender VARCHAR(320) NOT NULL DEFAULT '',
	subject TEXT NOT NULL,
	details TEXT NOT NULL,
	INDEX idx_journal_created_at (created_at),
	INDEX idx_journal_level (level)
)`

// eventRow is the storage form of core.Event
type eventRow struct {
	core.Event
	DetailsJSON string `db:"details"`
}

// SQLJournal is a database implementation of the core.Journal interface
type SQLJournal struct {
	db          *sqlx.DB
	backend     string
	maxEntries  int
	retention   time.Duration
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewSQLiteJournal creates a new journal stored in a SQLite file
func NewSQLiteJournal(dbPath string, logger *zap.Logger, maxEntries int, retention, cleanupFreq time.Duration) (*SQLJournal, error) {
	db, err := sqlx.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// A single writer avoids "database is locked" between the poller and the API
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal table: %w", err)
	}

	return newSQLJournal(db, backendSQLite, logger, maxEntries, retention, cleanupFreq), nil
}

// NewMySQLJournal creates a new journal stored in MySQL.
// parseTime is forced on so timestamps scan into time.Time.
func NewMySQLJournal(dsn string, logger *zap.Logger, maxEntries int, retention, cleanupFreq time.Duration) (*SQLJournal, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := sqlx.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	if _, err := db.Exec(mysqlSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal table: %w", err)
	}

	return newSQLJournal(db, backendMySQL, logger, maxEntries, retention, cleanupFreq), nil
}

func newSQLJournal(db *sqlx.DB, backend string, logger *zap.Logger, maxEntries int, retention, cleanupFreq time.Duration) *SQLJournal {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	j := &SQLJournal{
		db:          db,
		backend:     backend,
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

// Append stores events and trims the table to maxEntries
func (j *SQLJournal) Append(ctx context.Context, events ...core.Event) (err error) {
	defer func() { observe(j.backend, "append", err) }()
	if len(events) == 0 {
		return nil
	}

	tx, err := j.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin journal transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, evt := range events {
		row, rowErr := toRow(evt)
		if rowErr != nil {
			return rowErr
		}
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO journal_events (created_at, cycle_id, uid, level, outcome, message, sender, subject, details)
			VALUES (:created_at, :cycle_id, :uid, :level, :outcome, :message, :sender, :subject, :details)
		`, row)
		if err != nil {
			return fmt.Errorf("failed to insert journal event: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM journal_events
		WHERE id NOT IN (
			SELECT id FROM (SELECT id FROM journal_events ORDER BY id DESC LIMIT ?) AS keep
		)
	`, j.maxEntries)
	if err != nil {
		return fmt.Errorf("failed to trim journal: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit journal events: %w", err)
	}
	return nil
}

// List returns the newest events first, optionally filtered by level
func (j *SQLJournal) List(ctx context.Context, level core.Level, limit int) (events []core.Event, err error) {
	defer func() { observe(j.backend, "list", err) }()

	if limit <= 0 || limit > j.maxEntries {
		limit = j.maxEntries
	}

	query := `SELECT id, created_at, cycle_id, uid, level, outcome, message, sender, subject, details FROM journal_events`
	args := []any{}
	if level != "" {
		query += ` WHERE level = ?`
		args = append(args, string(level))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	var rows []eventRow
	if err = j.db.SelectContext(ctx, &rows, j.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}

	events = make([]core.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, fromRow(row, j.logger))
	}
	return events, nil
}

// Clear removes every event
func (j *SQLJournal) Clear(ctx context.Context) (err error) {
	defer func() { observe(j.backend, "clear", err) }()

	if _, err = j.db.ExecContext(ctx, `DELETE FROM journal_events`); err != nil {
		return fmt.Errorf("failed to clear journal: %w", err)
	}
	return nil
}

// Cleanup removes events older than the retention period
func (j *SQLJournal) Cleanup(ctx context.Context) (err error) {
	if j.retention <= 0 {
		return nil
	}
	defer func() { observe(j.backend, "cleanup", err) }()

	cutoff := time.Now().UTC().Add(-j.retention)
	result, err := j.db.ExecContext(ctx, j.db.Rebind(`DELETE FROM journal_events WHERE created_at < ?`), cutoff)
	if err != nil {
		return fmt.Errorf("failed to clean up expired journal entries: %w", err)
	}

	rowsAffected, raErr := result.RowsAffected()
	if raErr != nil {
		j.logger.Warn("Failed to get rows affected during cleanup", zap.Error(raErr))
	} else {
		j.logger.Debug("Cleaned up expired journal entries", zap.Int64("expired_count", rowsAffected))
	}
	return nil
}

// Stop stops the background cleanup task and closes the database connection
func (j *SQLJournal) Stop() {
	j.stopOnce.Do(func() {
		close(j.stopCh)
		if err := j.db.Close(); err != nil {
			j.logger.Error("Failed to close journal database", zap.String("backend", j.backend), zap.Error(err))
		}
	})
}

func toRow(evt core.Event) (eventRow, error) {
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}
	evt.Time = evt.Time.UTC()

	row := eventRow{Event: evt}
	if len(evt.Details) > 0 {
		data, err := json.Marshal(evt.Details)
		if err != nil {
			return row, fmt.Errorf("failed to encode event details: %w", err)
		}
		row.DetailsJSON = string(data)
	}
	return row, nil
}

func fromRow(row eventRow, logger *zap.Logger) core.Event {
	evt := row.Event
	if row.DetailsJSON != "" {
		if err := json.Unmarshal([]byte(row.DetailsJSON), &evt.Details); err != nil {
			logger.Warn("Failed to decode event details", zap.Int64("id", evt.ID), zap.Error(err))
		}
	}
	return evt
}
