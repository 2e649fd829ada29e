package ledger

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/gpuheald/internal/detector"
	"codeberg.org/mutker/gpuheald/internal/errors"
	"codeberg.org/mutker/gpuheald/internal/logger"
	"codeberg.org/mutker/gpuheald/internal/planner"

	_ "github.com/mattn/go-sqlite3"
)

type sqliteLedger struct {
	db  *sql.DB
	log logger.Logger
	mu  sync.Mutex
}

// New opens (or creates) the ledger database. The schema is validated
// against the current version and recreated, with a backup, on mismatch.
func New(cfg Config, log logger.Logger) (Ledger, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	log.Debug().Str("path", cfg.DBPath).Msg("Initializing healing ledger")

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	if err := ValidateAndUpdateSchema(db, cfg.DBPath, log); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Msg("Healing ledger initialized")

	return &sqliteLedger{
		db:  db,
		log: log,
	}, nil
}

func (l *sqliteLedger) RecordEvent(ctx context.Context, event *HealingEvent) error {
	errFactory := errors.New()

	if event == nil || event.ID == "" {
		return errFactory.New(ErrInvalidRecord)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.ExecContext(ctx, insertEventSQL,
		event.ID,
		event.Timestamp.Unix(),
		event.EventType,
		string(event.Severity),
		event.Description,
		event.ActionTaken,
		boolToInt(event.Success),
	)
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (l *sqliteLedger) RecordAttempt(ctx context.Context, attempt *ActionAttempt) error {
	errFactory := errors.New()

	if attempt == nil || attempt.ID == "" || attempt.EventID == "" {
		return errFactory.New(ErrInvalidRecord)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.ExecContext(ctx, insertAttemptSQL,
		attempt.ID,
		attempt.Timestamp.Unix(),
		attempt.Target,
		attempt.Action,
		attempt.Reason,
		attempt.EventID,
		boolToInt(attempt.Success),
		attempt.ErrorMessage,
		attempt.DurationMs,
		attempt.Metadata,
	)
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	return nil
}

// Summary answers "current believed health, most recent event, most
// recent action" from the two newest rows.
func (l *sqliteLedger) Summary(ctx context.Context) (*HealthSummary, error) {
	events, err := l.RecentEvents(ctx, 1)
	if err != nil {
		return nil, err
	}

	attempts, err := l.RecentAttempts(ctx, 1)
	if err != nil {
		return nil, err
	}

	summary := &HealthSummary{
		CurrentStatus:     "healthy",
		RecommendedAction: planner.ActionNone.String(),
	}

	if len(events) > 0 {
		event := events[0]
		summary.LastEvent = &event
		summary.RecommendedAction = planner.Recommend(detector.Category(event.EventType)).String()

		switch event.Severity {
		case SeverityCritical:
			summary.CurrentStatus = "critical"
		case SeverityWarning:
			summary.CurrentStatus = "degraded"
		case SeverityInfo:
			summary.CurrentStatus = "healthy"
		}
	}

	if len(attempts) > 0 {
		attempt := attempts[0]
		summary.LastAction = &attempt
	}

	return summary, nil
}

func (l *sqliteLedger) RecentEvents(ctx context.Context, limit int) ([]HealingEvent, error) {
	errFactory := errors.New()

	rows, err := l.db.QueryContext(ctx, `
        SELECT id, timestamp, event_type, severity, description, action_taken, success
        FROM healing_events
        ORDER BY timestamp DESC, rowid DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}
	defer rows.Close()

	var events []HealingEvent
	for rows.Next() {
		var (
			event   HealingEvent
			ts      int64
			success int
		)
		if err := rows.Scan(&event.ID, &ts, &event.EventType, &event.Severity,
			&event.Description, &event.ActionTaken, &success); err != nil {
			return nil, errFactory.Wrap(ErrQueryFailed, err)
		}
		event.Timestamp = time.Unix(ts, 0)
		event.Success = success == 1
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}

	return events, nil
}

func (l *sqliteLedger) RecentAttempts(ctx context.Context, limit int) ([]ActionAttempt, error) {
	errFactory := errors.New()

	rows, err := l.db.QueryContext(ctx, `
        SELECT id, timestamp, target, action, reason, event_id,
               success, error_message, duration_ms, metadata
        FROM action_attempts
        ORDER BY timestamp DESC, rowid DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}
	defer rows.Close()

	var attempts []ActionAttempt
	for rows.Next() {
		var (
			attempt ActionAttempt
			ts      int64
			success int
		)
		if err := rows.Scan(&attempt.ID, &ts, &attempt.Target, &attempt.Action,
			&attempt.Reason, &attempt.EventID, &success, &attempt.ErrorMessage,
			&attempt.DurationMs, &attempt.Metadata); err != nil {
			return nil, errFactory.Wrap(ErrQueryFailed, err)
		}
		attempt.Timestamp = time.Unix(ts, 0)
		attempt.Success = success == 1
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}

	return attempts, nil
}

// Prune deletes rows older than the retention horizon. Runs during idle
// cycles; the append-only guarantee covers the retention window only.
func (l *sqliteLedger) Prune(ctx context.Context, before time.Time) (int64, error) {
	errFactory := errors.New()

	l.mu.Lock()
	defer l.mu.Unlock()

	var pruned int64
	for _, table := range []string{"action_attempts", "healing_events"} {
		res, err := l.db.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE timestamp < ?", before.Unix())
		if err != nil {
			return pruned, errFactory.Wrap(ErrStorageAccess, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			pruned += n
		}
	}

	return pruned, nil
}

func (l *sqliteLedger) Close() error {
	errFactory := errors.New()

	l.mu.Lock()
	defer l.mu.Unlock()

	// Checkpoint WAL and cleanup on close
	if _, err := l.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		l.log.Debug().Err(err).Msg("Failed to checkpoint WAL")
	}

	if err := l.db.Close(); err != nil {
		return errFactory.Wrap(ErrStorageClose, err)
	}

	l.log.Info().Msg("Healing ledger closed gracefully")

	return nil
}
