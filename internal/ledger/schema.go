package ledger

import (
	"database/sql"

	"codeberg.org/mutker/gpuheald/internal/errors"
	"codeberg.org/mutker/gpuheald/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS healing_events (
	       id           TEXT PRIMARY KEY,
	       timestamp    INTEGER NOT NULL,
	       event_type   TEXT NOT NULL,
	       severity     TEXT NOT NULL CHECK (severity IN ('info', 'warning', 'critical')),
	       description  TEXT NOT NULL,
	       action_taken TEXT NOT NULL DEFAULT '',
	       success      INTEGER NOT NULL CHECK (success IN (0, 1))
	   );
	   CREATE INDEX IF NOT EXISTS idx_healing_events_timestamp
	       ON healing_events (timestamp);
	   CREATE TABLE IF NOT EXISTS action_attempts (
	       id            TEXT PRIMARY KEY,
	       timestamp     INTEGER NOT NULL,
	       target        TEXT NOT NULL,
	       action        TEXT NOT NULL,
	       reason        TEXT NOT NULL,
	       event_id      TEXT NOT NULL REFERENCES healing_events(id),
	       success       INTEGER NOT NULL CHECK (success IN (0, 1)),
	       error_message TEXT NOT NULL DEFAULT '',
	       duration_ms   INTEGER NOT NULL,
	       metadata      TEXT NOT NULL DEFAULT ''
	   );
	   CREATE INDEX IF NOT EXISTS idx_action_attempts_timestamp
	       ON action_attempts (timestamp);`

	insertEventSQL = `
    INSERT INTO healing_events (
        id, timestamp, event_type, severity, description, action_taken, success
    ) VALUES (?, ?, ?, ?, ?, ?, ?)`

	insertAttemptSQL = `
    INSERT INTO action_attempts (
        id, timestamp, target, action, reason, event_id,
        success, error_message, duration_ms, metadata
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating ledger schema...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	// Track transaction state
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				if !errors.Is(err, sql.ErrTxDone) {
					log.Debug().Err(err).Msg("Failed to rollback transaction")
				}
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			SQL   string
		}{
			Error: err.Error(),
			SQL:   createTablesSQL,
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("Ledger schema initialized")

	return nil
}

// GetSchemaVersion returns the current schema version
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := tableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

func tableExists(db *sql.DB, tableName string) (bool, error) {
	errFactory := errors.New()
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}
	return exists, nil
}
