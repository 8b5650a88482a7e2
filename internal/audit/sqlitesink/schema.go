package sqlitesink

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements are executed in order. All use IF NOT EXISTS for
// idempotent re-application. The triggers make the table append-only.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS audit_entries (
		id           TEXT PRIMARY KEY,
		ts           TEXT NOT NULL,
		type         TEXT NOT NULL CHECK (type IN ('tool_call', 'file_change')),
		tool         TEXT NOT NULL DEFAULT '',
		parameters   TEXT NOT NULL DEFAULT '',
		result       TEXT NOT NULL DEFAULT '',
		error        TEXT NOT NULL DEFAULT '',
		path         TEXT NOT NULL DEFAULT '',
		action       TEXT NOT NULL DEFAULT '',
		bytes        INTEGER,
		diff_preview TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE INDEX IF NOT EXISTS idx_audit_entries_ts ON audit_entries(ts)`,

	`CREATE TRIGGER IF NOT EXISTS audit_entries_no_update BEFORE UPDATE ON audit_entries BEGIN
		SELECT RAISE(ABORT, 'audit entries are append-only');
	END`,

	`CREATE TRIGGER IF NOT EXISTS audit_entries_no_delete BEFORE DELETE ON audit_entries BEGIN
		SELECT RAISE(ABORT, 'audit entries are append-only');
	END`,
}

// migrate creates or updates the schema to the latest version.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlitesink: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlitesink: read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlitesink: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlitesink: record schema version: %w", err)
	}
	return nil
}
