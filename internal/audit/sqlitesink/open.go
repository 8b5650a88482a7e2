// Package sqlitesink mirrors audit entries into an insert-only SQLite
// table. It uses modernc.org/sqlite (pure Go, no CGO) in WAL mode.
package sqlitesink

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flemzord/toolcore/internal/audit"

	_ "modernc.org/sqlite" // SQLite driver registration
)

const defaultBusyTimeout = 5000

// Compile-time interface guard.
var _ audit.Sink = (*Sink)(nil)

// Sink implements audit.Sink backed by SQLite.
type Sink struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and migrates the
// schema. The database uses WAL mode, a 5 s busy timeout, and a single
// connection (SQLite serialises writes).
func Open(ctx context.Context, path string) (*Sink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlitesink: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitesink: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitesink: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitesink: set busy_timeout: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Sink{db: db}, nil
}

// Write implements audit.Sink.
func (s *Sink) Write(ctx context.Context, e audit.Entry) error {
	var bytesCol sql.NullInt64
	if e.Bytes != nil {
		bytesCol = sql.NullInt64{Int64: int64(*e.Bytes), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO audit_entries
		(id, ts, type, tool, parameters, result, error, path, action, bytes, diff_preview)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp, string(e.Type), e.Tool, e.Parameters, e.Result, e.Error,
		e.Path, e.Action, bytesCol, e.DiffPreview,
	)
	if err != nil {
		return fmt.Errorf("sqlitesink: insert %s: %w", e.ID, err)
	}
	return nil
}

// Count returns the number of stored entries of the given type, or of all
// types when t is empty.
func (s *Sink) Count(ctx context.Context, t audit.EntryType) (int, error) {
	var n int
	var err error
	if t == "" {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_entries").Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_entries WHERE type = ?", string(t)).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("sqlitesink: count: %w", err)
	}
	return n, nil
}

// Close implements audit.Sink.
func (s *Sink) Close() error {
	return s.db.Close()
}
