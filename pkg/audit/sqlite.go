package audit

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/agentstation/enrollsync/pkg/constants"
	"github.com/agentstation/enrollsync/pkg/errors"
)

const schema = `CREATE TABLE IF NOT EXISTS audit_entries (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id    TEXT NOT NULL,
	stage     TEXT NOT NULL,
	target    TEXT NOT NULL,
	key       TEXT NOT NULL,
	record_id TEXT NOT NULL DEFAULT '',
	action    TEXT NOT NULL,
	detail    TEXT NOT NULL DEFAULT '',
	dry_run   INTEGER NOT NULL DEFAULT 0,
	at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_entries_run ON audit_entries (run_id);`

// SQLiteRecorder appends entries to a SQLite database file.
type SQLiteRecorder struct {
	db *sql.DB
}

// OpenSQLite opens or creates the ledger at path.
func OpenSQLite(path string) (*SQLiteRecorder, error) {
	if path == "" {
		return nil, errors.NewValidationError("audit_db", path, "path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), constants.DirPermissions); err != nil {
		return nil, errors.WrapIO("create", filepath.Dir(path), err)
	}
	// the ledger holds participant identifiers; keep it private
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, constants.SecureFilePermissions)
	if err != nil {
		return nil, errors.WrapIO("create", path, err)
	}
	_ = f.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WrapResource("open", "audit ledger", path, err)
	}
	// one writer; entries are appended in run order
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.WrapResource("create", "audit table", path, err)
	}
	return &SQLiteRecorder{db: db}, nil
}

// Record implements Recorder.
func (s *SQLiteRecorder) Record(ctx context.Context, e Entry) error {
	dry := 0
	if e.DryRun {
		dry = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_entries (run_id, stage, target, key, record_id, action, detail, dry_run, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Stage, e.Target, e.Key, e.RecordID, string(e.Action), e.Detail, dry,
		e.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return errors.WrapResource("insert", "audit entry", e.Key, err)
	}
	return nil
}

// Entries returns the entries of one run in the order they were recorded.
func (s *SQLiteRecorder) Entries(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, stage, target, key, record_id, action, detail, dry_run, at
		 FROM audit_entries WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, errors.WrapResource("select", "audit entries", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e      Entry
			action string
			dry    int
			at     string
		)
		if err := rows.Scan(&e.RunID, &e.Stage, &e.Target, &e.Key, &e.RecordID, &action, &e.Detail, &dry, &at); err != nil {
			return nil, errors.WrapResource("scan", "audit entry", runID, err)
		}
		e.Action = Action(action)
		e.DryRun = dry == 1
		if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
			e.At = t
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapResource("scan", "audit entries", runID, err)
	}
	return out, nil
}

// Runs returns the recorded run ids, oldest first.
func (s *SQLiteRecorder) Runs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id FROM audit_entries GROUP BY run_id ORDER BY MIN(seq)`)
	if err != nil {
		return nil, errors.WrapResource("select", "audit runs", "", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.WrapResource("scan", "audit runs", "", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapResource("scan", "audit runs", "", err)
	}
	return out, nil
}

// Close closes the database.
func (s *SQLiteRecorder) Close() error {
	return s.db.Close()
}
