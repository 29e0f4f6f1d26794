package worklog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/oss-supervisor/workflow-supervisor/internal/core"
	_ "modernc.org/sqlite"
)

// Index is an optional SQLite-backed secondary index over the log, so
// repeated filtered QueryLast calls over a large log don't re-scan and
// re-parse the whole file (SPEC_FULL.md §6.1). It is a cache, never the
// source of truth: if the index file is missing or corrupt it is dropped
// and rebuilt from ReadAll, matching the "recover locally from malformed
// state" policy applied everywhere else in this repo.
type Index struct {
	mu sync.Mutex
	db *sql.DB
}

const indexSchema = `
CREATE TABLE IF NOT EXISTS entries (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	ts        TEXT NOT NULL,
	cmd       TEXT NOT NULL,
	phase     TEXT NOT NULL DEFAULT '',
	event     TEXT NOT NULL,
	payload   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_cmd ON entries(cmd);
CREATE INDEX IF NOT EXISTS idx_entries_event ON entries(event);
`

// OpenIndex opens (creating if necessary) a SQLite index at path.
func OpenIndex(path string) (*Index, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}
	if _, err := db.Exec(indexSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating index schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Rebuild truncates the index and repopulates it from entries, in order.
func (idx *Index) Rebuild(entries []core.LogEntry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	tx, err := idx.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec("DELETE FROM entries"); err != nil {
		return err
	}
	for _, e := range entries {
		if err := insertEntry(tx, e); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Append adds one entry to the index, advancing it alongside the tailer.
func (idx *Index) Append(e core.LogEntry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return insertEntry(idx.db, e)
}

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func insertEntry(ex execer, e core.LogEntry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = ex.Exec(
		"INSERT INTO entries (ts, cmd, phase, event, payload) VALUES (?, ?, ?, ?, ?)",
		e.Timestamp.Format("2006-01-02T15:04:05.000000000Z07:00"), e.Command, e.Phase, string(e.Event), string(payload),
	)
	return err
}

// QueryLast scans the index newest-first for up to n entries matching filter.
func (idx *Index) QueryLast(filter Filter, n int) ([]core.LogEntry, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	query := "SELECT payload FROM entries WHERE 1=1"
	var args []interface{}
	if filter.Command != "" {
		query += " AND cmd = ?"
		args = append(args, filter.Command)
	}
	if filter.Event != "" {
		query += " AND event = ?"
		args = append(args, string(filter.Event))
	}
	if filter.Phase != "" {
		query += " AND phase = ?"
		args = append(args, filter.Phase)
	}
	query += " ORDER BY seq DESC"
	if n > 0 {
		query += " LIMIT ?"
		args = append(args, n)
	}

	rows, err := idx.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.LogEntry
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var e core.LogEntry
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			continue // skip corrupt rows; index is a cache, not source of truth
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the index's database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}
