// Package state implements the persistent-state component (C11): the
// supervisor's config, settings, update-state, workflow-state, and TDD
// semaphore files. All files are JSON, versioned where noted, and written
// atomically; every reader recovers from a missing or malformed file by
// returning defaults rather than failing (spec.md §4.11).
package state

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/oss-supervisor/workflow-supervisor/internal/fsutil"
)

// readJSON loads and unmarshals path into v. A missing file or malformed
// JSON is treated as absent, leaving v at its zero value — callers layer
// their own defaults over that zero value.
func readJSON(path string, v interface{}) error {
	data, err := fsutil.ReadFileScoped(path)
	if err != nil {
		return nil
	}
	_ = json.Unmarshal(data, v)
	return nil
}

// writeJSONAtomic marshals v and writes it to path via a temp-file-then-
// rename, so readers never observe a partially written file.
func writeJSONAtomic(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0o644)
}
