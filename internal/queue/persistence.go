package queue

import (
	"encoding/json"

	"github.com/google/renameio/v2"
	"github.com/oss-supervisor/workflow-supervisor/internal/fsutil"
)

// readJSON loads and unmarshals path into v. A missing file or malformed
// JSON is treated as absent, leaving v at its zero value — the file is
// recreated whole on the next successful write (spec.md §4.6, §8:
// "a malformed queue file on disk is replaced on the next successful
// mutation; no data corruption propagates into in-memory state").
func readJSON(path string, v interface{}) error {
	data, err := fsutil.ReadFileScoped(path)
	if err != nil {
		// Missing or unreadable: treated as absent, v stays zero-valued.
		return nil
	}
	// Malformed JSON: also treated as absent, never a load failure.
	_ = json.Unmarshal(data, v)
	return nil
}

// writeJSONAtomic marshals v and writes it to path via a temp-file-then-
// rename, so readers never observe a partially written file.
func writeJSONAtomic(path string, v interface{}) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0o644)
}
