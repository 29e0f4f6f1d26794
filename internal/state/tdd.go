package state

import (
	"os"
	"time"

	"github.com/oss-supervisor/workflow-supervisor/internal/core"
)

// TDDSemaphoreActive reports whether the semaphore at path is present and
// not stale (spec.md §3: stale after core.TDDSemaphoreStaleAfter). A
// missing or malformed file leaves sem at its zero value, whose zero
// CreatedAt reads as stale — so both cases report inactive without a
// separate existence check.
func TDDSemaphoreActive(path string, now time.Time) bool {
	var sem core.TDDSemaphore
	_ = readJSON(path, &sem)
	return !sem.IsStale(now)
}

// WriteTDDSemaphore creates or refreshes the semaphore file for command and
// feature.
func WriteTDDSemaphore(path, command, feature string, now time.Time) error {
	sem := core.TDDSemaphore{CreatedAt: now, Command: command, Feature: feature}
	return writeJSONAtomic(path, sem)
}

// RemoveTDDSemaphore deletes the semaphore file, if present.
func RemoveTDDSemaphore(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
