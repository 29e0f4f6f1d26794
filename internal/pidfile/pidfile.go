// Package pidfile implements the process-uniqueness primitive used by the
// supervisor orchestrator (C9): a bare PID file, staleness detected by a
// signal-0 liveness probe, grounded on the teacher's
// adapters/state.JSONStateManager AcquireLock/ReleaseLock pair.
package pidfile

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/oss-supervisor/workflow-supervisor/internal/core"
	"github.com/oss-supervisor/workflow-supervisor/internal/fsutil"
)

// Acquire writes path with the current process's PID, refusing if an
// existing file names a still-live process. A file naming a dead process
// is treated as stale and silently removed first (spec.md §4.9).
func Acquire(path string) error {
	if data, err := fsutil.ReadFileScoped(path); err == nil {
		pid, perr := strconv.Atoi(strings.TrimSpace(string(data)))
		if perr == nil && processExists(pid) {
			return core.ErrConflict(fmt.Sprintf("another instance is running (pid %d)", pid))
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing stale pid file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("reading pid file: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return core.ErrConflict("pid file created by another process")
		}
		return fmt.Errorf("creating pid file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("writing pid file: %w", err)
	}
	return nil
}

// Release removes path, verifying it still names the current process.
// A missing file is not an error (already released).
func Release(path string) error {
	data, err := fsutil.ReadFileScoped(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading pid file: %w", err)
	}

	pid, perr := strconv.Atoi(strings.TrimSpace(string(data)))
	if perr == nil && pid != os.Getpid() {
		return core.ErrConflict("pid file owned by a different process")
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing pid file: %w", err)
	}
	return nil
}

// processExists reports whether pid names a live process, via a signal-0
// liveness probe on Unix.
func processExists(pid int) bool {
	if runtime.GOOS == "windows" && pid == os.Getpid() {
		return true
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
