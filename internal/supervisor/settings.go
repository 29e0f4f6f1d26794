package supervisor

import (
	"path/filepath"
	"time"

	"github.com/oss-supervisor/workflow-supervisor/internal/state"
)

// Settings configures a Supervisor's file layout and timers (spec.md §4.9,
// §6.6 for default paths).
type Settings struct {
	ProjectDir string

	LogPath         string
	LogIndexPath    string
	SnapshotPath    string
	PIDPath         string
	QueueLivePath   string
	QueueFailedPath string
	QueueArchivePath string
	TDDSemaphorePath string

	TailPollInterval   time.Duration
	ComplianceInterval time.Duration

	// UseFSNotifyTailing selects the fsnotify-backed tailer
	// (worklog.StartTailingNotify) over the plain poll loop (spec.md §4.1:
	// "implementation may use filesystem notifications instead"). A slow
	// fallback poll still runs underneath at TailPollInterval either way.
	UseFSNotifyTailing bool

	LoopThreshold   int
	LLMConfidenceFloor float64
}

// DefaultSettings returns the spec-mandated defaults rooted at projectDir
// (spec.md §6.6: `.oss/` state directory layout).
func DefaultSettings(projectDir string) Settings {
	base := filepath.Join(projectDir, ".oss")
	return Settings{
		ProjectDir:         projectDir,
		LogPath:            filepath.Join(base, "workflow.log"),
		LogIndexPath:       filepath.Join(base, "workflow-log.index.db"),
		SnapshotPath:       state.WorkflowStatePath(projectDir),
		PIDPath:            filepath.Join(base, "watcher.pid"),
		QueueLivePath:      filepath.Join(base, "queue.json"),
		QueueFailedPath:    filepath.Join(base, "queue-failed.json"),
		QueueArchivePath:   filepath.Join(base, "queue-expired.json"),
		TDDSemaphorePath:   state.TDDSemaphorePath(projectDir),
		TailPollInterval:   50 * time.Millisecond,
		ComplianceInterval: 5 * time.Second,
		LoopThreshold:      5,
		LLMConfidenceFloor: 0.7,
	}
}
