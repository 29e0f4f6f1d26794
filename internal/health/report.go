package health

import (
	"time"

	"github.com/oss-supervisor/workflow-supervisor/internal/core"
)

// Deps bundles everything the individual checks need, gathered once by the
// caller (C9) so each check stays a pure predicate over plain values.
type Deps struct {
	Entries           []core.LogEntry
	LastLogWriteAt    time.Time
	SessionActive     bool
	Now               time.Time
	ProjectDir        string
	FeatureDirs       []FeatureDirStatus
	NotifierBin       string
	LastNotifiedAt    *time.Time
	QueuePath         string
	ArchivedBacklog   int
	BacklogThreshold  int
	DetachedHead      bool
	SupervisorPID     int32
}

// RunAll runs every health check and aggregates the result (spec.md §4.8).
func RunAll(d Deps) core.HealthReport {
	checks := []core.Check{
		CheckLogging(d.Entries, d.LastLogWriteAt, d.SessionActive, d.Now),
		CheckDevDocs(d.ProjectDir, d.SessionActive, d.Now),
		CheckDelegation(d.Entries, d.SessionActive),
		CheckArchive(d.FeatureDirs),
		CheckNotifications(d.NotifierBin, d.LastNotifiedAt, d.SessionActive, d.Now),
		CheckQueue(d.QueuePath),
		CheckQualityGates(d.ArchivedBacklog, d.BacklogThreshold),
		CheckGitSafety(d.DetachedHead),
	}

	if d.SupervisorPID > 0 {
		snap := SnapshotProcess(d.SupervisorPID)
		if !snap.Running {
			checks = append(checks, check("supervisor_process", core.CheckWarn, "supervisor process not detected as running", nil))
		}
	}

	return core.HealthReport{
		GeneratedAt:   d.Now,
		Checks:        checks,
		OverallStatus: core.AggregateStatus(checks),
	}
}
