// Package health implements the health checks (C8): a set of independent
// predicate functions composed into one aggregate report.
package health

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/oss-supervisor/workflow-supervisor/internal/core"
)

// delegationHints maps a file extension to the agent expected to have
// handled it (spec.md §6.4).
var delegationHints = map[string]string{
	".ts":  "typescript-pro",
	".tsx": "typescript-pro",
	".py":  "python-pro",
	".go":  "golang-pro",
	".java": "java-pro",
	".swift": "ios-developer",
	".dart": "flutter-expert",
}

// loggingStaleAfter is the max session-log age before the logging check
// warns (spec.md §4.8: "< 5 min").
const loggingStaleAfter = 5 * time.Minute

// docsStaleAfter is the max PROGRESS.md age before the dev_docs check warns
// during an active session (spec.md §4.8: "< 60 min").
const docsStaleAfter = time.Hour

// notificationStaleAfter is the max age since the last notification before
// the notifications check warns during an active session (spec.md §4.8).
const notificationStaleAfter = 30 * time.Minute

func check(name string, status core.CheckStatus, message string, details map[string]interface{}) core.Check {
	return core.Check{Name: name, Status: status, Message: message, Details: details}
}

// CheckLogging verifies the session log exists, is fresh under an active
// session, and contains at least one structured entry.
func CheckLogging(entries []core.LogEntry, lastWriteAt time.Time, sessionActive bool, now time.Time) core.Check {
	if len(entries) == 0 {
		return check("logging", core.CheckFail, "no structured log entries found", nil)
	}
	if sessionActive && now.Sub(lastWriteAt) > loggingStaleAfter {
		return check("logging", core.CheckWarn, "session log has not been written to recently", nil)
	}
	return check("logging", core.CheckPass, "session log is present and current", nil)
}

// CheckDevDocs verifies PLAN.md and PROGRESS.md exist, and that
// PROGRESS.md was touched recently during an active session.
func CheckDevDocs(dir string, sessionActive bool, now time.Time) core.Check {
	missing := []string{}
	for _, name := range []string{"PLAN.md", "PROGRESS.md"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return check("dev_docs", core.CheckFail, "missing required docs: "+strings.Join(missing, ", "), nil)
	}

	if sessionActive {
		info, err := os.Stat(filepath.Join(dir, "PROGRESS.md"))
		if err == nil && now.Sub(info.ModTime()) > docsStaleAfter {
			return check("dev_docs", core.CheckWarn, "PROGRESS.md has not been updated recently", nil)
		}
	}
	return check("dev_docs", core.CheckPass, "required docs present and current", nil)
}

// ExpectedAgentFor returns the agent a specialized-tool-use extension
// expects to see delegated (spec.md §6.4), or "" if the extension has no
// entry in the table.
func ExpectedAgentFor(ext string) (string, bool) {
	agent, ok := delegationHints[strings.ToLower(ext)]
	return agent, ok
}

// CheckDelegation verifies that when specialized tool use touches a file
// extension with a known delegation hint, an AGENT_SPAWN/AGENT_COMPLETE
// entry for the expected agent appears in the session (spec.md §4.8, §6.4).
func CheckDelegation(entries []core.LogEntry, sessionActive bool) core.Check {
	if !sessionActive {
		return check("delegation", core.CheckPass, "no active session to evaluate", nil)
	}

	touchedExts := map[string]bool{}
	spawnedAgents := map[string]bool{}
	for _, e := range entries {
		if path := e.DataString("file"); path != "" {
			if _, ok := ExpectedAgentFor(filepath.Ext(path)); ok {
				touchedExts[filepath.Ext(path)] = true
			}
		}
		if e.Agent != nil {
			spawnedAgents[e.Agent.Type] = true
		}
	}

	var missing []string
	for ext := range touchedExts {
		agent, _ := ExpectedAgentFor(ext)
		if !spawnedAgents[agent] {
			missing = append(missing, ext+"→"+agent)
		}
	}
	if len(missing) > 0 {
		return check("delegation", core.CheckWarn, "specialized files edited without expected delegation: "+strings.Join(missing, ", "), nil)
	}
	return check("delegation", core.CheckPass, "delegation matches specialized tool use", nil)
}

// FeatureDirStatus describes one candidate feature directory for the
// archive check.
type FeatureDirStatus struct {
	Path           string
	ReportsComplete bool
	UnderActivePath bool
}

// CheckArchive flags any feature directory whose PROGRESS.md reports
// completion but still sits under the active path.
func CheckArchive(dirs []FeatureDirStatus) core.Check {
	var toMove []string
	for _, d := range dirs {
		if d.ReportsComplete && d.UnderActivePath {
			toMove = append(toMove, d.Path)
		}
	}
	if len(toMove) > 0 {
		return check("archive", core.CheckWarn, "completed feature dirs still active: "+strings.Join(toMove, ", "), nil)
	}
	return check("archive", core.CheckPass, "no completed feature dirs need archiving", nil)
}

// NotifierLookPath is overridable in tests; defaults to exec.LookPath.
var NotifierLookPath = exec.LookPath

// CheckNotifications verifies the notifier binary is discoverable and a
// notification was sent recently during an active session.
func CheckNotifications(notifierBin string, lastNotifiedAt *time.Time, sessionActive bool, now time.Time) core.Check {
	if _, err := NotifierLookPath(notifierBin); err != nil {
		return check("notifications", core.CheckFail, "notifier binary not found: "+notifierBin, nil)
	}
	if sessionActive {
		if lastNotifiedAt == nil || now.Sub(*lastNotifiedAt) > notificationStaleAfter {
			return check("notifications", core.CheckWarn, "no recent notification during active session", nil)
		}
	}
	return check("notifications", core.CheckPass, "notifications healthy", nil)
}

// CheckQueue is a simple predicate: pass unless the live queue file exists
// and cannot be read (spec.md §4.8: "implementation-level diagnostics").
func CheckQueue(queuePath string) core.Check {
	if _, err := os.Stat(queuePath); err != nil {
		return check("queue", core.CheckPass, "queue file absent, nothing pending", nil)
	}
	if _, err := os.ReadFile(queuePath); err != nil {
		return check("queue", core.CheckFail, "queue file unreadable: "+err.Error(), nil)
	}
	return check("queue", core.CheckPass, "queue file readable", nil)
}

// CheckQualityGates passes unless the archived-task backlog exceeds
// threshold (spec.md §4.8).
func CheckQualityGates(archivedBacklog, threshold int) core.Check {
	if archivedBacklog > threshold {
		return check("quality_gates", core.CheckWarn, "archived task backlog above threshold", map[string]interface{}{"backlog": archivedBacklog, "threshold": threshold})
	}
	return check("quality_gates", core.CheckPass, "archived task backlog within threshold", nil)
}

// CheckGitSafety passes unless the working tree is in a detached-HEAD state
// unexpectedly (spec.md §4.8).
func CheckGitSafety(detachedHead bool) core.Check {
	if detachedHead {
		return check("git_safety", core.CheckWarn, "working tree is in a detached HEAD state", nil)
	}
	return check("git_safety", core.CheckPass, "working tree is on a branch", nil)
}
