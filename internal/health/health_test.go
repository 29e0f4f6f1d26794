package health

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oss-supervisor/workflow-supervisor/internal/core"
	"github.com/stretchr/testify/require"
)

func TestCheckLogging_EmptyEntriesFails(t *testing.T) {
	c := CheckLogging(nil, time.Time{}, true, time.Now())
	require.Equal(t, core.CheckFail, c.Status)
}

func TestCheckLogging_StaleDuringActiveSessionWarns(t *testing.T) {
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	entries := []core.LogEntry{{Timestamp: now.Add(-10 * time.Minute)}}
	c := CheckLogging(entries, now.Add(-10*time.Minute), true, now)
	require.Equal(t, core.CheckWarn, c.Status)
}

func TestCheckLogging_FreshPasses(t *testing.T) {
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	entries := []core.LogEntry{{Timestamp: now}}
	c := CheckLogging(entries, now, true, now)
	require.Equal(t, core.CheckPass, c.Status)
}

func TestCheckDevDocs_MissingFilesFails(t *testing.T) {
	dir := t.TempDir()
	c := CheckDevDocs(dir, false, time.Now())
	require.Equal(t, core.CheckFail, c.Status)
}

func TestCheckDevDocs_StaleProgressWarnsDuringActiveSession(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "PLAN.md"), []byte("x"), 0o644))
	progress := filepath.Join(dir, "PROGRESS.md")
	require.NoError(t, os.WriteFile(progress, []byte("x"), 0o644))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(progress, old, old))

	c := CheckDevDocs(dir, true, time.Now())
	require.Equal(t, core.CheckWarn, c.Status)
}

func TestCheckDevDocs_FreshPasses(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "PLAN.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "PROGRESS.md"), []byte("x"), 0o644))
	c := CheckDevDocs(dir, true, time.Now())
	require.Equal(t, core.CheckPass, c.Status)
}

func TestExpectedAgentFor_KnownAndUnknownExtensions(t *testing.T) {
	agent, ok := ExpectedAgentFor(".go")
	require.True(t, ok)
	require.Equal(t, "golang-pro", agent)

	_, ok = ExpectedAgentFor(".rb")
	require.False(t, ok)
}

func TestCheckDelegation_MissingDelegationWarns(t *testing.T) {
	entries := []core.LogEntry{
		{Event: core.EventStart, Data: map[string]interface{}{"file": "main.go"}},
	}
	c := CheckDelegation(entries, true)
	require.Equal(t, core.CheckWarn, c.Status)
}

func TestCheckDelegation_PresentDelegationPasses(t *testing.T) {
	entries := []core.LogEntry{
		{Event: core.EventStart, Data: map[string]interface{}{"file": "main.go"}},
		{Event: core.EventAgentSpawn, Agent: &core.AgentRef{Type: "golang-pro", ID: "a1"}},
	}
	c := CheckDelegation(entries, true)
	require.Equal(t, core.CheckPass, c.Status)
}

func TestCheckArchive_CompletedUnderActivePathWarns(t *testing.T) {
	c := CheckArchive([]FeatureDirStatus{{Path: "features/done", ReportsComplete: true, UnderActivePath: true}})
	require.Equal(t, core.CheckWarn, c.Status)
}

func TestCheckNotifications_MissingBinaryFails(t *testing.T) {
	orig := NotifierLookPath
	defer func() { NotifierLookPath = orig }()
	NotifierLookPath = func(string) (string, error) { return "", errors.New("not found") }

	c := CheckNotifications("notify-send", nil, true, time.Now())
	require.Equal(t, core.CheckFail, c.Status)
}

func TestCheckNotifications_StaleWarnsDuringActiveSession(t *testing.T) {
	orig := NotifierLookPath
	defer func() { NotifierLookPath = orig }()
	NotifierLookPath = func(string) (string, error) { return "/usr/bin/notify-send", nil }

	old := time.Now().Add(-time.Hour)
	c := CheckNotifications("notify-send", &old, true, time.Now())
	require.Equal(t, core.CheckWarn, c.Status)
}

func TestCheckQueue_MissingFilePasses(t *testing.T) {
	c := CheckQueue(filepath.Join(t.TempDir(), "absent.json"))
	require.Equal(t, core.CheckPass, c.Status)
}

func TestCheckQualityGates_AboveThresholdWarns(t *testing.T) {
	c := CheckQualityGates(10, 5)
	require.Equal(t, core.CheckWarn, c.Status)
}

func TestCheckGitSafety_DetachedHeadWarns(t *testing.T) {
	c := CheckGitSafety(true)
	require.Equal(t, core.CheckWarn, c.Status)
}

func TestAggregateStatus_FailBeatsWarnBeatsPass(t *testing.T) {
	require.Equal(t, core.CheckFail, core.AggregateStatus([]core.Check{{Status: core.CheckPass}, {Status: core.CheckFail}, {Status: core.CheckWarn}}))
	require.Equal(t, core.CheckWarn, core.AggregateStatus([]core.Check{{Status: core.CheckPass}, {Status: core.CheckWarn}}))
	require.Equal(t, core.CheckPass, core.AggregateStatus([]core.Check{{Status: core.CheckPass}}))
}

func TestRunAll_ComposesEveryCheck(t *testing.T) {
	orig := NotifierLookPath
	defer func() { NotifierLookPath = orig }()
	NotifierLookPath = func(string) (string, error) { return "/usr/bin/notify-send", nil }

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "PLAN.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "PROGRESS.md"), []byte("x"), 0o644))

	now := time.Now()
	report := RunAll(Deps{
		Entries:        []core.LogEntry{{Timestamp: now}},
		LastLogWriteAt: now,
		SessionActive:  false,
		Now:            now,
		ProjectDir:     dir,
		QueuePath:      filepath.Join(dir, "queue.json"),
	})
	require.Len(t, report.Checks, 8)
	require.Equal(t, core.CheckPass, report.OverallStatus)
}
