package compliance

import (
	"strings"
	"testing"
	"time"

	"github.com/oss-supervisor/workflow-supervisor/internal/core"
	"github.com/stretchr/testify/require"
)

func TestParsePreCheck_ParsesHeaderAndLines(t *testing.T) {
	text := strings.Join([]string{
		"IRON LAW PRE-CHECK",
		"[✓] LAW #1: tests written first",
		"[✗] LAW #3: loop detected",
		"→ break the retry loop before continuing",
	}, "\n")

	results := ParsePreCheck(text)
	require.Len(t, results, 2)
	require.Equal(t, core.LawTDD, results[0].Law)
	require.True(t, results[0].Passed)
	require.Equal(t, core.LawNoLoops, results[1].Law)
	require.False(t, results[1].Passed)
	require.Equal(t, "break the retry loop before continuing", results[1].Hint)
}

func TestParsePreCheck_NoHeaderYieldsNoResults(t *testing.T) {
	results := ParsePreCheck("[✓] LAW #1: tests written first")
	require.Empty(t, results)
}

func TestParsePreCheck_UnknownLawNumberSkipped(t *testing.T) {
	text := "IRON LAW PRE-CHECK\n[✗] LAW #99: bogus\n"
	require.Empty(t, ParsePreCheck(text))
}

func TestMonitor_EscalationThresholds(t *testing.T) {
	m := New()

	task1 := m.recordResult(core.LawNoLoops, false, "loop detected", "")
	require.Nil(t, task1)

	task2 := m.recordResult(core.LawNoLoops, false, "loop detected", "")
	require.NotNil(t, task2)
	require.Equal(t, core.PriorityLow, task2.Priority)
	require.Equal(t, core.IssueIronLawViolation, task2.AnomalyType)

	task3 := m.recordResult(core.LawNoLoops, false, "loop detected", "")
	require.NotNil(t, task3)
	require.Equal(t, core.PriorityHigh, task3.Priority)
	require.Equal(t, core.IssueIronLawRepeated, task3.AnomalyType)
	require.Contains(t, task3.Prompt, refetchDirective)
}

func TestMonitor_PassResetsActiveCount(t *testing.T) {
	m := New()
	require.Nil(t, m.recordResult(core.LawTDD, false, "x", ""))
	require.NotNil(t, m.recordResult(core.LawTDD, false, "x", ""))

	require.Nil(t, m.recordResult(core.LawTDD, true, "", ""))

	task := m.recordResult(core.LawTDD, false, "x", "")
	require.Nil(t, task, "active count restarts from 1 after a pass")
}

func TestMonitor_ResetClearsActiveButKeepsHistory(t *testing.T) {
	m := New()
	m.recordResult(core.LawDelegation, false, "missed delegation", "")
	m.recordResult(core.LawDelegation, false, "missed delegation", "")

	before := m.State()
	require.Equal(t, 2, before.Laws[core.LawDelegation].Active)
	require.Len(t, before.Laws[core.LawDelegation].History, 2)

	m.Reset()
	m.Reset() // idempotent

	after := m.State()
	require.Equal(t, 0, after.Laws[core.LawDelegation].Active)
	require.Len(t, after.Laws[core.LawDelegation].History, 2)
}

func TestMonitor_ScanChecklistEscalatesPerLaw(t *testing.T) {
	m := New()
	checklist := core.IronLaws{TDD: true, BehaviorTests: false, NoLoops: true, FeatureBranch: true, Delegation: true, DocsSynced: true}

	tasks1 := m.ScanChecklist(checklist, "ship")
	require.Empty(t, tasks1)

	tasks2 := m.ScanChecklist(checklist, "ship")
	require.Len(t, tasks2, 1)
	require.Equal(t, core.IssueIronLawViolation, tasks2[0].AnomalyType)
}

func TestMonitor_ScanTextProducesTasksFromPreCheckBlock(t *testing.T) {
	m := New()
	block := "IRON LAW PRE-CHECK\n[✗] LAW #2: behavior test missing\n"
	require.Empty(t, m.ScanText(block))
	tasks := m.ScanText(block)
	require.Len(t, tasks, 1)
	require.Equal(t, core.PriorityLow, tasks[0].Priority)
}

func TestMonitor_LoadRestoresSnapshot(t *testing.T) {
	m := New()
	m.recordResult(core.LawTDD, false, "x", "")
	snap := m.State()

	m2 := New()
	m2.Load(snap)
	require.Equal(t, 1, m2.State().Laws[core.LawTDD].Active)
}

func TestMonitor_ClockIsConsultedForHistoryTimestamps(t *testing.T) {
	fixed := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	m := New().WithClock(func() time.Time { return fixed })
	m.recordResult(core.LawTDD, false, "x", "")
	require.Equal(t, fixed, m.State().Laws[core.LawTDD].History[0].At)
}
