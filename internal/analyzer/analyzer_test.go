package analyzer

import (
	"testing"
	"time"

	"github.com/oss-supervisor/workflow-supervisor/internal/core"
	"github.com/stretchr/testify/require"
)

func ts(offsetSeconds int) time.Time {
	base := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)
	return base.Add(time.Duration(offsetSeconds) * time.Second)
}

func TestChainProgress_TracksActiveAndComplete(t *testing.T) {
	entries := []core.LogEntry{
		{Timestamp: ts(0), Command: "ideate", Event: core.EventStart},
		{Timestamp: ts(1), Command: "ideate", Event: core.EventComplete},
		{Timestamp: ts(2), Command: "plan", Event: core.EventStart},
	}
	progress := ChainProgress(entries)
	require.Equal(t, core.ChainComplete, progress["ideate"])
	require.Equal(t, core.ChainActive, progress["plan"])
	require.Equal(t, core.ChainPending, progress["red"])
}

func TestDetectExplicitFailure(t *testing.T) {
	entries := []core.LogEntry{
		{Timestamp: ts(0), Command: "green", Event: core.EventStart},
		{Timestamp: ts(1), Command: "green", Event: core.EventFailed, Data: map[string]interface{}{"error": "boom"}},
	}
	issues := detectExplicitFailure(entries)
	require.Len(t, issues, 1)
	require.Equal(t, core.IssueExplicitFailure, issues[0].Kind)
	require.InDelta(t, 0.95, issues[0].Confidence, 0.001)
}

func TestDetectLoop_RepeatedToolWithinWindow(t *testing.T) {
	entries := []core.LogEntry{
		{Timestamp: ts(0), Command: "red", Event: core.EventMilestone, Data: map[string]interface{}{"tool": "Grep"}},
		{Timestamp: ts(1), Command: "red", Event: core.EventMilestone, Data: map[string]interface{}{"tool": "Grep"}},
		{Timestamp: ts(2), Command: "red", Event: core.EventMilestone, Data: map[string]interface{}{"tool": "Grep"}},
	}
	issues := detectLoop(entries)
	require.NotEmpty(t, issues)
	last := issues[len(issues)-1]
	require.Equal(t, core.IssueLoopDetected, last.Kind)
	require.Equal(t, "Grep", last.Context["tool_name"])
}

func TestDetectPhaseStuck_FlagsStaleOutstandingPhase(t *testing.T) {
	entries := []core.LogEntry{
		{Timestamp: ts(0), Command: "green", Phase: "implementation", Event: core.EventPhaseStart},
	}
	now := ts(0).Add(300 * time.Second)
	issues := detectPhaseStuck(entries, now)
	require.Len(t, issues, 1)
	require.Equal(t, core.IssuePhaseStuck, issues[0].Kind)
}

func TestDetectPhaseStuck_ResolvedPhaseIsNotFlagged(t *testing.T) {
	entries := []core.LogEntry{
		{Timestamp: ts(0), Command: "green", Phase: "implementation", Event: core.EventPhaseStart},
		{Timestamp: ts(5), Command: "green", Phase: "implementation", Event: core.EventMilestone},
	}
	now := ts(0).Add(300 * time.Second)
	issues := detectPhaseStuck(entries, now)
	require.Empty(t, issues)
}

func TestDetectSilence_FlagsIdleAfterStart(t *testing.T) {
	entries := []core.LogEntry{
		{Timestamp: ts(0), Command: "plan", Event: core.EventStart},
	}
	now := ts(0).Add(120 * time.Second)
	issues := detectSilence(entries, now)
	require.Len(t, issues, 1)
	require.Equal(t, core.IssueSilence, issues[0].Kind)
}

func TestDetectTDDViolation_GreenWithoutPrecedingRedComplete(t *testing.T) {
	entries := []core.LogEntry{
		{Timestamp: ts(0), Command: "green", Event: core.EventStart, Data: map[string]interface{}{"feature": "auth"}},
	}
	issues := detectTDDViolation(entries)
	require.Len(t, issues, 1)
	require.Equal(t, core.IssueTDDViolation, issues[0].Kind)
}

func TestDetectTDDViolation_NoViolationWhenRedCompletedFirst(t *testing.T) {
	entries := []core.LogEntry{
		{Timestamp: ts(0), Command: "red", Event: core.EventComplete, Data: map[string]interface{}{"feature": "auth"}},
		{Timestamp: ts(1), Command: "green", Event: core.EventStart, Data: map[string]interface{}{"feature": "auth"}},
	}
	issues := detectTDDViolation(entries)
	require.Empty(t, issues)
}

func TestDetectOutOfOrder_FlagsBackwardTransition(t *testing.T) {
	entries := []core.LogEntry{
		{Timestamp: ts(0), Command: "green", Event: core.EventStart},
		{Timestamp: ts(1), Command: "red", Event: core.EventStart},
	}
	issues := detectOutOfOrder(entries)
	require.Len(t, issues, 1)
	require.Equal(t, "red", issues[0].Context["command"])
}

func TestDetectMissingMilestones_FlagsIncompleteSet(t *testing.T) {
	entries := []core.LogEntry{
		{Timestamp: ts(0), Command: "ideate", Event: core.EventMilestone, Data: map[string]interface{}{"name": "problem_definition"}},
		{Timestamp: ts(1), Command: "ideate", Event: core.EventComplete},
	}
	issues := detectMissingMilestones(entries)
	require.Len(t, issues, 1)
	missing, _ := issues[0].Context["missing"].([]string)
	require.Contains(t, missing, "solution_design")
	require.Contains(t, missing, "approach_selected")
}

func TestDetectAbruptStop_FlagsUnresolvedStart(t *testing.T) {
	entries := []core.LogEntry{
		{Timestamp: ts(0), Command: "refactor", Event: core.EventStart},
	}
	now := ts(0).Add(400 * time.Second)
	issues := detectAbruptStop(entries, now)
	require.Len(t, issues, 1)
}

func TestDetectAbandonedAgent_FlagsUncompletedAgent(t *testing.T) {
	entries := []core.LogEntry{
		{Timestamp: ts(0), Command: "plan", Event: core.EventAgentSpawn, Agent: &core.AgentRef{Type: "researcher", ID: "a1"}},
	}
	now := ts(0).Add(150 * time.Second)
	issues := detectAbandonedAgent(entries, now)
	require.Len(t, issues, 1)
	require.Equal(t, "a1", issues[0].Context["agent_id"])
}

func TestDetectAbandonedAgent_CompletedAgentNotFlagged(t *testing.T) {
	entries := []core.LogEntry{
		{Timestamp: ts(0), Command: "plan", Event: core.EventAgentSpawn, Agent: &core.AgentRef{Type: "researcher", ID: "a1"}},
		{Timestamp: ts(1), Command: "plan", Event: core.EventAgentComplete, Agent: &core.AgentRef{Type: "researcher", ID: "a1"}},
	}
	now := ts(0).Add(150 * time.Second)
	issues := detectAbandonedAgent(entries, now)
	require.Empty(t, issues)
}

func TestDetectDecliningVelocity_FlagsSlowdown(t *testing.T) {
	var entries []core.LogEntry
	// Prior window: 10 milestones 1s apart (fast).
	for i := 0; i < DecliningVelocityWindow; i++ {
		entries = append(entries, core.LogEntry{Timestamp: ts(i), Command: "green", Event: core.EventMilestone})
	}
	// Recent window: 10 milestones 100s apart (slow).
	for i := 0; i < DecliningVelocityWindow; i++ {
		entries = append(entries, core.LogEntry{Timestamp: ts(DecliningVelocityWindow + i*100), Command: "green", Event: core.EventMilestone})
	}
	issues := detectDecliningVelocity(entries)
	require.Len(t, issues, 1)
	require.Equal(t, core.IssueDecliningVelocity, issues[0].Kind)
}

func TestHealthScore_ClampedAndMonotonic(t *testing.T) {
	none := HealthScore(nil)
	require.Equal(t, 100.0, none)

	one := HealthScore([]core.Issue{{Kind: core.IssueExplicitFailure, Confidence: 0.95}})
	require.Less(t, one, none)

	many := HealthScore([]core.Issue{
		{Kind: core.IssueExplicitFailure, Confidence: 0.95},
		{Kind: core.IssueLoopDetected, Confidence: 0.95},
		{Kind: core.IssueAbruptStop, Confidence: 0.95},
	})
	require.Less(t, many, one)
	require.GreaterOrEqual(t, many, 0.0)
}

func TestAnalyze_ComposesAllDetectors(t *testing.T) {
	entries := []core.LogEntry{
		{Timestamp: ts(0), Command: "ideate", Event: core.EventStart},
		{Timestamp: ts(1), Command: "ideate", Event: core.EventComplete},
	}
	result := Analyze(entries, ts(2))
	require.Equal(t, core.ChainComplete, result.ChainProgress["ideate"])
	require.LessOrEqual(t, result.HealthScore, 100.0)
}
