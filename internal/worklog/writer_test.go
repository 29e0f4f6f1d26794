package worklog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oss-supervisor/workflow-supervisor/internal/core"
	"github.com/stretchr/testify/require"
)

func TestWriter_AppendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow.log")
	w := NewWriter(path)

	entry := core.LogEntry{
		Timestamp: time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC),
		Command:   "green",
		Phase:     "implementation",
		Event:     core.EventComplete,
		Data:      map[string]interface{}{"summary": "tests passing"},
	}
	require.NoError(t, w.Append(entry))

	r := NewReader(path)
	entries, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "green", entries[0].Command)
	require.Equal(t, core.EventComplete, entries[0].Event)
}

func TestWriter_AppendWritesSummaryAndComplianceLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow.log")
	w := NewWriter(path)

	laws := &core.IronLaws{TDD: true, BehaviorTests: true, NoLoops: true, FeatureBranch: true, Delegation: false, DocsSynced: false}
	entry := core.LogEntry{
		Command:  "ship",
		Event:    core.EventComplete,
		Data:     map[string]interface{}{"summary": "shipped"},
		IronLaws: laws,
	}
	require.NoError(t, w.Append(entry))

	raw, err := readFile(path)
	require.NoError(t, err)
	require.Contains(t, raw, "# SHIP:COMPLETE - shipped")
	require.Contains(t, raw, "# IRON LAW COMPLIANCE:")
	require.Contains(t, raw, "# Result: 4/6 laws observed")
}

func TestWriter_DescribeAgentEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow.log")
	w := NewWriter(path)

	entry := core.LogEntry{
		Command: "plan",
		Event:   core.EventAgentSpawn,
		Agent:   &core.AgentRef{Type: "researcher", ID: "a1"},
		Data:    map[string]interface{}{"task": "survey auth options"},
	}
	require.NoError(t, w.Append(entry))

	raw, err := readFile(path)
	require.NoError(t, err)
	require.Contains(t, raw, "researcher: survey auth options")
}

func readFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
