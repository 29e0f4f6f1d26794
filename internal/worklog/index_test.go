package worklog

import (
	"testing"
	"time"

	"github.com/oss-supervisor/workflow-supervisor/internal/core"
	"github.com/stretchr/testify/require"
)

func TestIndex_RebuildAndQueryLast(t *testing.T) {
	idx, err := OpenIndex(":memory:")
	require.NoError(t, err)
	defer idx.Close()

	entries := []core.LogEntry{
		{Timestamp: time.Now().UTC(), Command: "plan", Event: core.EventStart},
		{Timestamp: time.Now().UTC(), Command: "red", Event: core.EventStart},
		{Timestamp: time.Now().UTC(), Command: "red", Event: core.EventComplete},
	}
	require.NoError(t, idx.Rebuild(entries))

	out, err := idx.QueryLast(Filter{Command: "red"}, 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, core.EventComplete, out[0].Event)
	require.Equal(t, core.EventStart, out[1].Event)
}

func TestIndex_AppendAdvancesIndex(t *testing.T) {
	idx, err := OpenIndex(":memory:")
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Rebuild(nil))
	require.NoError(t, idx.Append(core.LogEntry{Command: "ship", Event: core.EventComplete}))

	out, err := idx.QueryLast(Filter{}, 1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "ship", out[0].Command)
}

func TestIndex_RebuildClearsStaleRows(t *testing.T) {
	idx, err := OpenIndex(":memory:")
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Rebuild([]core.LogEntry{{Command: "stale", Event: core.EventStart}}))
	require.NoError(t, idx.Rebuild([]core.LogEntry{{Command: "fresh", Event: core.EventStart}}))

	out, err := idx.QueryLast(Filter{}, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "fresh", out[0].Command)
}
