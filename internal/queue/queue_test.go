package queue

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oss-supervisor/workflow-supervisor/internal/core"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	dir := t.TempDir()
	m, err := New(
		filepath.Join(dir, "queue.json"),
		filepath.Join(dir, "queue-failed.json"),
		filepath.Join(dir, "queue-expired.json"),
		opts...,
	)
	require.NoError(t, err)
	return m
}

func TestManager_AddAssignsIDAndPersists(t *testing.T) {
	m := newTestManager(t)
	task, err := m.Add(core.TaskInput{Priority: core.PriorityHigh, AnomalyType: core.IssueExplicitFailure, Prompt: "fix it"})
	require.NoError(t, err)
	require.NotEmpty(t, task.ID)
	require.Equal(t, core.TaskStatusPending, task.Status)
	require.Equal(t, 0, task.Attempts)
}

func TestManager_QueueOrdering_PriorityThenAge(t *testing.T) {
	base := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)
	tick := 0
	m := newTestManager(t, WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}))

	a, _ := m.Add(core.TaskInput{Priority: core.PriorityMedium})
	b, _ := m.Add(core.TaskInput{Priority: core.PriorityCritical})
	c, _ := m.Add(core.TaskInput{Priority: core.PriorityLow})
	d, _ := m.Add(core.TaskInput{Priority: core.PriorityCritical})

	var order []string
	for {
		next, ok := m.NextPending()
		if !ok {
			break
		}
		order = append(order, next.ID)
		completed := core.TaskStatusCompleted
		require.NoError(t, m.Update(next.ID, core.TaskPatch{Status: &completed}))
	}
	require.Equal(t, []string{b.ID, d.ID, a.ID, c.ID}, order)
}

func TestManager_SizeCapEvictsOldestLowPriorityToExpired(t *testing.T) {
	base := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)
	tick := 0
	m := newTestManager(t, WithMaxSize(3), WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}))

	var first core.Task
	for i := 0; i < 4; i++ {
		task, err := m.Add(core.TaskInput{Priority: core.PriorityLow})
		require.NoError(t, err)
		if i == 0 {
			first = task
		}
	}

	require.Equal(t, 3, m.PendingCount())
	_, stillPresent := m.tasksIndexForTest(first.ID)
	require.False(t, stillPresent)
}

func TestManager_UpdateMissingIDReturnsNotFound(t *testing.T) {
	m := newTestManager(t)
	completed := core.TaskStatusCompleted
	err := m.Update("does-not-exist", core.TaskPatch{Status: &completed})
	require.Error(t, err)
	require.True(t, core.IsCategory(err, core.ErrCatNotFound))
}

func TestManager_UpdateToCompletedStampsCompletedAtOnce(t *testing.T) {
	m := newTestManager(t)
	task, _ := m.Add(core.TaskInput{Priority: core.PriorityLow})

	completed := core.TaskStatusCompleted
	require.NoError(t, m.Update(task.ID, core.TaskPatch{Status: &completed}))
	require.NoError(t, m.Update(task.ID, core.TaskPatch{Status: &completed}))
}

func TestManager_MoveToFailedRemovesFromLiveQueue(t *testing.T) {
	m := newTestManager(t)
	task, _ := m.Add(core.TaskInput{Priority: core.PriorityHigh})
	require.NoError(t, m.MoveToFailed(task.ID, "boom"))
	require.Equal(t, 0, m.PendingCount())
}

func TestManager_ClearEmptiesQueueIdempotently(t *testing.T) {
	m := newTestManager(t)
	_, _ = m.Add(core.TaskInput{Priority: core.PriorityHigh})
	require.NoError(t, m.Clear())
	require.NoError(t, m.Clear())
	require.Equal(t, 0, m.PendingCount())
}

func TestManager_LoadRecoversFromMalformedFile(t *testing.T) {
	dir := t.TempDir()
	livePath := filepath.Join(dir, "queue.json")
	require.NoError(t, os.WriteFile(livePath, []byte("not json"), 0o644))

	m, err := New(livePath, filepath.Join(dir, "f.json"), filepath.Join(dir, "e.json"))
	require.NoError(t, err)
	require.Equal(t, 0, m.PendingCount())

	_, err = m.Add(core.TaskInput{Priority: core.PriorityHigh})
	require.NoError(t, err)
	require.Equal(t, 1, m.PendingCount())
}

func TestManager_ListenerPanicDoesNotAffectCaller(t *testing.T) {
	m := newTestManager(t)
	m.Subscribe(func(Event) { panic("boom") })
	_, err := m.Add(core.TaskInput{Priority: core.PriorityHigh})
	require.NoError(t, err)
}

func TestManager_CountByPriority(t *testing.T) {
	m := newTestManager(t)
	_, _ = m.Add(core.TaskInput{Priority: core.PriorityHigh})
	_, _ = m.Add(core.TaskInput{Priority: core.PriorityHigh})
	_, _ = m.Add(core.TaskInput{Priority: core.PriorityLow})

	counts := m.CountByPriority()
	require.Equal(t, 2, counts[core.PriorityHigh])
	require.Equal(t, 1, counts[core.PriorityLow])
}

// tasksIndexForTest exposes indexOf for white-box assertions in tests.
func (m *Manager) tasksIndexForTest(id string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.indexOf(id)
	return idx, idx >= 0
}
