// Package queue implements the queue manager (C6): a priority-then-age
// ordered, size-bounded, persistent task queue with failed/expired
// archives.
package queue

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/oss-supervisor/workflow-supervisor/internal/core"
)

// DefaultMaxSize bounds the live queue (spec.md §3, §8: "size bounded
// (default 50)").
const DefaultMaxSize = 50

const fileVersion = "1.0"

// Event is the compact mutation notification published to listeners
// (spec.md §4.6).
type Event struct {
	Type       string
	Task       *core.Task
	QueueCount int
	Message    string
}

// Listener receives queue events. A listener that panics never affects
// the caller: Manager recovers around each invocation (spec.md §4.6:
// "listener exceptions must not affect callers").
type Listener func(Event)

// Manager owns the live queue and its failed/expired archives.
type Manager struct {
	mu sync.Mutex

	livePath     string
	failedPath   string
	expiredPath  string
	maxSize      int
	tasks        []core.Task
	listeners    []Listener
	logger       *slog.Logger
	now          func() time.Time
}

// Option configures a Manager at construction.
type Option func(*Manager)

// WithMaxSize overrides DefaultMaxSize.
func WithMaxSize(n int) Option {
	return func(m *Manager) { m.maxSize = n }
}

// WithClock overrides the time source (for deterministic tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// New constructs a Manager over the three given file paths, loading the
// live queue (spec.md §4.6: malformed JSON is treated as an absent file,
// never a crash).
func New(livePath, failedPath, expiredPath string, opts ...Option) (*Manager, error) {
	m := &Manager{
		livePath:    livePath,
		failedPath:  failedPath,
		expiredPath: expiredPath,
		maxSize:     DefaultMaxSize,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	tasks, err := loadTasks(m.livePath)
	if err != nil {
		return nil, err
	}
	m.tasks = tasks
	sortTasks(m.tasks)
	return m, nil
}

// Subscribe registers a listener for future mutation events.
func (m *Manager) Subscribe(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Manager) publish(evt Event) {
	for _, l := range m.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Warn("queue: listener panicked, ignoring", "recovered", r)
				}
			}()
			l(evt)
		}()
	}
}

func sortTasks(tasks []core.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return core.LessTask(tasks[i], tasks[j])
	})
}

// evictExcess drops lowest-priority, oldest-first tasks down to maxSize,
// returning the evicted tasks (spec.md §4.6, §8: "dropping lowest-
// priority / oldest excess tasks"). m.tasks is left sorted.
func (m *Manager) evictExcess() []core.Task {
	if len(m.tasks) <= m.maxSize {
		return nil
	}

	candidates := make([]core.Task, len(m.tasks))
	copy(candidates, m.tasks)
	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := candidates[i].Priority.Rank(), candidates[j].Priority.Rank()
		if ri != rj {
			return ri > rj // lowest priority (highest rank) evicted first
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt) // oldest evicted first
	})

	n := len(m.tasks) - m.maxSize
	toEvict := make(map[string]bool, n)
	for _, t := range candidates[:n] {
		toEvict[t.ID] = true
	}

	var kept, evicted []core.Task
	for _, t := range m.tasks {
		if toEvict[t.ID] {
			evicted = append(evicted, t)
		} else {
			kept = append(kept, t)
		}
	}
	m.tasks = kept
	return evicted
}

// Add assigns an id, stamps created_at, inserts the task, re-sorts,
// enforces the size cap (evicting lowest-priority/oldest excess to the
// expired archive), persists atomically, and emits task_added (spec.md
// §4.6).
func (m *Manager) Add(input core.TaskInput) (core.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	task := core.Task{
		ID:             generateID(now),
		CreatedAt:      now,
		Priority:       input.Priority,
		Source:         input.Source,
		AnomalyType:    input.AnomalyType,
		Prompt:         input.Prompt,
		SuggestedAgent: input.SuggestedAgent,
		Context:        input.Context,
		Status:         core.TaskStatusPending,
		Attempts:       0,
	}

	m.tasks = append(m.tasks, task)
	sortTasks(m.tasks)

	evicted := m.evictExcess()

	if err := m.persistLive(); err != nil {
		return core.Task{}, err
	}
	if len(evicted) > 0 {
		if err := m.appendArchive(m.expiredPath, evicted, core.ArchiveExpired, now); err != nil {
			return core.Task{}, err
		}
	}

	m.publish(Event{Type: "task_added", Task: &task, QueueCount: len(m.tasks), Message: "task added"})
	return task, nil
}

// NextPending returns the head of the pending queue (priority
// critical→low, older first within priority), or false if none is
// pending.
func (m *Manager) NextPending() (core.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.Status == core.TaskStatusPending {
			return t, true
		}
	}
	return core.Task{}, false
}

// Update applies patch to the task with id, persisting the result.
// Missing id fails with a NotFound DomainError. Transitioning into
// completed stamps completed_at exactly once.
func (m *Manager) Update(id string, patch core.TaskPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexOf(id)
	if idx < 0 {
		return core.ErrNotFound("task", id)
	}

	task := &m.tasks[idx]
	if patch.Status != nil {
		if *patch.Status == core.TaskStatusCompleted && task.Status != core.TaskStatusCompleted {
			now := m.now()
			task.CompletedAt = &now
		}
		task.Status = *patch.Status
	}
	if patch.Error != nil {
		task.Error = *patch.Error
	}
	if patch.Attempt {
		task.Attempts++
	}

	sortTasks(m.tasks)
	return m.persistLive()
}

// Remove deletes the task with id from the live queue.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexOf(id)
	if idx < 0 {
		return core.ErrNotFound("task", id)
	}
	m.tasks = append(m.tasks[:idx], m.tasks[idx+1:]...)
	return m.persistLive()
}

// Clear empties the live queue.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = nil
	return m.persistLive()
}

// PendingCount returns the number of pending tasks.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if t.Status == core.TaskStatusPending {
			n++
		}
	}
	return n
}

// CountByPriority tallies live tasks by priority.
func (m *Manager) CountByPriority() map[core.Priority]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[core.Priority]int)
	for _, t := range m.tasks {
		counts[t.Priority]++
	}
	return counts
}

// MoveToFailed appends the task with id to the failed archive with
// archive_reason=failed and removes it from the live queue.
func (m *Manager) MoveToFailed(id string, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexOf(id)
	if idx < 0 {
		return core.ErrNotFound("task", id)
	}

	task := m.tasks[idx]
	task.Error = errMsg
	task.Status = core.TaskStatusFailed
	m.tasks = append(m.tasks[:idx], m.tasks[idx+1:]...)

	if err := m.persistLive(); err != nil {
		return err
	}
	return m.appendArchive(m.failedPath, []core.Task{task}, core.ArchiveFailed, m.now())
}

func (m *Manager) indexOf(id string) int {
	for i, t := range m.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (m *Manager) persistLive() error {
	file := core.QueueFile{
		Version:   fileVersion,
		UpdatedAt: m.now().UTC().Format(time.RFC3339),
		Tasks:     m.tasks,
	}
	return writeJSONAtomic(m.livePath, file)
}

func (m *Manager) appendArchive(path string, tasks []core.Task, reason core.ArchiveReason, at time.Time) error {
	existing, err := loadArchive(path)
	if err != nil {
		existing = nil
	}
	for _, t := range tasks {
		existing = append(existing, core.ArchivedTask{Task: t, ArchivedAt: at, Reason: reason})
	}
	file := core.ArchiveFile{
		Version:   fileVersion,
		UpdatedAt: at.UTC().Format(time.RFC3339),
		Tasks:     existing,
	}
	return writeJSONAtomic(path, file)
}

func loadTasks(path string) ([]core.Task, error) {
	var file core.QueueFile
	if err := readJSON(path, &file); err != nil {
		return nil, err
	}
	return file.Tasks, nil
}

func loadArchive(path string) ([]core.ArchivedTask, error) {
	var file core.ArchiveFile
	if err := readJSON(path, &file); err != nil {
		return nil, err
	}
	return file.Tasks, nil
}

func generateID(now time.Time) string {
	var suffix [2]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		suffix[0], suffix[1] = byte(now.Nanosecond()), byte(now.Nanosecond() >> 8)
	}
	return fmt.Sprintf("task-%s-%s", now.UTC().Format("20060102-150405"), hex.EncodeToString(suffix[:]))
}

func ensureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o750)
}
