// Package supervisor implements the orchestrator (C9): it wires the
// workflow log tailer, rule engine, LLM fallback, workflow analyzer,
// intervention generator, queue manager, and compliance monitor into a
// single lifecycle (spec.md §4.9).
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oss-supervisor/workflow-supervisor/internal/analyzer"
	"github.com/oss-supervisor/workflow-supervisor/internal/compliance"
	"github.com/oss-supervisor/workflow-supervisor/internal/core"
	"github.com/oss-supervisor/workflow-supervisor/internal/intervene"
	"github.com/oss-supervisor/workflow-supervisor/internal/llmfallback"
	"github.com/oss-supervisor/workflow-supervisor/internal/pidfile"
	"github.com/oss-supervisor/workflow-supervisor/internal/queue"
	"github.com/oss-supervisor/workflow-supervisor/internal/rules"
	"github.com/oss-supervisor/workflow-supervisor/internal/state"
	"github.com/oss-supervisor/workflow-supervisor/internal/worklog"
)

// NotifyFunc is the pluggable notification callback (spec.md §4.9 step 3).
type NotifyFunc func(core.Notification)

// Supervisor owns the running watcher process: one goroutine tailing the
// workflow log, one ticker-driven goroutine running compliance scans, and a
// mutex-guarded in-memory entry list and snapshot (spec.md §5, §7).
type Supervisor struct {
	settings Settings
	logger   *slog.Logger
	notify   NotifyFunc
	runID    string

	reader     *worklog.Reader
	index      *worklog.Index
	queue      *queue.Manager
	rules      *rules.Engine
	llm        *llmfallback.Classifier
	compliance *compliance.Monitor
	scheduler  *compliance.Scheduler

	mu       sync.Mutex
	entries  []core.LogEntry
	seen     map[string]bool
	snapshot *core.WorkflowSnapshot
	now      func() time.Time
}

// Option configures a Supervisor at construction.
type Option func(*Supervisor)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = logger }
}

// WithNotify sets the notification callback.
func WithNotify(fn NotifyFunc) Option {
	return func(s *Supervisor) { s.notify = fn }
}

// WithLLMClassifier attaches an optional LLM fallback classifier (C3). When
// nil, rule-engine misses simply produce no issue.
func WithLLMClassifier(c *llmfallback.Classifier) Option {
	return func(s *Supervisor) { s.llm = c }
}

// WithClock overrides the time source (for deterministic tests).
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

// New constructs a Supervisor over settings, loading the queue and any
// existing log entries. It does not acquire the PID file or start tailing;
// call Start for that.
func New(settings Settings, opts ...Option) (*Supervisor, error) {
	snap := state.LoadWorkflowSnapshot(settings.SnapshotPath)
	s := &Supervisor{
		settings:   settings,
		logger:     slog.Default(),
		notify:     func(core.Notification) {},
		runID:      uuid.NewString(),
		reader:     worklog.NewReader(settings.LogPath),
		rules:      rules.New(settings.LoopThreshold),
		compliance: compliance.New(),
		seen:       make(map[string]bool),
		snapshot:   &snap,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("run_id", s.runID)

	qm, err := queue.New(settings.QueueLivePath, settings.QueueFailedPath, settings.QueueArchivePath,
		queue.WithLogger(s.logger), queue.WithClock(s.now))
	if err != nil {
		return nil, fmt.Errorf("loading queue: %w", err)
	}
	s.queue = qm

	entries, err := s.reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("loading workflow log: %w", err)
	}
	s.entries = entries

	if settings.LogIndexPath != "" {
		idx, err := worklog.OpenIndex(settings.LogIndexPath)
		if err != nil {
			return nil, fmt.Errorf("opening workflow log index: %w", err)
		}
		if err := s.reader.UseIndex(idx); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("rebuilding workflow log index: %w", err)
		}
		s.index = idx
	}

	return s, nil
}

// Queue exposes the underlying queue manager (e.g. for a worker loop to
// pull tasks from, or the proxy/health checks to read its state).
func (s *Supervisor) Queue() *queue.Manager { return s.queue }

// RunID returns the correlation id generated for this supervisor instance,
// threaded through its log lines so a single run's activity can be grepped
// out of a shared log stream.
func (s *Supervisor) RunID() string { return s.runID }

// Start acquires the PID file (refusing if another instance already holds
// it), constructs the remaining components, and starts the log tailer and
// compliance scheduler (spec.md §4.9 steps 1-2, 4).
func (s *Supervisor) Start() error {
	if err := pidfile.Acquire(s.settings.PIDPath); err != nil {
		return err
	}

	s.reprocess()

	s.startTailing()

	s.scheduler = compliance.NewScheduler(compliance.ModeAlways, s.settings.ComplianceInterval, nil, s.logger)
	s.scheduler.Start(s.runComplianceScan)

	return nil
}

// startTailing begins tailing the workflow log with the backend settings
// selects: fsnotify-driven (falling back to polling if the watch can't be
// established, e.g. the log doesn't exist yet) or plain polling.
func (s *Supervisor) startTailing() {
	if !s.settings.UseFSNotifyTailing {
		s.reader.StartTailing(s.settings.TailPollInterval, s.onEntry)
		return
	}

	f, err := os.OpenFile(s.settings.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		s.logger.Warn("supervisor: could not prepare workflow log for fsnotify tailing, falling back to polling", "error", err)
		s.reader.StartTailing(s.settings.TailPollInterval, s.onEntry)
		return
	}
	_ = f.Close()

	if err := s.reader.StartTailingNotify(s.logger, s.settings.TailPollInterval, s.onEntry); err != nil {
		s.logger.Warn("supervisor: fsnotify tailing unavailable, falling back to polling", "error", err)
		s.reader.StartTailing(s.settings.TailPollInterval, s.onEntry)
	}
}

// Stop halts tailing, persists the snapshot one final time, and removes the
// PID file (spec.md §4.9 step 5). It must complete well under a second: no
// step here blocks on I/O beyond a single atomic file write.
func (s *Supervisor) Stop() error {
	s.reader.StopTailing()
	if s.scheduler != nil {
		s.scheduler.Stop()
	}

	if err := s.persistSnapshot(); err != nil {
		s.logger.Warn("supervisor: failed to persist final snapshot", "error", err)
	}

	if s.index != nil {
		if err := s.index.Close(); err != nil {
			s.logger.Warn("supervisor: failed to close workflow log index", "error", err)
		}
	}

	return pidfile.Release(s.settings.PIDPath)
}

// onEntry is the tailer callback: append, reprocess, persist (spec.md §4.9
// step 3).
func (s *Supervisor) onEntry(e core.LogEntry) {
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()

	s.reprocess()

	if text := e.DataString("output"); text != "" {
		s.scanText(text)
	}
	if e.IronLaws != nil && (e.Event == core.EventComplete || e.Event == core.EventAgentComplete) {
		s.enqueueComplianceTasks(s.compliance.ScanChecklist(*e.IronLaws, e.Command))
	}

	if err := s.persistSnapshot(); err != nil {
		s.logger.Warn("supervisor: failed to persist snapshot", "error", err)
	}
}

// reprocess re-runs the workflow analyzer over the full entry history,
// updates the chain-state snapshot, and enqueues interventions for issues
// not previously seen.
func (s *Supervisor) reprocess() {
	s.mu.Lock()
	entries := make([]core.LogEntry, len(s.entries))
	copy(entries, s.entries)
	s.mu.Unlock()

	result := analyzer.Analyze(entries, s.now())

	s.mu.Lock()
	s.snapshot.ChainProgress = result.ChainProgress
	if len(entries) > 0 {
		last := entries[len(entries)-1]
		s.snapshot.CurrentCommand = last.Command
		s.snapshot.CurrentPhase = last.Phase
		s.snapshot.LastActivityAt = last.Timestamp
	}
	s.snapshot.UpdatedAt = s.now()
	s.mu.Unlock()

	for _, iss := range result.Issues {
		key := issueKey(iss)
		s.mu.Lock()
		alreadySeen := s.seen[key]
		if !alreadySeen {
			s.seen[key] = true
		}
		s.mu.Unlock()
		if alreadySeen {
			continue
		}
		s.handleIssue(iss)
	}
}

func issueKey(iss core.Issue) string {
	return fmt.Sprintf("%s:%v", iss.Kind, iss.EntryIndexes)
}

// handleIssue generates an intervention for a newly seen issue, applying
// the TDD-semaphore suppression rule before enqueueing (spec.md §4.9 step
// 3).
func (s *Supervisor) handleIssue(iss core.Issue) {
	out := intervene.Generate(iss)
	s.notify(out.Notification)

	if out.Task == nil {
		return
	}

	if iss.Kind == core.IssueExplicitFailure && isTestFailureContext(iss) && s.tddSemaphoreActive() {
		s.logger.Info("TDD mode active", "command", iss.Context["command"])
		return
	}

	if _, err := s.queue.Add(*out.Task); err != nil {
		s.logger.Warn("supervisor: failed to enqueue task", "error", err)
	}
}

// isTestFailureContext reports whether an explicit_failure issue's context
// names a TDD red/green phase (our reading of spec.md §4.9's "test-failure
// context", which is otherwise undefined).
func isTestFailureContext(iss core.Issue) bool {
	phase, _ := iss.Context["phase"].(string)
	command, _ := iss.Context["command"].(string)
	if phase == "red" || phase == "green" || command == "red" || command == "green" {
		return true
	}
	errMsg, _ := iss.Context["error"].(string)
	return strings.Contains(strings.ToLower(errMsg), "test")
}

func (s *Supervisor) tddSemaphoreActive() bool {
	return state.TDDSemaphoreActive(s.settings.TDDSemaphorePath, s.now())
}

func (s *Supervisor) enqueueComplianceTasks(tasks []core.TaskInput) {
	for _, t := range tasks {
		if _, err := s.queue.Add(t); err != nil {
			s.logger.Warn("supervisor: failed to enqueue compliance task", "error", err)
		}
	}
}

func (s *Supervisor) scanText(text string) {
	s.enqueueComplianceTasks(s.compliance.ScanText(text))

	if m := s.rules.Scan(text); m != nil {
		iss := core.Issue{
			Kind:           m.Kind,
			Confidence:     0.9,
			Priority:       m.Priority,
			SuggestedAgent: m.SuggestedAgent,
			Context:        map[string]interface{}{"rule": m.RuleName},
		}
		s.handleIssue(iss)
		return
	}

	if s.llm == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), llmfallback.DefaultTimeout)
	defer cancel()
	iss, err := s.llm.Classify(ctx, text)
	if err != nil || iss == nil {
		return
	}
	s.handleIssue(*iss)
}

// runComplianceScan is invoked by the compliance scheduler ticker (spec.md
// §4.9 step 4). Pre-check parsing already happens inline in onEntry/
// scanText, so the periodic pass here exists to catch compliance drift
// between log entries (e.g. a long-silent law) — currently a no-op hook
// reserved for that extension point.
func (s *Supervisor) runComplianceScan() {}

// Snapshot returns a copy of the current workflow snapshot.
func (s *Supervisor) Snapshot() core.WorkflowSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.snapshot
	cp.ChainProgress = make(map[string]core.ChainStatus, len(s.snapshot.ChainProgress))
	for k, v := range s.snapshot.ChainProgress {
		cp.ChainProgress[k] = v
	}
	return cp
}

func (s *Supervisor) persistSnapshot() error {
	snap := s.Snapshot()
	return state.SaveWorkflowSnapshot(s.settings.SnapshotPath, snap)
}
