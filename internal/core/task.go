package core

import "time"

// TaskStatus is the closed set of queue task lifecycle states (spec.md §3).
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusExecuting TaskStatus = "executing"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// TaskInput is the caller-supplied subset of fields needed to enqueue a task;
// the queue manager stamps id, timestamps, and lifecycle fields on Add.
type TaskInput struct {
	Priority        Priority               `json:"priority"`
	Source          string                 `json:"source"`
	AnomalyType     IssueKind              `json:"anomaly_type"`
	Prompt          string                 `json:"prompt"`
	SuggestedAgent  string                 `json:"suggested_agent,omitempty"`
	Context         map[string]interface{} `json:"context,omitempty"`
}

// Task is a persisted, prioritized remediation task (spec.md §3).
type Task struct {
	ID             string                 `json:"id"`
	CreatedAt      time.Time              `json:"created_at"`
	Priority       Priority               `json:"priority"`
	Source         string                 `json:"source"`
	AnomalyType    IssueKind              `json:"anomaly_type"`
	Prompt         string                 `json:"prompt"`
	SuggestedAgent string                 `json:"suggested_agent,omitempty"`
	Context        map[string]interface{} `json:"context,omitempty"`
	Status         TaskStatus             `json:"status"`
	Attempts       int                    `json:"attempts"`
	Error          string                 `json:"error,omitempty"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
}

// TaskPatch is a partial update applied by the queue manager's Update operation.
type TaskPatch struct {
	Status  *TaskStatus
	Error   *string
	Attempt bool // increments Attempts by one when true
}

// ArchiveReason is the closed set of reasons a task was moved to an archive
// (spec.md §6.2).
type ArchiveReason string

const (
	ArchiveFailed  ArchiveReason = "failed"
	ArchiveExpired ArchiveReason = "expired"
	ArchiveDropped ArchiveReason = "dropped"
)

// ArchivedTask is a Task plus archival metadata (spec.md §6.2).
type ArchivedTask struct {
	Task
	ArchivedAt time.Time     `json:"archived_at"`
	Reason     ArchiveReason `json:"archive_reason"`
}

// QueueFile is the versioned, top-level persisted shape shared by the live
// queue and both archive files (spec.md §6.2).
type QueueFile struct {
	Version   string `json:"version"`
	UpdatedAt string `json:"updated_at"`
	Tasks     []Task `json:"tasks"`
}

// ArchiveFile is QueueFile's archived-task variant.
type ArchiveFile struct {
	Version   string         `json:"version"`
	UpdatedAt string         `json:"updated_at"`
	Tasks     []ArchivedTask `json:"tasks"`
}

// LessTask reports whether a sorts before b under the priority-then-age
// ordering invariant (spec.md §3, §8): critical<high<medium<low, then older first.
func LessTask(a, b Task) bool {
	ra, rb := a.Priority.Rank(), b.Priority.Rank()
	if ra != rb {
		return ra < rb
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
