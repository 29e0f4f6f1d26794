package core

import "time"

// ChainStatus is the per-command chain-progress state (spec.md §3).
type ChainStatus string

const (
	ChainPending  ChainStatus = "pending"
	ChainActive   ChainStatus = "active"
	ChainComplete ChainStatus = "complete"
)

// CanonicalOrder is the authoritative command/phase sequence against which
// out-of-order transitions are judged (spec.md §4.4 point 2).
var CanonicalOrder = []string{
	"ideate", "plan", "acceptance", "red", "green", "refactor", "integration", "ship",
}

// CanonicalIndex returns the position of cmd in CanonicalOrder, or -1 if cmd
// is not part of the canonical chain (ad-hoc command names are allowed and
// simply excluded from ordering checks).
func CanonicalIndex(cmd string) int {
	for i, c := range CanonicalOrder {
		if c == cmd {
			return i
		}
	}
	return -1
}

// WorkflowSnapshot is the cached, rebuildable-from-the-log workflow state
// (spec.md §3).
type WorkflowSnapshot struct {
	CurrentCommand    string                 `json:"current_command"`
	CurrentPhase      string                 `json:"current_phase,omitempty"`
	ChainProgress     map[string]ChainStatus `json:"chain_progress"`
	LastMilestones    []MilestoneRef         `json:"last_milestones,omitempty"`
	LastActivityAt    time.Time              `json:"last_activity_at"`
	NextCommand       string                 `json:"next_command,omitempty"`
	StatusCurrent     string                 `json:"status_current_command,omitempty"`
	StatusNext        string                 `json:"status_next_command,omitempty"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// MilestoneRef is a timestamped milestone reference kept for the status-line feed.
type MilestoneRef struct {
	Command     string    `json:"command"`
	Description string    `json:"description"`
	At          time.Time `json:"at"`
}

// NewWorkflowSnapshot returns an empty, zero-value snapshot ready for rebuilding.
func NewWorkflowSnapshot() *WorkflowSnapshot {
	return &WorkflowSnapshot{
		ChainProgress: make(map[string]ChainStatus),
	}
}
