package state

import "github.com/oss-supervisor/workflow-supervisor/internal/core"

// LoadWorkflowSnapshot reads <project>/.oss/workflow-state.json. A missing
// or malformed file yields a zero-value snapshot — the orchestrator treats
// that the same as "rebuild from the log" (spec.md §4.9: "if the snapshot
// file is missing at start, it is rebuilt from the log").
func LoadWorkflowSnapshot(path string) core.WorkflowSnapshot {
	var snap core.WorkflowSnapshot
	_ = readJSON(path, &snap)
	if snap.ChainProgress == nil {
		snap.ChainProgress = make(map[string]core.ChainStatus)
	}
	return snap
}

// SaveWorkflowSnapshot writes snap to path atomically. Called on every
// processed log entry (spec.md §4.9).
func SaveWorkflowSnapshot(path string, snap core.WorkflowSnapshot) error {
	return writeJSONAtomic(path, snap)
}
