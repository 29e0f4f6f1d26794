package state

import "github.com/oss-supervisor/workflow-supervisor/internal/core"

// LoadUpdateState reads <user>/.oss/update-state.json, falling back to
// core.DefaultUpdateState on any missing or malformed file.
func LoadUpdateState(path string) *core.UpdateState {
	s := core.DefaultUpdateState()
	_ = readJSON(path, s)
	if s.PromptHashes == nil {
		s.PromptHashes = make(map[string]string)
	}
	if s.PromptSignatures == nil {
		s.PromptSignatures = make(map[string]string)
	}
	return s
}

// SaveUpdateState writes s to path atomically.
func SaveUpdateState(path string, s *core.UpdateState) error {
	return writeJSONAtomic(path, s)
}
