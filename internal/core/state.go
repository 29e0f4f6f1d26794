package core

import "time"

// UpdateState is the self-update cache (spec.md §3, §4.11).
type UpdateState struct {
	PluginVersion    string            `json:"plugin_version"`
	LastCheckedAt    time.Time         `json:"last_checked_at"`
	ManifestVersion  string            `json:"manifest_version"`
	PromptHashes     map[string]string `json:"prompt_hashes,omitempty"`
	PromptSignatures map[string]string `json:"prompt_signatures,omitempty"`
}

// DefaultUpdateState returns the zero-value defaults readers must fall back
// to when the on-disk file is missing or malformed (spec.md §3).
func DefaultUpdateState() *UpdateState {
	return &UpdateState{
		PromptHashes:     make(map[string]string),
		PromptSignatures: make(map[string]string),
	}
}

// TDDSemaphore is the presence-only file suppressing test-failure enqueues
// during a controlled red-phase (spec.md §3).
type TDDSemaphore struct {
	CreatedAt time.Time `json:"created_at"`
	Command   string    `json:"command"`
	Feature   string    `json:"feature"`
}

// StaleAfter is the age at which a TDD semaphore is considered stale and
// removable (spec.md §3: "stale ... if older than 1 hour").
const TDDSemaphoreStaleAfter = time.Hour

// IsStale reports whether the semaphore is older than TDDSemaphoreStaleAfter
// relative to now.
func (s TDDSemaphore) IsStale(now time.Time) bool {
	return now.Sub(s.CreatedAt) > TDDSemaphoreStaleAfter
}

// RoutingProviderConfig is one scope (user or project) of model-routing
// configuration (spec.md §3, §4.10).
type RoutingProviderConfig struct {
	DefaultTarget   string            `json:"default_target"`
	FallbackEnabled bool              `json:"fallback_enabled"`
	AgentModels     map[string]string `json:"agent_models,omitempty"`
	CommandModels   map[string]string `json:"command_models,omitempty"`
	SkillModels     map[string]string `json:"skill_models,omitempty"`
	HookModels      map[string]string `json:"hook_models,omitempty"`
	APIKeys         map[string]string `json:"api_keys,omitempty"`
}

// MergeRoutingConfig merges user-scope and project-scope configs with
// project winning over user, per-map-key (spec.md §3: "project-winning-
// over-user").
func MergeRoutingConfig(user, project RoutingProviderConfig) RoutingProviderConfig {
	merged := RoutingProviderConfig{
		DefaultTarget:   user.DefaultTarget,
		FallbackEnabled: user.FallbackEnabled,
		AgentModels:     mergeStringMaps(user.AgentModels, project.AgentModels),
		CommandModels:   mergeStringMaps(user.CommandModels, project.CommandModels),
		SkillModels:     mergeStringMaps(user.SkillModels, project.SkillModels),
		HookModels:      mergeStringMaps(user.HookModels, project.HookModels),
		APIKeys:         mergeStringMaps(user.APIKeys, project.APIKeys),
	}
	if project.DefaultTarget != "" {
		merged.DefaultTarget = project.DefaultTarget
	}
	if project.FallbackEnabled {
		merged.FallbackEnabled = project.FallbackEnabled
	}
	return merged
}

func mergeStringMaps(base, override map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// CheckStatus is the closed set of health-check outcomes (spec.md §4.8).
type CheckStatus string

const (
	CheckPass CheckStatus = "pass"
	CheckWarn CheckStatus = "warn"
	CheckFail CheckStatus = "fail"
)

// Check is the result of one independent health-check function.
type Check struct {
	Name    string                 `json:"name"`
	Status  CheckStatus            `json:"status"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthReport aggregates every check's result (spec.md §4.8).
type HealthReport struct {
	GeneratedAt   time.Time `json:"generated_at"`
	Checks        []Check   `json:"checks"`
	OverallStatus CheckStatus `json:"overall_status"`
}

// AggregateStatus derives overall_status: critical (mapped to CheckFail) if
// any check fails, warning (CheckWarn) if any warns, else healthy
// (CheckPass) (spec.md §4.8).
func AggregateStatus(checks []Check) CheckStatus {
	status := CheckPass
	for _, c := range checks {
		switch c.Status {
		case CheckFail:
			return CheckFail
		case CheckWarn:
			status = CheckWarn
		}
	}
	return status
}
