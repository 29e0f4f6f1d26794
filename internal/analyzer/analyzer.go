// Package analyzer implements the workflow analyzer (C4): a pure
// function over the full ordered log that reports chain progress, health
// score, and a set of independently-detected anomalies.
package analyzer

import (
	"fmt"
	"time"

	"github.com/oss-supervisor/workflow-supervisor/internal/core"
)

// Defaults for the independent detectors (spec.md §4.4).
const (
	LoopWindowEntries   = 20
	LoopRepeatThreshold = 3
	PhaseStuckAfter     = 240 * time.Second
	SilenceAfter        = 90 * time.Second
	AbruptStopAfter     = 300 * time.Second
	AbandonedAgentAfter = 120 * time.Second

	// DecliningVelocityWindow sizes the two milestone-rate comparison
	// windows. spec.md leaves the exact window open; 10 milestones gives
	// a comparison wide enough to avoid single-milestone noise while
	// staying responsive within a typical phase (see DESIGN.md).
	DecliningVelocityWindow = 10
)

// weights scale each issue kind's contribution to the health-score
// deduction (spec.md §4.4: "per-kind weights declared as a constant
// table; the test suite asserts monotonicity, not exact values").
var weights = map[core.IssueKind]float64{
	core.IssueLoopDetected:      20,
	core.IssueExplicitFailure:   25,
	core.IssuePhaseStuck:        12,
	core.IssueSilence:           8,
	core.IssueTDDViolation:      15,
	core.IssueOutOfOrder:        10,
	core.IssueMissingMilestones: 6,
	core.IssueAbruptStop:        18,
	core.IssueAbandonedAgent:    14,
	core.IssueDecliningVelocity: 7,
}

// requiredMilestones pins the minimum milestone-name sets that must
// appear (by Data["name"]) for a command before its COMPLETE (spec.md
// §4.4 missing_milestones).
var requiredMilestones = map[string][]string{
	"ideate": {"problem_definition", "solution_design", "approach_selected"},
	"plan":   {"context_gathering", "task_breakdown", "sequencing"},
	"ship":   {"deployment_gate"},
}

// shipMinAgentSpawns is "ship"'s additional four-agent-spawn requirement
// (spec.md §4.4).
const shipMinAgentSpawns = 4

// Result is the analyzer's full output.
type Result struct {
	Issues        []core.Issue
	ChainProgress map[string]core.ChainStatus
	HealthScore   float64
}

// Analyze runs every detector over entries and computes chain progress
// and health score. now anchors age-based detectors (silence, abrupt
// stop, phase stuck, abandoned agent); pass time.Now() in production and
// a fixed time in tests for determinism.
func Analyze(entries []core.LogEntry, now time.Time) Result {
	var issues []core.Issue

	issues = append(issues, detectLoop(entries)...)
	issues = append(issues, detectExplicitFailure(entries)...)
	issues = append(issues, detectPhaseStuck(entries, now)...)
	issues = append(issues, detectSilence(entries, now)...)
	issues = append(issues, detectTDDViolation(entries)...)
	issues = append(issues, detectOutOfOrder(entries)...)
	issues = append(issues, detectMissingMilestones(entries)...)
	issues = append(issues, detectAbruptStop(entries, now)...)
	issues = append(issues, detectAbandonedAgent(entries, now)...)
	issues = append(issues, detectDecliningVelocity(entries)...)

	return Result{
		Issues:        issues,
		ChainProgress: ChainProgress(entries),
		HealthScore:   HealthScore(issues),
	}
}

// ChainProgress computes the per-command pending/active/complete mapping
// (spec.md §4.4).
func ChainProgress(entries []core.LogEntry) map[string]core.ChainStatus {
	progress := make(map[string]core.ChainStatus, len(core.CanonicalOrder))
	for _, cmd := range core.CanonicalOrder {
		progress[cmd] = core.ChainPending
	}

	for _, e := range entries {
		if core.CanonicalIndex(e.Command) < 0 {
			continue
		}
		switch e.Event {
		case core.EventStart:
			if progress[e.Command] != core.ChainComplete {
				progress[e.Command] = core.ChainActive
			}
		case core.EventComplete:
			progress[e.Command] = core.ChainComplete
		case core.EventFailed:
			// Terminal failure leaves the command active; the failure itself
			// is surfaced as an explicit_failure issue, not a chain state.
			if progress[e.Command] != core.ChainComplete {
				progress[e.Command] = core.ChainActive
			}
		}
	}
	return progress
}

// HealthScore computes 100 minus the weighted sum of issue confidences,
// clamped to [0,100] (spec.md §4.4).
func HealthScore(issues []core.Issue) float64 {
	score := 100.0
	for _, issue := range issues {
		w, ok := weights[issue.Kind]
		if !ok {
			w = 5
		}
		score -= w * issue.Confidence
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

func issue(kind core.IssueKind, confidence float64, priority core.Priority, ctx map[string]interface{}, idx ...int) core.Issue {
	return core.Issue{
		Kind:         kind,
		Confidence:   confidence,
		Priority:     priority,
		Context:      ctx,
		EntryIndexes: idx,
	}
}

// detectLoop flags a tool name repeated ≥ LoopRepeatThreshold times within
// a rolling window of LoopWindowEntries entries.
func detectLoop(entries []core.LogEntry) []core.Issue {
	var issues []core.Issue
	for end := 0; end < len(entries); end++ {
		start := end - LoopWindowEntries + 1
		if start < 0 {
			start = 0
		}
		counts := make(map[string][]int)
		for i := start; i <= end; i++ {
			tool := entries[i].DataString("tool")
			if tool == "" {
				continue
			}
			counts[tool] = append(counts[tool], i)
		}
		for tool, idxs := range counts {
			if len(idxs) >= LoopRepeatThreshold && idxs[len(idxs)-1] == end {
				confidence := 0.6 + 0.07*float64(len(idxs))
				if confidence > 0.95 {
					confidence = 0.95
				}
				issues = append(issues, issue(
					core.IssueLoopDetected, confidence, core.PriorityHigh,
					map[string]interface{}{"tool_name": tool, "repeat_count": len(idxs)},
					idxs...,
				))
			}
		}
	}
	return issues
}

// detectExplicitFailure flags every FAILED event.
func detectExplicitFailure(entries []core.LogEntry) []core.Issue {
	var issues []core.Issue
	for i, e := range entries {
		if e.Event == core.EventFailed {
			issues = append(issues, issue(
				core.IssueExplicitFailure, 0.95, core.PriorityHigh,
				map[string]interface{}{"command": e.Command, "phase": e.Phase, "error": e.DataString("error")},
				i,
			))
		}
	}
	return issues
}

// detectPhaseStuck flags an outstanding PHASE_START with no MILESTONE or
// AGENT_COMPLETE for more than PhaseStuckAfter.
func detectPhaseStuck(entries []core.LogEntry, now time.Time) []core.Issue {
	var issues []core.Issue
	for i, e := range entries {
		if e.Event != core.EventPhaseStart {
			continue
		}
		if phaseResolved(entries, i) {
			continue
		}
		idle := idleSince(entries, i, now)
		if idle <= PhaseStuckAfter {
			continue
		}
		confidence := confidenceByAge(idle, PhaseStuckAfter, 0.75, 0.90)
		issues = append(issues, issue(
			core.IssuePhaseStuck, confidence, core.PriorityMedium,
			map[string]interface{}{"command": e.Command, "phase": e.Phase, "idle_seconds": idle.Seconds()},
			i,
		))
	}
	return issues
}

// phaseResolved reports whether entry i's phase saw a later MILESTONE,
// AGENT_COMPLETE, PHASE_COMPLETE, COMPLETE, or FAILED in the same command/phase.
func phaseResolved(entries []core.LogEntry, i int) bool {
	e := entries[i]
	for j := i + 1; j < len(entries); j++ {
		other := entries[j]
		if other.Command != e.Command || other.Phase != e.Phase {
			continue
		}
		switch other.Event {
		case core.EventMilestone, core.EventAgentComplete, core.EventPhaseComplete, core.EventComplete, core.EventFailed:
			return true
		}
	}
	return false
}

// idleSince returns the gap between entry i and the next entry (or now,
// if i is the last entry).
func idleSince(entries []core.LogEntry, i int, now time.Time) time.Duration {
	if i+1 < len(entries) {
		return entries[i+1].Timestamp.Sub(entries[i].Timestamp)
	}
	return now.Sub(entries[i].Timestamp)
}

func confidenceByAge(age, threshold time.Duration, min, max float64) float64 {
	ratio := float64(age) / float64(threshold)
	c := min + (max-min)*(ratio-1)
	if c < min {
		c = min
	}
	if c > max {
		c = max
	}
	return c
}

// detectSilence flags no entry of any kind for more than SilenceAfter
// after a command START.
func detectSilence(entries []core.LogEntry, now time.Time) []core.Issue {
	var issues []core.Issue
	for i, e := range entries {
		if e.Event != core.EventStart {
			continue
		}
		idle := idleSince(entries, i, now)
		if idle <= SilenceAfter {
			continue
		}
		confidence := confidenceByAge(idle, SilenceAfter, 0.70, 0.85)
		issues = append(issues, issue(
			core.IssueSilence, confidence, core.PriorityMedium,
			map[string]interface{}{"command": e.Command, "idle_seconds": idle.Seconds()},
			i,
		))
	}
	return issues
}

// detectTDDViolation flags a green phase START with no preceding red
// COMPLETE for the same feature. Feature identity is read from
// Data["feature"]; entries without it are grouped under the empty feature.
func detectTDDViolation(entries []core.LogEntry) []core.Issue {
	var issues []core.Issue
	redCompleted := make(map[string]bool)

	for i, e := range entries {
		feature := e.DataString("feature")
		if e.Command == "red" && e.Event == core.EventComplete {
			redCompleted[feature] = true
		}
		if e.Command == "green" && e.Event == core.EventStart && !redCompleted[feature] {
			issues = append(issues, issue(
				core.IssueTDDViolation, 0.90, core.PriorityHigh,
				map[string]interface{}{"feature": feature},
				i,
			))
		}
	}
	return issues
}

// detectOutOfOrder flags a phase START that violates canonical order:
// its canonical index is lower than the highest canonical index already
// started.
func detectOutOfOrder(entries []core.LogEntry) []core.Issue {
	var issues []core.Issue
	highest := -1
	for i, e := range entries {
		if e.Event != core.EventStart {
			continue
		}
		idx := core.CanonicalIndex(e.Command)
		if idx < 0 {
			continue
		}
		if idx < highest {
			issues = append(issues, issue(
				core.IssueOutOfOrder, 0.80, core.PriorityMedium,
				map[string]interface{}{"command": e.Command, "expected_after": core.CanonicalOrder[highest]},
				i,
			))
			continue
		}
		highest = idx
	}
	return issues
}

// detectMissingMilestones flags, for each command with a declared minimum
// milestone set, any COMPLETE whose preceding MILESTONE entries (by
// Data["name"]) don't cover that set. ship additionally requires
// shipMinAgentSpawns AGENT_SPAWN entries.
func detectMissingMilestones(entries []core.LogEntry) []core.Issue {
	var issues []core.Issue

	seen := make(map[string]map[string]bool)
	agentSpawns := make(map[string]int)
	firstComplete := make(map[string]int)

	for i, e := range entries {
		if _, ok := requiredMilestones[e.Command]; !ok {
			continue
		}
		switch e.Event {
		case core.EventMilestone:
			name := e.DataString("name")
			if name == "" {
				continue
			}
			if seen[e.Command] == nil {
				seen[e.Command] = make(map[string]bool)
			}
			seen[e.Command][name] = true
		case core.EventAgentSpawn:
			agentSpawns[e.Command]++
		case core.EventComplete:
			if _, already := firstComplete[e.Command]; !already {
				firstComplete[e.Command] = i
			}
		}
	}

	for cmd, required := range requiredMilestones {
		idx, completed := firstComplete[cmd]
		if !completed {
			continue
		}
		var missing []string
		for _, name := range required {
			if !seen[cmd][name] {
				missing = append(missing, name)
			}
		}
		if cmd == "ship" && agentSpawns[cmd] < shipMinAgentSpawns {
			missing = append(missing, fmt.Sprintf("agent_spawns<%d", shipMinAgentSpawns))
		}
		if len(missing) == 0 {
			continue
		}
		confidence := 0.85 - 0.1*float64(len(missing))
		if confidence < 0.4 {
			confidence = 0.4
		}
		issues = append(issues, issue(
			core.IssueMissingMilestones, confidence, core.PriorityLow,
			map[string]interface{}{"command": cmd, "missing": missing},
			idx,
		))
	}
	return issues
}

// detectAbruptStop flags a command START with no COMPLETE/FAILED and
// last-activity age over AbruptStopAfter.
func detectAbruptStop(entries []core.LogEntry, now time.Time) []core.Issue {
	var issues []core.Issue
	for i, e := range entries {
		if e.Event != core.EventStart {
			continue
		}
		if commandResolved(entries, i) {
			continue
		}
		idle := idleSince(entries, i, now)
		if idle <= AbruptStopAfter {
			continue
		}
		issues = append(issues, issue(
			core.IssueAbruptStop, 0.85, core.PriorityHigh,
			map[string]interface{}{"command": e.Command, "idle_seconds": idle.Seconds()},
			i,
		))
	}
	return issues
}

func commandResolved(entries []core.LogEntry, i int) bool {
	cmd := entries[i].Command
	for j := i + 1; j < len(entries); j++ {
		if entries[j].Command == cmd && (entries[j].Event == core.EventComplete || entries[j].Event == core.EventFailed) {
			return true
		}
	}
	return false
}

// detectAbandonedAgent flags an AGENT_SPAWN with no matching
// AGENT_COMPLETE and no entries carrying that agent id for more than
// AbandonedAgentAfter.
func detectAbandonedAgent(entries []core.LogEntry, now time.Time) []core.Issue {
	var issues []core.Issue
	for i, e := range entries {
		if e.Event != core.EventAgentSpawn || e.Agent == nil {
			continue
		}
		agentID := e.Agent.ID
		lastSeen := entries[i].Timestamp
		completed := false
		for j := i + 1; j < len(entries); j++ {
			other := entries[j]
			if other.Agent == nil || other.Agent.ID != agentID {
				continue
			}
			if other.Event == core.EventAgentComplete {
				completed = true
				break
			}
			lastSeen = other.Timestamp
		}
		if completed {
			continue
		}
		idle := now.Sub(lastSeen)
		if idle <= AbandonedAgentAfter {
			continue
		}
		issues = append(issues, issue(
			core.IssueAbandonedAgent, 0.80, core.PriorityMedium,
			map[string]interface{}{"agent_id": agentID, "agent_type": e.Agent.Type, "idle_seconds": idle.Seconds()},
			i,
		))
	}
	return issues
}

// detectDecliningVelocity flags a milestone rate in the trailing window
// under half the rate in the prior window of equal size.
func detectDecliningVelocity(entries []core.LogEntry) []core.Issue {
	var milestoneIdx []int
	for i, e := range entries {
		if e.Event == core.EventMilestone {
			milestoneIdx = append(milestoneIdx, i)
		}
	}
	w := DecliningVelocityWindow
	if len(milestoneIdx) < 2*w {
		return nil
	}

	n := len(milestoneIdx)
	prior := milestoneIdx[n-2*w : n-w]
	recent := milestoneIdx[n-w:]

	priorSpan := entries[prior[len(prior)-1]].Timestamp.Sub(entries[prior[0]].Timestamp)
	recentSpan := entries[recent[len(recent)-1]].Timestamp.Sub(entries[recent[0]].Timestamp)
	if priorSpan <= 0 || recentSpan <= 0 {
		return nil
	}

	priorRate := float64(w) / priorSpan.Seconds()
	recentRate := float64(w) / recentSpan.Seconds()

	if recentRate >= 0.5*priorRate {
		return nil
	}

	return []core.Issue{issue(
		core.IssueDecliningVelocity, 0.65, core.PriorityLow,
		map[string]interface{}{"prior_rate": priorRate, "recent_rate": recentRate},
		recent...,
	)}
}
