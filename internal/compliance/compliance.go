// Package compliance implements the compliance monitor (C7): a stateful,
// repeat-escalating checker over the six iron laws.
package compliance

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oss-supervisor/workflow-supervisor/internal/core"
)

// refetchDirective is embedded in the prompt of an iron_law_repeated task so
// the agent re-reads the canonical laws document before trying again
// (spec.md §4.7).
const refetchDirective = "Refetch the canonical iron laws document before proceeding; this law has been violated repeatedly."

var (
	preCheckHeader = regexp.MustCompile(`^IRON LAW PRE-CHECK\s*$`)
	preCheckLine   = regexp.MustCompile(`^\[(✓|✗)\]\s*LAW #(\d+):\s*(.*)$`)
	hintLine       = regexp.MustCompile(`^→\s*(.*)$`)
)

// lawByNumber maps the 1-based LAW # used in pre-check text to its LawID,
// following core.AllLaws' declared order.
func lawByNumber(n int) (core.LawID, bool) {
	if n < 1 || n > len(core.AllLaws) {
		return "", false
	}
	return core.AllLaws[n-1], true
}

// PreCheckResult is one parsed `[✓|✗] LAW #<n>: <text>` line, with its
// optional `→ <hint>` continuation.
type PreCheckResult struct {
	Law     core.LawID
	Passed  bool
	Message string
	Hint    string
}

// ParsePreCheck scans text for an `IRON LAW PRE-CHECK` block and returns its
// parsed law lines. Lines outside a recognized block, and unparsable LAW
// lines, are skipped silently (spec.md §4.7).
func ParsePreCheck(text string) []PreCheckResult {
	var results []PreCheckResult
	inBlock := false

	scanner := bufio.NewScanner(strings.NewReader(text))
	var pending *PreCheckResult
	flush := func() {
		if pending != nil {
			results = append(results, *pending)
			pending = nil
		}
	}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if preCheckHeader.MatchString(line) {
			inBlock = true
			continue
		}
		if !inBlock {
			continue
		}
		if m := preCheckLine.FindStringSubmatch(line); m != nil {
			flush()
			n, err := strconv.Atoi(m[2])
			if err != nil {
				continue
			}
			law, ok := lawByNumber(n)
			if !ok {
				continue
			}
			pending = &PreCheckResult{Law: law, Passed: m[1] == "✓", Message: m[3]}
			continue
		}
		if m := hintLine.FindStringSubmatch(line); m != nil && pending != nil {
			pending.Hint = m[1]
			continue
		}
		flush()
	}
	flush()
	return results
}

// Monitor owns per-law active-count/history state and produces escalating
// intervention tasks (spec.md §3, §4.7).
type Monitor struct {
	mu    sync.Mutex
	state *core.ComplianceState
	now   func() time.Time
}

// New constructs a Monitor with all six laws at a clean state.
func New() *Monitor {
	return &Monitor{state: core.NewComplianceState(), now: time.Now}
}

// WithClock overrides the time source (for deterministic tests).
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// recordViolation appends to the law's history and increments its active
// count, returning the count after increment.
func (m *Monitor) recordViolation(law core.LawID, message, hint string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stateFor(law)
	st.History = append(st.History, core.ViolationRecord{At: m.now(), Message: message, Hint: hint})
	st.Active++
	return st.Active
}

// recordPass resets the law's active count to 0 without touching history.
func (m *Monitor) recordPass(law core.LawID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateFor(law).Active = 0
}

func (m *Monitor) stateFor(law core.LawID) *core.LawState {
	st, ok := m.state.Laws[law]
	if !ok {
		st = &core.LawState{}
		m.state.Laws[law] = st
	}
	return st
}

// createInterventionTask returns nil on the first violation (active count
// 1), a low-priority iron_law_violation task on the second, and a
// high-priority iron_law_repeated task (embedding the refetch directive) on
// the third and every subsequent violation (spec.md §4.7).
func (m *Monitor) createInterventionTask(law core.LawID, message, hint string, activeCount int) *core.TaskInput {
	switch {
	case activeCount <= 1:
		return nil
	case activeCount == 2:
		return &core.TaskInput{
			Priority:    core.PriorityLow,
			Source:      "compliance",
			AnomalyType: core.IssueIronLawViolation,
			Prompt:      message,
			Context:     map[string]interface{}{"law": string(law), "message": message, "hint": hint},
		}
	default:
		prompt := message
		if prompt != "" {
			prompt += " "
		}
		prompt += refetchDirective
		return &core.TaskInput{
			Priority:    core.PriorityHigh,
			Source:      "compliance",
			AnomalyType: core.IssueIronLawRepeated,
			Prompt:      prompt,
			Context:     map[string]interface{}{"law": string(law), "message": message, "hint": hint},
		}
	}
}

// Reset clears all active counts (session boundary) but preserves history
// (spec.md §4.7). Idempotent: applying it twice yields identical state.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.state.Laws {
		st.Active = 0
	}
}

// State returns a snapshot of the current per-law state, for persistence.
func (m *Monitor) State() core.ComplianceState {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := core.ComplianceState{Laws: make(map[core.LawID]*core.LawState, len(m.state.Laws))}
	for law, st := range m.state.Laws {
		hist := make([]core.ViolationRecord, len(st.History))
		copy(hist, st.History)
		cp.Laws[law] = &core.LawState{Active: st.Active, History: hist}
	}
	return cp
}

// Load replaces the monitor's state wholesale, e.g. on restore from a
// persisted snapshot. A nil or empty snapshot leaves the monitor at its
// freshly-initialized defaults.
func (m *Monitor) Load(snapshot core.ComplianceState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if snapshot.Laws == nil {
		return
	}
	fresh := core.NewComplianceState()
	for law, st := range snapshot.Laws {
		if st == nil {
			continue
		}
		fresh.Laws[law] = &core.LawState{Active: st.Active, History: append([]core.ViolationRecord(nil), st.History...)}
	}
	m.state = fresh
}

// ScanText parses a raw log line (or block) for an `IRON LAW PRE-CHECK`
// section and records each result, returning the resulting tasks in law
// order (spec.md §4.7).
func (m *Monitor) ScanText(text string) []core.TaskInput {
	results := ParsePreCheck(text)
	var tasks []core.TaskInput
	for _, r := range results {
		if t := m.recordResult(r.Law, r.Passed, r.Message, r.Hint); t != nil {
			tasks = append(tasks, *t)
		}
	}
	return tasks
}

// ScanChecklist records a pass/violation for every law named in checklist,
// derived from a COMPLETE/AGENT_COMPLETE entry's attached IronLaws (spec.md
// §3, §4.7).
func (m *Monitor) ScanChecklist(checklist core.IronLaws, context string) []core.TaskInput {
	var tasks []core.TaskInput
	for _, law := range core.AllLaws {
		passed := checklist.Get(law)
		message := fmt.Sprintf("%s not observed in %s", law, context)
		if t := m.recordResult(law, passed, message, ""); t != nil {
			tasks = append(tasks, *t)
		}
	}
	return tasks
}

func (m *Monitor) recordResult(law core.LawID, passed bool, message, hint string) *core.TaskInput {
	if passed {
		m.recordPass(law)
		return nil
	}
	count := m.recordViolation(law, message, hint)
	return m.createInterventionTask(law, message, hint, count)
}
