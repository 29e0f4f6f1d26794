// Package rules implements the regex-driven rule engine (C2): a linear
// scan of free-form log text against a fixed, declared-order rule table,
// returning the first typed anomaly match.
package rules

import (
	"regexp"

	"github.com/oss-supervisor/workflow-supervisor/internal/core"
)

// Match is the result of a successful rule or loop-detection match.
type Match struct {
	RuleName       string
	Kind           core.IssueKind
	Priority       core.Priority
	SuggestedAgent string
	Groups         []string // regex submatches, in capture order
}

// Rule is one named entry in the engine's table.
type Rule struct {
	Name           string
	Pattern        *regexp.Regexp
	Kind           core.IssueKind
	Priority       core.Priority
	SuggestedAgent string
}

var toolCallPattern = regexp.MustCompile(`Tool:\s*(\w+)`)

// LoopThreshold is the default minimum same-tool occurrence count that
// triggers a loop match ahead of the declared rule table (spec.md §4.2).
const LoopThreshold = 5

// Table is the declared-order rule set. Names and priorities are pinned;
// internal ordering beyond loop-detection-first is not (spec.md §7).
var Table = []Rule{
	{
		Name:           "test_failure_fail",
		Pattern:        regexp.MustCompile(`(?i)FAIL\s+(\S+\.test\.[tj]sx?)`),
		Kind:           core.IssueKind("test_failure"),
		Priority:       core.PriorityHigh,
		SuggestedAgent: "debugger",
	},
	{
		Name:           "test_failure_vitest",
		Pattern:        regexp.MustCompile(`❯\s+(\S+\.test\.[tj]sx?)\s+\([^)]*\d+\s+failed`),
		Kind:           core.IssueKind("test_failure"),
		Priority:       core.PriorityHigh,
		SuggestedAgent: "debugger",
	},
	{
		Name:           "test_failure_generic",
		Pattern:        regexp.MustCompile(`(?i)Test failed:?\s*(.+)`),
		Kind:           core.IssueKind("test_failure"),
		Priority:       core.PriorityHigh,
		SuggestedAgent: "debugger",
	},
	{
		Name:           "agent_stuck_timeout",
		Pattern:        regexp.MustCompile(`(?i)(?:Command\s+)?timed?\s*out\s+(?:after\s+)?(\d+)`),
		Kind:           core.IssueKind("agent_stuck"),
		Priority:       core.PriorityHigh,
		SuggestedAgent: "debugger",
	},
	{
		Name:           "agent_stuck_no_output",
		Pattern:        regexp.MustCompile(`(?i)no\s+output\s+(?:received\s+)?(?:for\s+)?(\d+)\s*(?:seconds?|s)`),
		Kind:           core.IssueKind("agent_stuck"),
		Priority:       core.PriorityHigh,
		SuggestedAgent: "debugger",
	},
	{
		Name:           "ci_failure_emoji",
		Pattern:        regexp.MustCompile(`(?i)❌\s*(?:CI|Build|Pipeline)[:\s]+(.+)`),
		Kind:           core.IssueKind("ci_failure"),
		Priority:       core.PriorityHigh,
		SuggestedAgent: "deployment-engineer",
	},
	{
		Name:           "ci_failure_text",
		Pattern:        regexp.MustCompile(`(?i)(?:CI|build)\s+failed`),
		Kind:           core.IssueKind("ci_failure"),
		Priority:       core.PriorityHigh,
		SuggestedAgent: "deployment-engineer",
	},
	{
		Name:           "pr_check_failed",
		Pattern:        regexp.MustCompile(`(?i)PR\s+check\s+failed`),
		Kind:           core.IssueKind("pr_check_failed"),
		Priority:       core.PriorityHigh,
		SuggestedAgent: "deployment-engineer",
	},
	{
		Name:           "push_failed",
		Pattern:        regexp.MustCompile(`(?i)(?:error:\s*)?failed\s+to\s+push`),
		Kind:           core.IssueKind("push_failed"),
		Priority:       core.PriorityHigh,
		SuggestedAgent: "deployment-engineer",
	},
	{
		Name:           "exception_with_stack",
		Pattern:        regexp.MustCompile(`(?:TypeError|ReferenceError|SyntaxError|RangeError):\s*(.+?)(?:\n\s+at\s+\S+\s+\(([^:]+):(\d+))`),
		Kind:           core.IssueKind("exception"),
		Priority:       core.PriorityMedium,
		SuggestedAgent: "debugger",
	},
	{
		Name:           "error_generic",
		Pattern:        regexp.MustCompile(`(?i)(?:TypeError|ReferenceError|SyntaxError|RangeError|Error):\s*(.+)`),
		Kind:           core.IssueKind("exception"),
		Priority:       core.PriorityMedium,
		SuggestedAgent: "debugger",
	},
}

// Engine scans text for the loop signature first, then the rule table in
// declared order, returning the first match or nil.
type Engine struct {
	loopThreshold int
	table         []Rule
}

// New builds an Engine over the default rule table. loopThreshold<=0 uses
// LoopThreshold.
func New(loopThreshold int) *Engine {
	if loopThreshold <= 0 {
		loopThreshold = LoopThreshold
	}
	return &Engine{loopThreshold: loopThreshold, table: Table}
}

// Scan runs loop detection first, then the rule table in order, on text.
// It returns nil on empty input or when nothing matches. Scan time is
// linear in len(text): each rule is tried at most once, with no
// backtracking across rules.
func (e *Engine) Scan(text string) *Match {
	if text == "" {
		return nil
	}

	if m := e.scanLoop(text); m != nil {
		return m
	}

	for _, rule := range e.table {
		if groups := rule.Pattern.FindStringSubmatch(text); groups != nil {
			return &Match{
				RuleName:       rule.Name,
				Kind:           rule.Kind,
				Priority:       rule.Priority,
				SuggestedAgent: rule.SuggestedAgent,
				Groups:         groups[1:],
			}
		}
	}
	return nil
}

// scanLoop counts Tool:\s*(\w+) occurrences per tool name and returns an
// agent_loop match if any tool's count reaches the threshold.
func (e *Engine) scanLoop(text string) *Match {
	counts := make(map[string]int)
	best, bestCount := "", 0

	for _, m := range toolCallPattern.FindAllStringSubmatch(text, -1) {
		tool := m[1]
		counts[tool]++
		if counts[tool] > bestCount {
			best, bestCount = tool, counts[tool]
		}
	}

	if bestCount < e.loopThreshold {
		return nil
	}
	return &Match{
		RuleName:       "agent_loop",
		Kind:           core.IssueKind("agent_loop"),
		Priority:       core.PriorityHigh,
		SuggestedAgent: "debugger",
		Groups:         []string{best},
	}
}
