// Package worklog implements the append-only structured workflow log and
// its tailing reader (C1).
package worklog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/oss-supervisor/workflow-supervisor/internal/core"
)

// Writer appends entries to the workflow log. Writes are serialized through
// an internal mutex so callers never see torn entries (spec.md §4.1, §5) —
// the same "single owner serializes mutation" convention the teacher applies
// to its state manager's lock file.
type Writer struct {
	mu   sync.Mutex
	path string
}

// NewWriter opens (creating if necessary) the log file at path for appending.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Append renders and appends one log record: a JSON data line, a `#`-prefixed
// human summary line, and (for COMPLETE/AGENT_COMPLETE entries carrying an
// IronLaws checklist) a compliance block (spec.md §4.1).
func (w *Writer) Append(entry core.LogEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling log entry: %w", err)
	}

	var buf strings.Builder
	buf.Write(line)
	buf.WriteByte('\n')
	buf.WriteString("# ")
	buf.WriteString(summaryLine(entry))
	buf.WriteByte('\n')

	if block := complianceBlock(entry); block != "" {
		buf.WriteString(block)
	}

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(buf.String()); err != nil {
		return fmt.Errorf("appending log entry: %w", err)
	}
	return nil
}

// summaryLine renders the `CMD[:PHASE]:EVENT - <description>` human summary
// (spec.md §4.1).
func summaryLine(e core.LogEntry) string {
	head := strings.ToUpper(e.Command)
	if e.Phase != "" {
		head += ":" + strings.ToUpper(e.Phase)
	}
	head += ":" + string(e.Event)

	desc := describe(e)
	if desc == "" {
		return head + " -"
	}
	return head + " - " + desc
}

// describe renders the description half of the summary line per the rules
// in spec.md §4.1, in priority order.
func describe(e core.LogEntry) string {
	if e.Agent != nil || e.Event == core.EventAgentSpawn || e.Event == core.EventAgentComplete {
		agentType := ""
		if e.Agent != nil {
			agentType = e.Agent.Type
		}
		if task := e.DataString("task"); task != "" {
			return fmt.Sprintf("%s: %s", agentType, task)
		}
		return agentType + ":"
	}

	switch e.Event {
	case core.EventComplete:
		if s := e.DataString("summary"); s != "" {
			return s
		}
	case core.EventFailed:
		if s := e.DataString("error"); s != "" {
			return s
		}
	case core.EventStart:
		if args, ok := e.Data["args"]; ok {
			return joinArgs(args)
		}
	case core.EventMilestone:
		if s := e.DataString("description"); s != "" {
			return s
		}
	}
	return ""
}

func joinArgs(v interface{}) string {
	switch args := v.(type) {
	case []interface{}:
		parts := make([]string, 0, len(args))
		for _, a := range args {
			parts = append(parts, fmt.Sprintf("%v", a))
		}
		return strings.Join(parts, " ")
	case []string:
		return strings.Join(args, " ")
	case string:
		return args
	default:
		return ""
	}
}

// complianceBlock renders the seven `#`-prefixed iron-law compliance lines
// for COMPLETE/AGENT_COMPLETE entries carrying a checklist (spec.md §4.1).
func complianceBlock(e core.LogEntry) string {
	if e.IronLaws == nil {
		return ""
	}
	if e.Event != core.EventComplete && e.Event != core.EventAgentComplete {
		return ""
	}

	labels := []struct {
		law   core.LawID
		label string
	}{
		{core.LawTDD, "LAW 1: Test-Driven Development"},
		{core.LawBehaviorTests, "LAW 2: Behavior-Level Tests"},
		{core.LawNoLoops, "LAW 3: No Debugging Loops"},
		{core.LawFeatureBranch, "LAW 4: Feature Branch"},
		{core.LawDelegation, "LAW 5: Delegation"},
		{core.LawDocsSynced, "LAW 6: Docs Synced"},
	}

	var buf strings.Builder
	buf.WriteString("# IRON LAW COMPLIANCE:\n")
	for _, l := range labels {
		mark := "[✗]"
		if e.IronLaws.Get(l.law) {
			mark = "[✓]"
		}
		fmt.Fprintf(&buf, "# %s %s\n", mark, l.label)
	}
	fmt.Fprintf(&buf, "# Result: %d/6 laws observed\n", e.IronLaws.Passed())
	buf.WriteString("#\n")
	return buf.String()
}
