// Package intervene implements the intervention generator (C5): a pure
// function mapping a detected issue to a notification and, where
// warranted, a queue task.
package intervene

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/oss-supervisor/workflow-supervisor/internal/core"
)

// template holds title/message copy with {placeholder} tokens resolved
// against an issue's Context map at render time.
type template struct {
	Title   string
	Message string
}

// catalog keys copy by anomaly kind. Kinds sourced only from the rule
// engine/LLM fallback (e.g. test_failure, ci_failure) fall through to
// defaultTemplate, which is generic enough to read naturally for any kind.
var catalog = map[core.IssueKind]template{
	core.IssueLoopDetected:       {Title: "Agent Loop Detected", Message: "{tool_name} repeated {repeat_count}+ times in a row."},
	core.IssueExplicitFailure:    {Title: "Workflow Failed", Message: "{command} failed: {error}"},
	core.IssuePhaseStuck:         {Title: "Phase Stuck", Message: "{command}:{phase} has shown no progress for a while."},
	core.IssueSilence:            {Title: "Workflow Silent", Message: "{command} has gone quiet since it started."},
	core.IssueTDDViolation:       {Title: "TDD Violation", Message: "green started before red completed for {feature}."},
	core.IssueOutOfOrder:         {Title: "Out Of Order", Message: "{command} started before {expected_after} finished."},
	core.IssueMissingMilestones:  {Title: "Milestones Missing", Message: "{command} completed without all expected milestones."},
	core.IssueAbruptStop:         {Title: "Workflow Stalled", Message: "{command} stopped without completing or failing."},
	core.IssueAbandonedAgent:     {Title: "Agent Abandoned", Message: "Agent {agent_type} has gone silent."},
	core.IssueDecliningVelocity:  {Title: "Velocity Declining", Message: "Milestone pace has slowed noticeably."},
	core.IssueIronLawViolation:   {Title: "Iron Law Violation", Message: "{law}: {message}"},
	core.IssueIronLawRepeated:    {Title: "Iron Law Repeated", Message: "{law}: {message}"},
}

var defaultTemplate = template{Title: "Workflow Issue", Message: "An anomaly was detected in the workflow."}

// fallbacks supplies a never-"unknown" substitute for a placeholder whose
// context value is missing, empty, or literally "unknown" (spec.md §4.5,
// §7: "the token unknown must never appear in rendered output").
var fallbacks = map[string]string{
	"tool_name":      "a tool",
	"repeat_count":   "several",
	"command":        "the workflow",
	"phase":          "this phase",
	"error":          "an unspecified error",
	"feature":        "this feature",
	"agent_type":     "an agent",
	"expected_after": "the prior step",
	"law":            "a compliance law",
	"message":        "a compliance issue",
}

var placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)

// render substitutes every {placeholder} in tmpl from ctx, falling back to
// fallbacks (or, absent an entry there, the placeholder name itself) when
// a value is missing, empty, or the literal string "unknown".
func render(tmpl string, ctx map[string]interface{}) string {
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		if v, ok := ctx[key]; ok {
			s := stringify(v)
			if s != "" && !strings.EqualFold(s, "unknown") {
				return s
			}
		}
		if fb, ok := fallbacks[key]; ok {
			return fb
		}
		return key
	})
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// maxTitleLen and maxMessageLen bound rendered notification copy
// (spec.md §3: "title ≤ 20 chars, message ≤ 50 chars").
const (
	maxTitleLen   = 20
	maxMessageLen = 50
)

// truncate shortens s to at most max runes, replacing the tail with an
// ellipsis when it doesn't fit.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return string(runes[:max-1]) + "…"
}

// notificationPriority maps an issue priority to a notification priority.
func notificationPriority(p core.Priority) core.NotificationPriority {
	switch p {
	case core.PriorityCritical:
		return core.NotifyCritical
	case core.PriorityHigh:
		return core.NotifyHigh
	default:
		return core.NotifyLow
	}
}

func soundFor(p core.NotificationPriority) string {
	switch p {
	case core.NotifyCritical:
		return "critical"
	case core.NotifyHigh:
		return "alert"
	default:
		return "default"
	}
}

// Generate maps an issue to an intervention: a rendered notification and,
// for auto_remediate/notify_suggest responses, a queue task (spec.md
// §4.5).
func Generate(iss core.Issue) core.Intervention {
	resp := core.ClassifyResponse(iss.Confidence)

	tmpl, ok := catalog[iss.Kind]
	if !ok {
		tmpl = defaultTemplate
	}

	notification := core.Notification{
		Title:    truncate(render(tmpl.Title, iss.Context), maxTitleLen),
		Message:  truncate(render(tmpl.Message, iss.Context), maxMessageLen),
		Priority: notificationPriority(iss.Priority),
	}
	notification.Sound = soundFor(notification.Priority)

	intervention := core.Intervention{Response: resp, Notification: notification}

	if resp != core.ResponseNotifyOnly {
		intervention.Task = &core.TaskInput{
			Priority:       iss.Priority,
			Source:         "analyzer",
			AnomalyType:    iss.Kind,
			Prompt:         iss.Prompt,
			SuggestedAgent: iss.SuggestedAgent,
			Context:        iss.Context,
		}
		if intervention.Task.Prompt == "" {
			intervention.Task.Prompt = notification.Message
		}
	}

	return intervention
}
