package core

// ResponseKind is the closed set of intervention response kinds, chosen by
// confidence thresholds (spec.md §3, §4.5).
type ResponseKind string

const (
	ResponseAutoRemediate ResponseKind = "auto_remediate"
	ResponseNotifySuggest ResponseKind = "notify_suggest"
	ResponseNotifyOnly    ResponseKind = "notify_only"
)

// ClassifyResponse maps a confidence score to the response kind per
// spec.md §3/§4.5: >0.9 auto-remediate, 0.7..0.9 suggest, else notify only.
func ClassifyResponse(confidence float64) ResponseKind {
	switch {
	case confidence > 0.9:
		return ResponseAutoRemediate
	case confidence >= 0.7:
		return ResponseNotifySuggest
	default:
		return ResponseNotifyOnly
	}
}

// NotificationPriority is the closed set of user-facing notification priorities.
type NotificationPriority string

const (
	NotifyLow      NotificationPriority = "low"
	NotifyHigh     NotificationPriority = "high"
	NotifyCritical NotificationPriority = "critical"
)

// Notification is the rendered, user-facing copy of an intervention
// (spec.md §3: title <=20 chars, message <=50 chars).
type Notification struct {
	Title    string               `json:"title"`
	Message  string               `json:"message"`
	Priority NotificationPriority `json:"priority"`
	Sound    string               `json:"sound,omitempty"`
}

// Intervention is the pure-function output of the intervention generator
// mapping an Issue to a response kind, notification copy, and an optional
// queue task (spec.md §3, §4.5).
type Intervention struct {
	Response     ResponseKind  `json:"response"`
	Notification Notification  `json:"notification"`
	Task         *TaskInput    `json:"task,omitempty"`
}
