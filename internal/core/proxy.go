package core

// ContentBlockKind is the closed set of canonical message content block
// kinds (spec.md §4.10).
type ContentBlockKind string

const (
	ContentText       ContentBlockKind = "text"
	ContentToolUse    ContentBlockKind = "tool_use"
	ContentToolResult ContentBlockKind = "tool_result"
)

// ContentBlock is one block of a canonical message's content. Content may
// also be carried as a plain string (see Message.Content).
type ContentBlock struct {
	Type      ContentBlockKind `json:"type"`
	Text      string           `json:"text,omitempty"`
	ToolUseID string           `json:"tool_use_id,omitempty"`
	Name      string           `json:"name,omitempty"`
	Input     interface{}      `json:"input,omitempty"`
	Content   string           `json:"content,omitempty"`
}

// MessageRole is the closed set of canonical message roles.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is one canonical-format turn. Content is either a plain string
// or a list of ContentBlock, so it is carried as interface{} and narrowed
// by the caller (spec.md §4.10).
type Message struct {
	Role    MessageRole `json:"role"`
	Content interface{} `json:"content"`
}

// ProxyRequest is the canonical model-routing request body (spec.md §4.10).
type ProxyRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []Message     `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	Tools       []interface{} `json:"tools,omitempty"`
}

// Usage reports token accounting for a proxy response.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// StopReason is the closed set of canonical stop reasons (spec.md §6.5).
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopMaxTokens StopReason = "max_tokens"
	StopToolUse   StopReason = "tool_use"
)

// ProxyResponse is the canonical model-routing response body (spec.md
// §6.5).
type ProxyResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       MessageRole    `json:"role"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason StopReason     `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// MessageText concatenates the text of a message's content, whether it is
// a plain string or a block list — the "multi-block content is
// concatenated text-only" rule the local handler applies (spec.md §4.10).
func MessageText(content interface{}) string {
	switch c := content.(type) {
	case string:
		return c
	case []ContentBlock:
		out := ""
		for _, b := range c {
			if b.Type == ContentText || b.Type == "" {
				out += b.Text
			}
		}
		return out
	case []interface{}:
		out := ""
		for _, raw := range c {
			m, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			if t, _ := m["type"].(string); t == "" || t == string(ContentText) {
				if text, ok := m["text"].(string); ok {
					out += text
				}
			}
		}
		return out
	default:
		return ""
	}
}
