package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/oss-supervisor/workflow-supervisor/internal/core"
)

// RemoteHandler talks to an OpenAI-dialect chat/completions endpoint
// (spec.md §4.10: "Remote-OpenAI-dialect handler").
type RemoteHandler struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewRemoteHandler constructs a RemoteHandler. apiKey must be non-empty —
// callers are expected to check before registering the handler.
func NewRemoteHandler(baseURL, apiKey string) *RemoteHandler {
	return &RemoteHandler{baseURL: baseURL, apiKey: apiKey, client: &http.Client{Timeout: 60 * time.Second}}
}

type remoteMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type remoteRequest struct {
	Model       string          `json:"model"`
	Messages    []remoteMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
}

type remoteChoice struct {
	Message      remoteMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type remoteResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []remoteChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// finishReasonToStopReason maps OpenAI finish_reason to the canonical
// stop_reason (spec.md §4.10).
func finishReasonToStopReason(reason string) core.StopReason {
	switch reason {
	case "length":
		return core.StopMaxTokens
	case "tool_calls":
		return core.StopToolUse
	default:
		return core.StopEndTurn
	}
}

func toRemoteRequest(req core.ProxyRequest, model string) remoteRequest {
	var messages []remoteMessage
	if req.System != "" {
		messages = append(messages, remoteMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, remoteMessage{Role: string(m.Role), Content: core.MessageText(m.Content)})
	}
	return remoteRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
}

func fromRemoteResponse(resp remoteResponse, model string) *core.ProxyResponse {
	var text string
	var stop core.StopReason = core.StopEndTurn
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
		stop = finishReasonToStopReason(resp.Choices[0].FinishReason)
	}
	return &core.ProxyResponse{
		ID:         resp.ID,
		Type:       "message",
		Role:       core.RoleAssistant,
		Model:      model,
		Content:    []core.ContentBlock{{Type: core.ContentText, Text: text}},
		StopReason: stop,
		Usage:      core.Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens},
	}
}

// Complete posts req to the remote chat/completions endpoint with a Bearer
// authorization header.
func (h *RemoteHandler) Complete(ctx context.Context, req core.ProxyRequest) (*core.ProxyResponse, error) {
	if h.apiKey == "" {
		return nil, core.ErrInvalidInput("MISSING_API_KEY", "no API key configured for this provider")
	}

	model := strings.SplitN(req.Model, "/", 2)
	m := req.Model
	if len(model) == 2 {
		m = model[1]
	}

	body, err := json.Marshal(toRemoteRequest(req, m))
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+h.apiKey)

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, core.ErrUpstreamUnavailable("REMOTE_SERVER_ERROR", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, upstreamStatusError(resp.StatusCode, "remote provider")
	}

	var decoded remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, core.ErrUpstreamUnavailable("REMOTE_SERVER_BAD_RESPONSE", "could not parse remote provider response")
	}
	return fromRemoteResponse(decoded, req.Model), nil
}

// Healthy reports true only when an API key is configured; no network
// probe is made on every health check to avoid burning rate limit budget.
func (h *RemoteHandler) Healthy(ctx context.Context) bool {
	return h.apiKey != ""
}
