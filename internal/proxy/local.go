package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/oss-supervisor/workflow-supervisor/internal/core"
)

// DefaultLocalBaseURL is the local handler's default downstream address
// (spec.md §4.10).
const DefaultLocalBaseURL = "http://localhost:11434"

// LocalHandler talks to a local Ollama-style chat server.
type LocalHandler struct {
	baseURL string
	client  *http.Client
}

// NewLocalHandler constructs a LocalHandler. An empty baseURL uses
// DefaultLocalBaseURL.
func NewLocalHandler(baseURL string) *LocalHandler {
	if baseURL == "" {
		baseURL = DefaultLocalBaseURL
	}
	return &LocalHandler{baseURL: baseURL, client: &http.Client{Timeout: 60 * time.Second}}
}

type localChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type localChatRequest struct {
	Model    string              `json:"model"`
	Messages []localChatMessage  `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]float64  `json:"options,omitempty"`
}

type localChatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
	Done            bool `json:"done"`
}

// toLocalRequest translates a canonical request to the local chat format:
// system becomes the first system message, and multi-block content is
// concatenated text-only (spec.md §4.10).
func toLocalRequest(req core.ProxyRequest, model string) localChatRequest {
	var messages []localChatMessage
	if req.System != "" {
		messages = append(messages, localChatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, localChatMessage{Role: string(m.Role), Content: core.MessageText(m.Content)})
	}

	out := localChatRequest{Model: model, Messages: messages, Stream: false}
	if req.Temperature != nil || req.TopP != nil {
		out.Options = map[string]float64{}
		if req.Temperature != nil {
			out.Options["temperature"] = *req.Temperature
		}
		if req.TopP != nil {
			out.Options["top_p"] = *req.TopP
		}
	}
	return out
}

func fromLocalResponse(resp localChatResponse, model string) *core.ProxyResponse {
	return &core.ProxyResponse{
		Type:       "message",
		Role:       core.RoleAssistant,
		Model:      model,
		Content:    []core.ContentBlock{{Type: core.ContentText, Text: resp.Message.Content}},
		StopReason: core.StopEndTurn,
		Usage:      core.Usage{InputTokens: resp.PromptEvalCount, OutputTokens: resp.EvalCount},
	}
}

// Complete posts req to the local server's /api/chat endpoint.
func (h *LocalHandler) Complete(ctx context.Context, req core.ProxyRequest) (*core.ProxyResponse, error) {
	model := strings.TrimPrefix(req.Model, "ollama/")
	body, err := json.Marshal(toLocalRequest(req, model))
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) || strings.Contains(err.Error(), "connection refused") {
			return nil, core.ErrUpstreamUnavailable("LOCAL_SERVER_UNREACHABLE",
				fmt.Sprintf("could not reach the local model server at %s — is it running?", h.baseURL))
		}
		return nil, core.ErrUpstreamUnavailable("LOCAL_SERVER_ERROR", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, upstreamStatusError(resp.StatusCode, "local server")
	}

	var decoded localChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, core.ErrUpstreamUnavailable("LOCAL_SERVER_BAD_RESPONSE", "could not parse local server response")
	}
	return fromLocalResponse(decoded, req.Model), nil
}

// Healthy pings the local server's root endpoint.
func (h *LocalHandler) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/", nil)
	if err != nil {
		return false
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}
