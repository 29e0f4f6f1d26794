package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oss-supervisor/workflow-supervisor/internal/core"
)

func TestLocalHandler_CompleteTranslatesRequestAndResponse(t *testing.T) {
	var captured localChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		resp := localChatResponse{Model: "llama3", PromptEvalCount: 12, EvalCount: 4}
		resp.Message.Role = "assistant"
		resp.Message.Content = "hello there"
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	h := NewLocalHandler(srv.URL)
	resp, err := h.Complete(context.Background(), core.ProxyRequest{
		Model:  "ollama/llama3",
		System: "be terse",
		Messages: []core.Message{
			{Role: core.RoleUser, Content: "hi"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "llama3", captured.Model)
	require.Equal(t, "system", captured.Messages[0].Role)
	require.Equal(t, "hello there", resp.Content[0].Text)
	require.Equal(t, core.StopEndTurn, resp.StopReason)
	require.Equal(t, 12, resp.Usage.InputTokens)
	require.Equal(t, 4, resp.Usage.OutputTokens)
}

func TestLocalHandler_ConnectionRefusedMapsToUpstreamUnavailable(t *testing.T) {
	h := NewLocalHandler("http://127.0.0.1:1")
	_, err := h.Complete(context.Background(), core.ProxyRequest{Model: "ollama/llama3"})
	require.Error(t, err)
	require.True(t, core.IsCategory(err, core.ErrCatUpstreamUnavail))
}

func TestLocalHandler_Non2xxMapsToStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	h := NewLocalHandler(srv.URL)
	_, err := h.Complete(context.Background(), core.ProxyRequest{Model: "ollama/llama3"})
	require.Error(t, err)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadGateway, statusErr.Status)
}

func TestLocalHandler_HealthyReflectsDownstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := NewLocalHandler(srv.URL)
	require.True(t, h.Healthy(context.Background()))

	unreachable := NewLocalHandler("http://127.0.0.1:1")
	require.False(t, unreachable.Healthy(context.Background()))
}
