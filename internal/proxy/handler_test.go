package proxy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oss-supervisor/workflow-supervisor/internal/core"
)

type stubHandler struct {
	healthy bool
}

func (s *stubHandler) Complete(ctx context.Context, req core.ProxyRequest) (*core.ProxyResponse, error) {
	return &core.ProxyResponse{Model: req.Model}, nil
}

func (s *stubHandler) Healthy(ctx context.Context) bool { return s.healthy }

func TestRegistry_LookupMatchesByPrefix(t *testing.T) {
	r := NewRegistry()
	local := &stubHandler{healthy: true}
	remote := &stubHandler{healthy: false}
	r.Register("ollama/", local)
	r.Register("openai/", remote)

	h, prefix, err := r.Lookup("ollama/llama3")
	require.NoError(t, err)
	require.Equal(t, "ollama/", prefix)
	require.Same(t, local, h)

	h, prefix, err = r.Lookup("openai/gpt-4o")
	require.NoError(t, err)
	require.Equal(t, "openai/", prefix)
	require.Same(t, remote, h)
}

func TestRegistry_LookupUnknownPrefixErrors(t *testing.T) {
	r := NewRegistry()
	r.Register("ollama/", &stubHandler{})

	_, _, err := r.Lookup("anthropic/claude")
	require.Error(t, err)
	require.True(t, core.IsCategory(err, core.ErrCatInvalidInput))
}

func TestRegistry_Prefixes(t *testing.T) {
	r := NewRegistry()
	r.Register("ollama/", &stubHandler{})
	r.Register("openai/", &stubHandler{})
	require.ElementsMatch(t, []string{"ollama/", "openai/"}, r.Prefixes())
}
