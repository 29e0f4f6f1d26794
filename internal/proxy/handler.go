// Package proxy implements the model-routing proxy (C10): a small HTTP
// server translating canonical chat requests to provider-specific dialects
// and back.
package proxy

import (
	"context"
	"strings"

	"github.com/oss-supervisor/workflow-supervisor/internal/core"
)

// Handler translates one canonical request into a provider call and its
// canonical response. Implementations are pure beyond the network call
// itself: no handler retains state across requests (spec.md §4.10).
type Handler interface {
	// Complete sends req to the provider and returns a canonical response.
	Complete(ctx context.Context, req core.ProxyRequest) (*core.ProxyResponse, error)
	// Healthy reports whether the downstream provider currently looks
	// reachable, for GET /health.
	Healthy(ctx context.Context) bool
}

// Registry dispatches a model string to a Handler by prefix, mirroring the
// teacher's cli.Registry factory-by-name pattern.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds prefix (e.g. "ollama/") to a handler.
func (r *Registry) Register(prefix string, h Handler) {
	r.handlers[prefix] = h
}

// ErrUnknownProvider is returned by Lookup when no registered prefix
// matches the model string (spec.md §4.10: "unrecognized provider prefix
// returns 400").
var ErrUnknownProvider = core.ErrInvalidInput("UNKNOWN_PROVIDER", "no handler registered for this model prefix")

// Lookup finds the handler whose prefix matches model, and the prefix
// itself (for health reporting).
func (r *Registry) Lookup(model string) (Handler, string, error) {
	for prefix, h := range r.handlers {
		if strings.HasPrefix(model, prefix) {
			return h, prefix, nil
		}
	}
	return nil, "", ErrUnknownProvider
}

// Prefixes returns every registered prefix, for health-check iteration.
func (r *Registry) Prefixes() []string {
	out := make([]string, 0, len(r.handlers))
	for p := range r.handlers {
		out = append(out, p)
	}
	return out
}

// Handler returns the handler registered at prefix, or nil.
func (r *Registry) Handler(prefix string) Handler {
	return r.handlers[prefix]
}
