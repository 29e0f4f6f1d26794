// Package llmfallback implements the LLM analyzer (C3): a bounded-timeout
// HTTP fallback classifier invoked when the rule engine finds nothing in
// an aggregated recent-log window.
package llmfallback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/oss-supervisor/workflow-supervisor/internal/core"
)

// DefaultTimeout bounds each classification request (spec.md §4.3).
const DefaultTimeout = 30 * time.Second

// DefaultConfidenceFloor is the minimum confidence required to enqueue a
// task from a classification (spec.md §4.3).
const DefaultConfidenceFloor = 0.7

// Kind menu offered to the remote classifier, mirroring the analyzer's
// closed anomaly set (spec.md §3, §4.3).
var KindMenu = []core.IssueKind{
	core.IssueLoopDetected,
	core.IssueExplicitFailure,
	core.IssuePhaseStuck,
	core.IssueSilence,
	core.IssueTDDViolation,
	core.IssueOutOfOrder,
	core.IssueMissingMilestones,
	core.IssueAbruptStop,
	core.IssueAbandonedAgent,
	core.IssueDecliningVelocity,
}

// request is the payload sent to the classification endpoint.
type request struct {
	Text     string          `json:"text"`
	KindMenu []core.IssueKind `json:"kind_menu"`
}

// response is the classifier's expected reply shape.
type response struct {
	Kind           core.IssueKind         `json:"kind"`
	Confidence     float64                `json:"confidence"`
	Context        map[string]interface{} `json:"context"`
	SuggestedAgent string                 `json:"suggested_agent"`
	Prompt         string                 `json:"prompt"`
}

// Config configures the fallback classifier's endpoint and credentials.
type Config struct {
	Endpoint        string
	APIKey          string
	Timeout         time.Duration
	ConfidenceFloor float64
}

// Classifier calls an external HTTP endpoint to classify a text window
// when the rule engine returns no match.
type Classifier struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// New builds a Classifier. A zero Timeout/ConfidenceFloor falls back to
// the package defaults.
func New(cfg Config, logger *slog.Logger) *Classifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ConfidenceFloor <= 0 {
		cfg.ConfidenceFloor = DefaultConfidenceFloor
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Classify submits text for classification. It returns (nil, nil) — a
// silent no-op, never an error the caller must handle — on network
// failure, non-200 status, unparsable JSON, or confidence below the
// configured floor (spec.md §4.3). A non-nil core.Issue is returned only
// on a confident, well-formed classification.
func (c *Classifier) Classify(ctx context.Context, text string) (*core.Issue, error) {
	if text == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(request{Text: text, KindMenu: KindMenu})
	if err != nil {
		return nil, fmt.Errorf("encoding classification request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building classification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("llmfallback: request failed, no-op", "error", err)
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("llmfallback: non-200 response, no-op", "status", resp.StatusCode)
		return nil, nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.logger.Warn("llmfallback: reading response failed, no-op", "error", err)
		return nil, nil
	}

	var parsed response
	if err := json.Unmarshal(raw, &parsed); err != nil {
		c.logger.Warn("llmfallback: unparsable response, no-op", "error", err)
		return nil, nil
	}

	if parsed.Confidence < c.cfg.ConfidenceFloor {
		return nil, nil
	}

	return &core.Issue{
		Kind:           parsed.Kind,
		Confidence:     parsed.Confidence,
		Priority:       confidenceToPriority(parsed.Confidence),
		Context:        parsed.Context,
		SuggestedAgent: parsed.SuggestedAgent,
		Prompt:         parsed.Prompt,
	}, nil
}

func confidenceToPriority(confidence float64) core.Priority {
	switch {
	case confidence >= 0.9:
		return core.PriorityHigh
	case confidence >= 0.7:
		return core.PriorityMedium
	default:
		return core.PriorityLow
	}
}
