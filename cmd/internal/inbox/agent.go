package inbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AgentStatusOK is the only agent status treated as usable output.
// Anything else maps to "nothing to say", not to a failure.
const AgentStatusOK = "success"

// AgentRequest is the envelope handed to the generating agent.
type AgentRequest struct {
	// Input is the generation prompt built from the current queue and
	// history state.
	Input string `json:"input"`

	UserID   string            `json:"userId"`
	MaxItems int               `json:"maxItems"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// AgentResponse is the agent's reply. Output is untrusted and must pass
// ValidateBatch before use.
type AgentResponse struct {
	Status string          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
}

// Agent is an external, non-deterministic content generator treated as an
// opaque capability by the pipeline.
type Agent interface {
	Run(ctx context.Context, req AgentRequest) (AgentResponse, error)
}

// NoopAgent always reports nothing to say. Used when no agent endpoint is
// configured so the rest of the service still runs.
type NoopAgent struct{}

// Run reports an empty, non-success status.
func (NoopAgent) Run(_ context.Context, _ AgentRequest) (AgentResponse, error) {
	return AgentResponse{Status: "disabled"}, nil
}

const agentMaxResponseBytes = 1 << 20 // 1 MiB

// HTTPAgent invokes a remote generator over HTTP: one POST per generation
// cycle, JSON request and response. Timeouts are enforced by the caller's
// context (the engine applies its configured agent timeout).
type HTTPAgent struct {
	url    string
	client *http.Client
}

// NewHTTPAgent constructs an HTTP-backed Agent for the given endpoint.
func NewHTTPAgent(url string, client *http.Client) (*HTTPAgent, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("inbox: empty agent url")
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPAgent{url: url, client: client}, nil
}

// Run posts the request envelope and decodes the agent's reply.
func (a *HTTPAgent) Run(ctx context.Context, req AgentRequest) (AgentResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return AgentResponse{}, fmt.Errorf("marshal agent request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return AgentResponse{}, fmt.Errorf("build agent request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return AgentResponse{}, fmt.Errorf("call agent: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return AgentResponse{}, fmt.Errorf("agent returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, agentMaxResponseBytes))
	if err != nil {
		return AgentResponse{}, fmt.Errorf("read agent response: %w", err)
	}

	var out AgentResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return AgentResponse{}, fmt.Errorf("decode agent response: %w", err)
	}
	return out, nil
}
