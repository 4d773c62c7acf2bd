package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ferro-labs/inference-gateway/internal/sse"
)

// AntigravityProvider implements the Provider interface for gateway-local,
// experimental OpenAI-compatible deployments (e.g. a self-hosted vLLM or
// TGI server reachable only inside the operator's network). Unlike the
// hosted providers it has no fixed default base URL: an empty endpoint is
// an error rather than a public default, since "antigravity" names
// whatever the operator pointed it at, not a single vendor.
type AntigravityProvider struct {
	Base
	httpClient *http.Client
}

// NewAntigravity creates a new Antigravity provider pointed at baseURL.
func NewAntigravity(apiKey string, baseURL string) (*AntigravityProvider, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("antigravity provider requires a base_url")
	}

	return &AntigravityProvider{
		Base:       Base{name: "antigravity", apiKey: apiKey, baseURL: baseURL},
		httpClient: &http.Client{},
	}, nil
}

// AuthHeaders implements ProxiableProvider. apiKey is optional — many
// self-hosted deployments run without one.
func (p *AntigravityProvider) AuthHeaders() map[string]string {
	if p.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + p.apiKey}
}

// SupportedModels returns no static list: a self-hosted deployment's model
// set is whatever the operator configured on the upstream server.
func (p *AntigravityProvider) SupportedModels() []string { return nil }

// SupportsModel returns true for any model — the upstream server validates.
func (p *AntigravityProvider) SupportsModel(_ string) bool { return true }

// Models returns no static metadata; pair this provider with auto-discovery
// (it implements DiscoveryProvider) to populate /v1/models.
func (p *AntigravityProvider) Models() []ModelInfo { return nil }

// DiscoverModels fetches the live model list from the upstream's
// OpenAI-compatible GET /v1/models endpoint.
func (p *AntigravityProvider) DiscoverModels(ctx context.Context) ([]ModelInfo, error) {
	return discoverOpenAICompatibleModels(ctx, p.httpClient, p.baseURL+"/v1/models", p.apiKey, p.name)
}

type antigravityRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type antigravityResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

type antigravityErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends a chat completion request and returns the full response.
func (p *AntigravityProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	agReq := antigravityRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	body, err := json.Marshal(agReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range p.AuthHeaders() {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var errResp antigravityErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("antigravity API error (%d): %s", httpResp.StatusCode, errResp.Error.Message)
		}
		return nil, fmt.Errorf("antigravity API error (%d): %s", httpResp.StatusCode, string(respBody))
	}

	var agResp antigravityResponse
	if err := json.Unmarshal(respBody, &agResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &Response{
		ID:      agResp.ID,
		Model:   agResp.Model,
		Choices: agResp.Choices,
		Usage:   agResp.Usage,
	}, nil
}

type antigravityStreamResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
}

// CompleteStream sends a streaming chat completion request to the
// configured upstream.
func (p *AntigravityProvider) CompleteStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	agReq := antigravityRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	}

	body, err := json.Marshal(agReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range p.AuthHeaders() {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer func() { _ = httpResp.Body.Close() }()
		respBody, _ := io.ReadAll(httpResp.Body)
		var errResp antigravityErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("antigravity API error (%d): %s", httpResp.StatusCode, errResp.Error.Message)
		}
		return nil, fmt.Errorf("antigravity API error (%d): %s", httpResp.StatusCode, string(respBody))
	}

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		defer func() { _ = httpResp.Body.Close() }()

		err := sse.ScanDataLines(httpResp.Body, func(data string) error {
			var chunk antigravityStreamResponse
			if json.Unmarshal([]byte(data), &chunk) != nil {
				return nil
			}
			sc := StreamChunk{ID: chunk.ID, Model: chunk.Model}
			for _, c := range chunk.Choices {
				sc.Choices = append(sc.Choices, StreamChoice{
					Index:        c.Index,
					Delta:        MessageDelta{Role: c.Delta.Role, Content: c.Delta.Content},
					FinishReason: c.FinishReason,
				})
			}
			ch <- sc
			return nil
		})
		if err != nil {
			ch <- StreamChunk{Error: err}
		}
	}()

	return ch, nil
}
