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

// DeepInfraProvider implements the Provider interface for DeepInfra, whose
// chat completions API is OpenAI-compatible.
type DeepInfraProvider struct {
	Base
	httpClient *http.Client
}

// NewDeepInfra creates a new DeepInfra provider.
func NewDeepInfra(apiKey string, baseURL string) (*DeepInfraProvider, error) {
	if baseURL == "" {
		baseURL = "https://api.deepinfra.com/v1/openai"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	return &DeepInfraProvider{
		Base:       Base{name: "deepinfra", apiKey: apiKey, baseURL: baseURL},
		httpClient: &http.Client{},
	}, nil
}

// AuthHeaders implements ProxiableProvider.
func (p *DeepInfraProvider) AuthHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.apiKey}
}

// SupportedModels returns the static list of known models for the /v1/models endpoint.
func (p *DeepInfraProvider) SupportedModels() []string {
	return []string{
		"meta-llama/Llama-3.3-70B-Instruct",
		"Qwen/Qwen2.5-72B-Instruct",
		"mistralai/Mixtral-8x22B-Instruct-v0.1",
	}
}

// SupportsModel returns true for any model — DeepInfra validates model names upstream.
func (p *DeepInfraProvider) SupportsModel(_ string) bool { return true }

// Models returns structured model metadata for the /v1/models endpoint.
func (p *DeepInfraProvider) Models() []ModelInfo {
	return ModelsFromList(p.name, p.SupportedModels())
}

type deepInfraRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type deepInfraResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

type deepInfraErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends a chat completion request and returns the full response.
func (p *DeepInfraProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	diReq := deepInfraRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	body, err := json.Marshal(diReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

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
		var errResp deepInfraErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("deepinfra API error (%d): %s", httpResp.StatusCode, errResp.Error.Message)
		}
		return nil, fmt.Errorf("deepinfra API error (%d): %s", httpResp.StatusCode, string(respBody))
	}

	var diResp deepInfraResponse
	if err := json.Unmarshal(respBody, &diResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &Response{
		ID:      diResp.ID,
		Model:   diResp.Model,
		Choices: diResp.Choices,
		Usage:   diResp.Usage,
	}, nil
}

type deepInfraStreamResponse struct {
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

// CompleteStream sends a streaming chat completion request to DeepInfra.
func (p *DeepInfraProvider) CompleteStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	diReq := deepInfraRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	}

	body, err := json.Marshal(diReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer func() { _ = httpResp.Body.Close() }()
		respBody, _ := io.ReadAll(httpResp.Body)
		var errResp deepInfraErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("deepinfra API error (%d): %s", httpResp.StatusCode, errResp.Error.Message)
		}
		return nil, fmt.Errorf("deepinfra API error (%d): %s", httpResp.StatusCode, string(respBody))
	}

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		defer func() { _ = httpResp.Body.Close() }()

		err := sse.ScanDataLines(httpResp.Body, func(data string) error {
			var chunk deepInfraStreamResponse
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
