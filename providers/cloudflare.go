package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// CloudflareProvider implements the Provider interface for Cloudflare
// Workers AI. Unlike the other REST adapters its wire format is not
// OpenAI-compatible: requests post to /run/{model} under the operator's
// account, and responses nest the completion text under result.response
// rather than an OpenAI-style choices array.
type CloudflareProvider struct {
	Base
	httpClient *http.Client
}

// NewCloudflare creates a new Cloudflare Workers AI provider. baseURL must
// be the full account-scoped run endpoint, e.g.
// "https://api.cloudflare.com/client/v4/accounts/<account-id>/ai/run".
func NewCloudflare(apiKey string, baseURL string) (*CloudflareProvider, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("cloudflare provider requires an account-scoped base_url")
	}

	return &CloudflareProvider{
		Base:       Base{name: "cloudflare", apiKey: apiKey, baseURL: baseURL},
		httpClient: &http.Client{},
	}, nil
}

// AuthHeaders implements ProxiableProvider.
func (p *CloudflareProvider) AuthHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.apiKey}
}

// SupportedModels returns the static list of known Workers AI chat models.
func (p *CloudflareProvider) SupportedModels() []string {
	return []string{
		"@cf/meta/llama-3.3-70b-instruct-fp8-fast",
		"@cf/meta/llama-3.1-8b-instruct",
		"@cf/mistral/mistral-7b-instruct-v0.2",
	}
}

// SupportsModel returns true for any model — Workers AI validates model IDs upstream.
func (p *CloudflareProvider) SupportsModel(_ string) bool { return true }

// Models returns structured model metadata for the /v1/models endpoint.
func (p *CloudflareProvider) Models() []ModelInfo {
	return ModelsFromList(p.name, p.SupportedModels())
}

type cloudflareRequest struct {
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type cloudflareResponse struct {
	Result struct {
		Response string `json:"response"`
		Usage    struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	} `json:"result"`
	Success bool `json:"success"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Complete sends a chat completion request and translates Workers AI's
// result.response field into an OpenAI-shaped Response.
func (p *CloudflareProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	cfReq := cloudflareRequest{
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	body, err := json.Marshal(cfReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/"+req.Model, bytes.NewReader(body))
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

	var cfResp cloudflareResponse
	if err := json.Unmarshal(respBody, &cfResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK || !cfResp.Success {
		if len(cfResp.Errors) > 0 {
			return nil, fmt.Errorf("cloudflare API error (%d): %s", httpResp.StatusCode, cfResp.Errors[0].Message)
		}
		return nil, fmt.Errorf("cloudflare API error (%d): %s", httpResp.StatusCode, string(respBody))
	}

	return &Response{
		Model: req.Model,
		Choices: []Choice{{
			Index:        0,
			Message:      Message{Role: "assistant", Content: cfResp.Result.Response},
			FinishReason: "stop",
		}},
		Usage: Usage{
			PromptTokens:     cfResp.Result.Usage.PromptTokens,
			CompletionTokens: cfResp.Result.Usage.CompletionTokens,
			TotalTokens:      cfResp.Result.Usage.TotalTokens,
		},
	}, nil
}
