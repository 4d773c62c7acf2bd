package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewDeepInfra(t *testing.T) {
	p, err := NewDeepInfra("test-key", "")
	if err != nil {
		t.Fatalf("NewDeepInfra() error: %v", err)
	}
	if p.Name() != "deepinfra" {
		t.Errorf("Name() = %q, want deepinfra", p.Name())
	}
}

func TestDeepInfraProvider_SupportedModels(t *testing.T) {
	p, _ := NewDeepInfra("test-key", "")
	models := p.SupportedModels()
	if len(models) == 0 {
		t.Error("SupportedModels() returned empty")
	}
}

func TestDeepInfraProvider_SupportsModel(t *testing.T) {
	p, _ := NewDeepInfra("test-key", "")
	if !p.SupportsModel("anything") {
		t.Error("passthrough: expected any model to return true")
	}
}

func TestDeepInfraProvider_Models(t *testing.T) {
	p, _ := NewDeepInfra("test-key", "")
	for _, m := range p.Models() {
		if m.OwnedBy != "deepinfra" {
			t.Errorf("ModelInfo.OwnedBy = %q, want deepinfra", m.OwnedBy)
		}
	}
}

func TestDeepInfraProvider_CompleteStream_Interface(_ *testing.T) {
	p, _ := NewDeepInfra("test-key", "")
	var _ StreamProvider = p
}

func TestDeepInfraProvider_Complete_MockHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","model":"meta-llama/Llama-3.3-70B-Instruct","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`))
	}))
	defer srv.Close()

	p, _ := NewDeepInfra("test-key", srv.URL)
	resp, err := p.Complete(context.Background(), Request{
		Model:    "meta-llama/Llama-3.3-70B-Instruct",
		Messages: []Message{{Role: "user", Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if resp.Choices[0].Message.Content != "hi" {
		t.Errorf("content = %q, want hi", resp.Choices[0].Message.Content)
	}
	if resp.Usage.TotalTokens != 4 {
		t.Errorf("total tokens = %d, want 4", resp.Usage.TotalTokens)
	}
}

func TestDeepInfraProvider_Complete_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p, _ := NewDeepInfra("bad-key", srv.URL)
	_, err := p.Complete(context.Background(), Request{
		Model:    "meta-llama/Llama-3.3-70B-Instruct",
		Messages: []Message{{Role: "user", Content: "Hi"}},
	})
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
}
