package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewAntigravity_RequiresBaseURL(t *testing.T) {
	if _, err := NewAntigravity("", ""); err == nil {
		t.Fatal("expected error when base_url is empty")
	}
}

func TestNewAntigravity(t *testing.T) {
	p, err := NewAntigravity("", "http://localhost:8000")
	if err != nil {
		t.Fatalf("NewAntigravity() error: %v", err)
	}
	if p.Name() != "antigravity" {
		t.Errorf("Name() = %q, want antigravity", p.Name())
	}
}

func TestAntigravityProvider_AuthHeaders_OptionalKey(t *testing.T) {
	p, _ := NewAntigravity("", "http://localhost:8000")
	if headers := p.AuthHeaders(); headers != nil {
		t.Errorf("expected nil auth headers with no api key, got %v", headers)
	}

	p2, _ := NewAntigravity("secret", "http://localhost:8000")
	if headers := p2.AuthHeaders(); headers["Authorization"] != "Bearer secret" {
		t.Errorf("Authorization header = %q, want Bearer secret", headers["Authorization"])
	}
}

func TestAntigravityProvider_SupportsModel(t *testing.T) {
	p, _ := NewAntigravity("", "http://localhost:8000")
	if !p.SupportsModel("whatever-the-operator-deployed") {
		t.Error("passthrough: expected any model to return true")
	}
}

func TestAntigravityProvider_CompleteStream_Interface(_ *testing.T) {
	p, _ := NewAntigravity("", "http://localhost:8000")
	var _ StreamProvider = p
}

func TestAntigravityProvider_Complete_MockHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","model":"local-model","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":2,"completion_tokens":1,"total_tokens":3}}`))
	}))
	defer srv.Close()

	p, _ := NewAntigravity("", srv.URL)
	resp, err := p.Complete(context.Background(), Request{
		Model:    "local-model",
		Messages: []Message{{Role: "user", Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if resp.Choices[0].Message.Content != "hi" {
		t.Errorf("content = %q, want hi", resp.Choices[0].Message.Content)
	}
}

func TestAntigravityProvider_DiscoverModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"local-model","object":"model","owned_by":"local"}]}`))
	}))
	defer srv.Close()

	p, _ := NewAntigravity("", srv.URL)
	models, err := p.DiscoverModels(context.Background())
	if err != nil {
		t.Fatalf("DiscoverModels() error: %v", err)
	}
	if len(models) != 1 || models[0].ID != "local-model" {
		t.Errorf("unexpected models: %+v", models)
	}
}
