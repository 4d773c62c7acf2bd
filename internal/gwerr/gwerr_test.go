package gwerr

import (
	"errors"
	"testing"
)

func TestMapStatus(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindBadRequest, 400},
		{KindUnauthorized, 401},
		{KindModelNotFound, 404},
		{KindUpstreamAuth, 502},
		{KindUpstreamRateLimit, 503},
		{KindUpstreamTransient, 503},
		{KindContentFiltered, 400},
		{KindClientCancelled, 499},
		{KindBodyTooLarge, 413},
		{KindInternal, 500},
		{Kind("something_unmapped"), 500},
	}
	for _, c := range cases {
		if got := MapStatus(c.kind); got != c.want {
			t.Errorf("MapStatus(%s) = %d, want %d", c.kind, got, c.want)
		}
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("upstream blew up")
	err := Wrap(KindUpstreamTransient, "provider a failed", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
	if err.Error() == "" || err.Error() == "provider a failed" {
		t.Errorf("Error() should include the cause, got %q", err.Error())
	}
}

func TestError_New_NoCause(t *testing.T) {
	err := New(KindModelNotFound, "model nonexistent not found")
	if err.Unwrap() != nil {
		t.Error("expected nil Unwrap for an error with no cause")
	}
	if err.Error() != "model nonexistent not found" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestWithDetails(t *testing.T) {
	details := []CandidateDetail{
		{ProviderKey: "a", Error: "429 rate limited"},
		{ProviderKey: "b", Error: "500 internal error"},
	}
	err := WithDetails(KindUpstreamTransient, "all candidates failed", nil, details)
	if len(err.Details) != 2 {
		t.Fatalf("expected 2 details, got %d", len(err.Details))
	}
	if err.Details[0].ProviderKey != "a" {
		t.Errorf("Details[0].ProviderKey = %q, want a", err.Details[0].ProviderKey)
	}
}

func TestCode(t *testing.T) {
	if Code(KindModelNotFound) != "model_not_found" {
		t.Errorf("Code(KindModelNotFound) = %q", Code(KindModelNotFound))
	}
}
