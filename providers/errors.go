package providers

import (
	"fmt"

	"github.com/ferro-labs/inference-gateway/internal/gwerr"
)

// APIError wraps an upstream provider failure with the status code that
// produced it and the gwerr.Kind it classifies to. Wrapping upstream errors
// this way, instead of returning a bare fmt.Errorf, lets gateway.go's
// Route/RouteStream attempt loop tell an auth misconfiguration apart from a
// rate limit or a transient 5xx without re-parsing a provider-specific
// error string.
type APIError struct {
	Provider   string
	StatusCode int
	Kind       gwerr.Kind
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: upstream returned %d: %s", e.Provider, e.StatusCode, e.Message)
}

// NewAPIError builds an APIError classified from an upstream HTTP status
// code, trimming message to a sane length so a provider's raw HTML error
// page never floods logs or the client's candidate detail list.
func NewAPIError(provider string, statusCode int, message string) *APIError {
	const maxMessage = 512
	if len(message) > maxMessage {
		message = message[:maxMessage]
	}
	return &APIError{
		Provider:   provider,
		StatusCode: statusCode,
		Kind:       classifyStatus(statusCode),
		Message:    message,
	}
}

// classifyStatus maps an upstream HTTP status code to the gateway's error
// taxonomy. Every REST-based provider adapter in this package funnels its
// upstream failures through here so the taxonomy stays in one place instead
// of being re-derived per provider.
func classifyStatus(status int) gwerr.Kind {
	switch {
	case status == 401 || status == 403:
		return gwerr.KindUpstreamAuth
	case status == 429:
		return gwerr.KindUpstreamRateLimit
	case status >= 500:
		return gwerr.KindUpstreamTransient
	case status >= 400:
		return gwerr.KindBadRequest
	default:
		return gwerr.KindUpstreamTransient
	}
}
