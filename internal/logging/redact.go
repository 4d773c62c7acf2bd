package logging

import (
	"context"
	"log/slog"
	"strings"
)

// sensitiveKeys lists attribute keys whose values are replaced with
// "[redacted]" by redactingHandler. Matching is case-insensitive and
// substring-based so "api_key", "Authorization", "x-api-key" etc. are all caught.
var sensitiveKeys = []string{"api_key", "api-key", "apikey", "authorization", "secret", "password", "token"}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// redactingHandler wraps a slog.Handler and replaces the value of any
// attribute whose key looks like a credential before it reaches the
// underlying handler's output.
type redactingHandler struct {
	next slog.Handler
}

// WithRedaction wraps handler so that credential-shaped attribute keys never
// reach the log output in clear text.
func WithRedaction(handler slog.Handler) slog.Handler {
	return &redactingHandler{next: handler}
}

func (h *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *redactingHandler) Handle(ctx context.Context, r slog.Record) error {
	redacted := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		redacted.AddAttrs(redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, redacted)
}

func redactAttr(a slog.Attr) slog.Attr {
	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, "[redacted]")
	}
	return a
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = redactAttr(a)
	}
	return &redactingHandler{next: h.next.WithAttrs(redacted)}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{next: h.next.WithGroup(name)}
}
