// Package logging provides structured JSON logging with trace ID propagation.
// It wraps Go's built-in log/slog with gateway-specific helpers: a per-request
// trace ID injected via middleware and extracted from context.
package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"os"
)

type contextKey string

const (
	traceIDKey     contextKey = "trace_id"
	tenantIDKey    contextKey = "tenant_id"
	canonicalIDKey contextKey = "canonical_id"
	providerKeyKey contextKey = "provider_key"
)

// Logger is the package-level structured logger. Callers should prefer
// FromContext(ctx) to automatically attach the request trace ID.
var Logger *slog.Logger

func init() {
	Setup(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

// Setup (re-)initialises the package logger. level is one of debug/info/warn/error
// (default info). format is "json" (default) or "text".
func Setup(level, format string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	Logger = slog.New(WithRedaction(handler))
	slog.SetDefault(Logger)
}

// NewTraceID generates a random 16-byte hex trace ID.
func NewTraceID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// WithTraceID stores a trace ID in the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext retrieves the trace ID stored in the context.
func TraceIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}

// WithTenant stores the tenant ID in the context.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// WithCanonicalModel stores the resolved canonical model key in the context.
func WithCanonicalModel(ctx context.Context, canonical string) context.Context {
	return context.WithValue(ctx, canonicalIDKey, canonical)
}

// WithProviderKey stores the selected provider's key in the context.
func WithProviderKey(ctx context.Context, providerKey string) context.Context {
	return context.WithValue(ctx, providerKeyKey, providerKey)
}

// FromContext returns a *slog.Logger pre-annotated with every request-scoped
// identifier present in ctx: trace_id, tenant_id, canonical_id, provider_key.
// Fields absent from the context are omitted rather than logged empty.
func FromContext(ctx context.Context) *slog.Logger {
	log := Logger
	if id := TraceIDFromContext(ctx); id != "" {
		log = log.With("trace_id", id)
	}
	if v, ok := ctx.Value(tenantIDKey).(string); ok && v != "" {
		log = log.With("tenant_id", v)
	}
	if v, ok := ctx.Value(canonicalIDKey).(string); ok && v != "" {
		log = log.With("canonical_id", v)
	}
	if v, ok := ctx.Value(providerKeyKey).(string); ok && v != "" {
		log = log.With("provider_key", v)
	}
	return log
}

// Middleware injects a trace ID into every request context and echoes it in
// the X-Request-ID response header. Uses the incoming X-Request-ID header if
// present, otherwise generates a new one.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Request-ID")
		if traceID == "" {
			traceID = NewTraceID()
		}
		ctx := WithTraceID(r.Context(), traceID)
		w.Header().Set("X-Request-ID", traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
