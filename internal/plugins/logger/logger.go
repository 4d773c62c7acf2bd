// Package logger provides a request-logger plugin that records each LLM
// request and response to standard output and, optionally, to a usage
// sink. Register it with a blank import:
//
//	_ "github.com/ferro-labs/inference-gateway/internal/plugins/logger"
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ferro-labs/inference-gateway/internal/logging"
	"github.com/ferro-labs/inference-gateway/internal/usage"
	"github.com/ferro-labs/inference-gateway/plugin"
)

func init() {
	plugin.RegisterFactory("request-logger", func() plugin.Plugin {
		return &RequestLogger{}
	})
}

// RequestLogger is a logging plugin that emits structured log entries
// for every request and response flowing through the gateway.
type RequestLogger struct {
	logLevel slog.Level
	sink     usage.Sink
}

// Name returns the plugin identifier.
func (l *RequestLogger) Name() string { return "request-logger" }

// Type returns the plugin lifecycle hook type.
func (l *RequestLogger) Type() plugin.PluginType { return plugin.TypeLogging }

// Init configures the plugin from the provided options map.
func (l *RequestLogger) Init(config map[string]interface{}) error {
	l.logLevel = slog.LevelInfo
	l.sink = usage.NoopSink{}
	if level, ok := config["level"].(string); ok {
		switch level {
		case "debug":
			l.logLevel = slog.LevelDebug
		case "warn":
			l.logLevel = slog.LevelWarn
		case "error":
			l.logLevel = slog.LevelError
		}
	}

	persist, _ := config["persist"].(bool)
	if persist {
		backend, _ := config["backend"].(string)
		dsn, _ := config["dsn"].(string)
		switch strings.ToLower(strings.TrimSpace(backend)) {
		case "sqlite", "":
			sink, err := usage.NewSQLiteSink(dsn)
			if err != nil {
				return err
			}
			l.sink = sink
		case "postgres", "postgresql":
			sink, err := usage.NewPostgresSink(dsn)
			if err != nil {
				return err
			}
			l.sink = sink
		case "ring":
			l.sink = usage.NewRingBufferSink(1000)
		default:
			return fmt.Errorf("unsupported usage sink backend %q", backend)
		}
	}
	return nil
}

// Execute runs the plugin logic for the current request context.
func (l *RequestLogger) Execute(ctx context.Context, pctx *plugin.Context) error {
	log := logging.FromContext(ctx)
	traceID := logging.TraceIDFromContext(ctx)

	if pctx.Request != nil && pctx.Response == nil && pctx.Error == nil {
		now := time.Now().UTC()
		log.Log(ctx, l.logLevel, "gateway request",
			"model", pctx.Request.Model,
			"messages", len(pctx.Request.Messages),
			"stream", pctx.Request.Stream,
			"timestamp", now.Format(time.RFC3339),
		)
		return nil
	}

	if pctx.Response != nil {
		now := time.Now().UTC()
		log.Log(ctx, l.logLevel, "gateway response",
			"model", pctx.Response.Model,
			"provider", pctx.Response.Provider,
			"prompt_tokens", pctx.Response.Usage.PromptTokens,
			"completion_tokens", pctx.Response.Usage.CompletionTokens,
			"total_tokens", pctx.Response.Usage.TotalTokens,
			"choices", len(pctx.Response.Choices),
			"timestamp", now.Format(time.RFC3339),
		)
		_ = l.sink.Record(ctx, usage.Record{
			TraceID:          traceID,
			CanonicalModel:   pctx.Response.Model,
			ProviderKey:      pctx.Response.Provider,
			PromptTokens:     pctx.Response.Usage.PromptTokens,
			CompletionTokens: pctx.Response.Usage.CompletionTokens,
			TotalTokens:      pctx.Response.Usage.TotalTokens,
			StatusCode:       200,
			CreatedAt:        now,
		})
	}

	if pctx.Error != nil {
		now := time.Now().UTC()
		model := ""
		if pctx.Request != nil {
			model = pctx.Request.Model
		}
		log.Log(ctx, slog.LevelError, "gateway error",
			"model", model,
			"error", pctx.Error.Error(),
			"timestamp", now.Format(time.RFC3339),
		)
		_ = l.sink.Record(ctx, usage.Record{
			TraceID:        traceID,
			CanonicalModel: model,
			StatusCode:     500,
			ErrorMessage:   pctx.Error.Error(),
			CreatedAt:      now,
		})
	}

	return nil
}
