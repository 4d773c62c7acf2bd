// Package gateway implements the Inference Gateway's Request Pipeline: an
// OpenAI-compatible chat-completion request comes in, the Resolver expands
// the requested model into candidate (provider, upstream model) pairs, the
// Router ranks the healthy ones, and the pipeline attempts each in turn
// until one succeeds, recording usage and cost along the way.
//
// Create a Gateway with New, register provider adapters with
// RegisterProvider, then call Route or RouteStream per request. Config is
// loaded from YAML or JSON with LoadConfig and validated with ValidateConfig.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ferro-labs/inference-gateway/internal/circuitbreaker"
	"github.com/ferro-labs/inference-gateway/internal/cost"
	"github.com/ferro-labs/inference-gateway/internal/gwerr"
	"github.com/ferro-labs/inference-gateway/internal/health"
	"github.com/ferro-labs/inference-gateway/internal/kvstore"
	"github.com/ferro-labs/inference-gateway/internal/logging"
	"github.com/ferro-labs/inference-gateway/internal/metrics"
	"github.com/ferro-labs/inference-gateway/internal/quota"
	"github.com/ferro-labs/inference-gateway/internal/resolver"
	"github.com/ferro-labs/inference-gateway/internal/router"
	"github.com/ferro-labs/inference-gateway/internal/schema"
	"github.com/ferro-labs/inference-gateway/internal/secrets"
	"github.com/ferro-labs/inference-gateway/internal/usage"
	"github.com/ferro-labs/inference-gateway/plugin"
	"github.com/ferro-labs/inference-gateway/providers"
)

// EventHookFunc is called asynchronously after a gateway event (request
// completed or failed).
type EventHookFunc func(ctx context.Context, subject string, data map[string]interface{})

// Event subject constants used when invoking gateway hooks.
const (
	SubjectRequestCompleted = "gateway.request.completed"
	SubjectRequestFailed    = "gateway.request.failed"
)

// Gateway is the main entry point for routing chat-completion requests.
type Gateway struct {
	mu     sync.RWMutex
	config Config

	catalog   cost.Catalog
	providers map[string]providers.Provider // keyed by ProviderConfig.Key

	secretProvider secrets.SecretProvider
	health         *health.Store
	quota          *quota.Tracker
	router         *router.Router
	resolver       *resolver.Resolver

	usageSink usage.Sink
	plugins   *plugin.Manager
	hooks     []EventHookFunc

	discoveredModels map[string][]providers.ModelInfo
}

// New creates a Gateway from cfg. kv backs the health store and quota
// tracker; both a kvstore.NewMemoryStore and a kvstore.NewRedisStore are
// valid, the latter being required for multi-replica deployments so health
// and quota state is shared. secretProvider resolves each provider's
// SecretRef; usageSink may be nil, in which case usage.NoopSink is used.
func New(cfg Config, kv kvstore.KVStore, secretProvider secrets.SecretProvider, usageSink usage.Sink) (*Gateway, error) {
	catalog, err := cost.Load()
	if err != nil {
		catalog = cost.Catalog{}
	}
	if usageSink == nil {
		usageSink = usage.NoopSink{}
	}

	healthCfg := health.Config{
		WindowSize:       cfg.Health.WindowSize,
		SuccessThreshold: cfg.Health.SuccessThreshold,
		BaseBackoff:      cfg.Health.BaseBackoff,
	}

	g := &Gateway{
		config:           cfg,
		catalog:          catalog,
		providers:        make(map[string]providers.Provider),
		secretProvider:   secretProvider,
		health:           health.NewStore(kv, healthCfg),
		quota:            quota.NewTracker(kv),
		usageSink:        usageSink,
		plugins:          plugin.NewManager(),
		discoveredModels: make(map[string][]providers.ModelInfo),
	}
	g.router = router.New(g.health, g.quota)
	g.rebuildResolverLocked()
	return g, nil
}

// Catalog returns a shallow copy of the loaded model cost catalog.
func (g *Gateway) Catalog() cost.Catalog {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cp := make(cost.Catalog, len(g.catalog))
	for k, v := range g.catalog {
		cp[k] = v
	}
	return cp
}

// RegisterProvider registers a provider adapter under the given
// ProviderConfig.Key.
func (g *Gateway) RegisterProvider(key string, p providers.Provider) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.providers[key] = p
}

// RegisterPlugin registers a plugin at the given lifecycle stage.
func (g *Gateway) RegisterPlugin(stage plugin.Stage, p plugin.Plugin) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.plugins.Register(stage, p)
}

// AddHook registers an EventHookFunc invoked asynchronously on each
// completed or failed request.
func (g *Gateway) AddHook(fn EventHookFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hooks = append(g.hooks, fn)
}

// LoadPlugins initializes and registers plugins from the gateway configuration.
func (g *Gateway) LoadPlugins() error {
	g.mu.RLock()
	pluginConfigs := g.config.Plugins
	g.mu.RUnlock()

	for _, pc := range pluginConfigs {
		if !pc.Enabled {
			continue
		}
		factory, ok := plugin.GetFactory(pc.Name)
		if !ok {
			return fmt.Errorf("unknown plugin: %s", pc.Name)
		}
		p := factory()
		if err := p.Init(pc.Config); err != nil {
			return fmt.Errorf("plugin %s init failed: %w", pc.Name, err)
		}
		stage := plugin.Stage(pc.Stage)
		if err := g.RegisterPlugin(stage, p); err != nil {
			return fmt.Errorf("plugin %s register failed: %w", pc.Name, err)
		}
	}
	return nil
}

// ReloadConfig validates and applies a new configuration, rebuilding the
// resolver against the new canonical models, aliases, and combos.
func (g *Gateway) ReloadConfig(cfg Config) error {
	if err := ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.config = cfg
	g.rebuildResolverLocked()
	return nil
}

// GetConfig returns a copy of the current configuration.
func (g *Gateway) GetConfig() Config {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.config
}

// enabledProviders satisfies resolver.ProviderLookup.
type enabledProviders map[string]bool

func (e enabledProviders) Enabled(providerKey string) bool { return e[providerKey] }

// rebuildResolverLocked rebuilds the resolver from g.config. Callers must
// hold g.mu for writing.
func (g *Gateway) rebuildResolverLocked() {
	canonicalModels := make(map[string]map[string]string, len(g.config.CanonicalModels))
	for _, cm := range g.config.CanonicalModels {
		canonicalModels[cm.Key] = cm.Providers
	}
	aliases := make([]resolver.AliasDef, 0, len(g.config.Aliases))
	for _, a := range g.config.Aliases {
		aliases = append(aliases, resolver.AliasDef{Name: a.Name, TenantID: a.TenantID, Canonicals: a.Canonicals})
	}
	combos := make([]resolver.ComboDef, 0, len(g.config.Combos))
	for _, c := range g.config.Combos {
		combos = append(combos, resolver.ComboDef{Name: c.Name, TenantID: c.TenantID, Canonicals: c.Canonicals})
	}

	enabled := make(enabledProviders, len(g.config.Providers))
	for _, p := range g.config.Providers {
		enabled[p.Key] = p.Enabled
	}

	g.resolver = resolver.New(canonicalModels, aliases, combos, enabled)
}

// providerConfig looks up a provider's static config by key.
func (g *Gateway) providerConfig(key string) (ProviderConfig, bool) {
	for _, p := range g.config.Providers {
		if p.Key == key {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// candidateAttributes builds the Router's ranking input for one resolved
// candidate, pulling cost and tier information from the cost catalog and
// provider config.
func (g *Gateway) candidateAttributes(c resolver.Candidate) router.Attributes {
	pc, _ := g.providerConfig(c.ProviderKey)
	attrs := router.Attributes{
		ProviderKey:   c.ProviderKey,
		UpstreamModel: c.UpstreamModel,
		FreeTier:      pc.FreeTier,
		Tier:          pc.Tier,
		Limits:        quota.Limits{RPM: pc.RateLimits.RPM, TPM: pc.RateLimits.TPM},
	}
	if m, ok := g.catalog.Get(string(pc.Kind) + "/" + c.UpstreamModel); ok {
		if m.Pricing.InputPerMTokens != nil {
			attrs.EstimatedCost += *m.Pricing.InputPerMTokens
		}
		if m.Pricing.OutputPerMTokens != nil {
			attrs.EstimatedCost += *m.Pricing.OutputPerMTokens
		}
	}
	return attrs
}

// attempt is one ranked candidate paired with the provider adapter and
// rate limits needed to try it.
type attempt struct {
	providerKey   string
	upstreamModel string
	canonical     string
	provider      providers.Provider
	limits        quota.Limits
}

// planAttempts resolves req.Model on behalf of tenantID, ranks the
// candidates, and joins each surviving one to its registered provider
// adapter. Candidates whose provider adapter isn't registered are dropped
// with a warning rather than failing the whole request. If the Router had
// to bypass health/quota filtering to avoid returning an empty list, the
// attempt is logged as degraded — pipeline behavior doesn't otherwise
// change, since a degraded attempt can still fail and fall back normally.
func (g *Gateway) planAttempts(ctx context.Context, tenantID, model string) ([]attempt, bool, error) {
	g.mu.RLock()
	res := g.resolver
	g.mu.RUnlock()

	candidates, err := res.Resolve(model, tenantID)
	if err != nil {
		if errors.Is(err, resolver.ErrCanonicalNotFound) {
			return nil, false, gwerr.Wrap(gwerr.KindModelNotFound, fmt.Sprintf("model %q not found", model), err)
		}
		if errors.Is(err, resolver.ErrNoEnabledProvider) {
			return nil, false, gwerr.Wrap(gwerr.KindUpstreamTransient, fmt.Sprintf("no enabled provider for model %q", model), err)
		}
		return nil, false, gwerr.Wrap(gwerr.KindInternal, "resolving model", err)
	}

	attrs := make([]router.Attributes, len(candidates))
	byKey := make(map[string]resolver.Candidate, len(candidates))
	for i, c := range candidates {
		attrs[i] = g.candidateAttributes(c)
		byKey[c.ProviderKey] = c
	}

	result := g.router.Rank(ctx, attrs)
	if result.Degraded {
		logging.FromContext(ctx).Warn("router degraded: serving without health/quota filters", "model", model, "tenant_id", tenantID)
	}

	// Regroup by canonical model in chain order (the Resolver lists each
	// member's candidates contiguously), keeping the Router's order within a
	// group, so an alias or combo tries its members in turn.
	ordered := make([]router.Attributes, 0, len(result.Candidates))
	for i, c := range candidates {
		if i > 0 && candidates[i-1].Canonical == c.Canonical {
			continue
		}
		for _, a := range result.Candidates {
			if byKey[a.ProviderKey].Canonical == c.Canonical {
				ordered = append(ordered, a)
			}
		}
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]attempt, 0, len(result.Candidates))
	for _, a := range ordered {
		p, ok := g.providers[a.ProviderKey]
		if !ok {
			logging.FromContext(ctx).Warn("provider adapter not registered, skipping", "provider_key", a.ProviderKey)
			continue
		}
		c := byKey[a.ProviderKey]
		out = append(out, attempt{
			providerKey:   a.ProviderKey,
			upstreamModel: a.UpstreamModel,
			canonical:     c.Canonical,
			provider:      p,
			limits:        a.Limits,
		})
	}
	if len(out) == 0 {
		return nil, false, gwerr.New(gwerr.KindUpstreamTransient, fmt.Sprintf("no usable provider for model %q after health/registration filtering", model))
	}
	return out, result.Degraded, nil
}

// Route runs the full non-streaming Request Pipeline: resolve, rank,
// attempt in order, record usage, return the first success.
func (g *Gateway) Route(ctx context.Context, tenantID string, req providers.Request) (*providers.Response, error) {
	start := time.Now()
	ctx = logging.WithTenant(ctx, tenantID)
	log := logging.FromContext(ctx)

	attempts, degraded, err := g.planAttempts(ctx, tenantID, req.Model)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("", req.Model, "error").Inc()
		return nil, err
	}

	pctx := plugin.NewContext(&req)
	if pctx.Metadata == nil {
		pctx.Metadata = map[string]interface{}{}
	}
	pctx.Metadata["tenant_id"] = tenantID
	if g.plugins.HasPlugins() {
		if err := g.plugins.RunBefore(ctx, pctx); err != nil {
			metrics.RequestsTotal.WithLabelValues("", req.Model, "rejected").Inc()
			return nil, err
		}
	}
	req = *pctx.Request

	if pctx.Skip && pctx.Response != nil {
		metrics.RequestsTotal.WithLabelValues("", req.Model, "cache_hit").Inc()
		return pctx.Response, nil
	}

	var lastErr error
	lastKind := gwerr.KindUpstreamTransient
	var details []gwerr.CandidateDetail
	for _, a := range attempts {
		ctx := logging.WithCanonicalModel(logging.WithProviderKey(ctx, a.providerKey), a.canonical)

		qr, qerr := g.quota.CheckAndReserve(ctx, a.providerKey, a.limits, estimateTokens(req))
		if qerr == nil && !qr.Allowed {
			metrics.QuotaRejections.WithLabelValues(tenantID, a.providerKey, "rpm").Inc()
			lastErr = fmt.Errorf("provider %s: quota exceeded, retry after %s", a.providerKey, qr.RetryAfter)
			lastKind = gwerr.KindUpstreamRateLimit
			details = append(details, gwerr.CandidateDetail{ProviderKey: a.providerKey, Error: "quota exceeded"})
			continue
		}

		attemptReq := req
		attemptReq.Model = a.upstreamModel
		resp, err := a.provider.Complete(ctx, attemptReq)
		if err != nil {
			g.health.RecordFailure(ctx, a.providerKey)
			metrics.ProviderErrors.WithLabelValues(a.providerKey, "provider_error").Inc()
			lastErr = fmt.Errorf("provider %s: %w", a.providerKey, err)
			lastKind = classifyProviderError(err)
			details = append(details, gwerr.CandidateDetail{ProviderKey: a.providerKey, Error: err.Error()})
			continue
		}

		g.health.RecordSuccess(ctx, a.providerKey)
		resp.Provider = a.providerKey
		resp.Degraded = degraded
		if resp.Object == "" {
			resp.Object = "chat.completion"
		}
		if resp.Created == 0 {
			resp.Created = time.Now().Unix()
		}

		// A response_format.json_schema mismatch is a content problem, not
		// a transport one: the provider already succeeded, so it is never
		// retried against the next candidate, only bubbled to the client.
		if schemaErr := validateResponseSchema(req, resp); schemaErr != nil {
			metrics.SchemaValidationFailures.WithLabelValues(a.providerKey, a.upstreamModel).Inc()
			metrics.RequestsTotal.WithLabelValues(a.providerKey, a.upstreamModel, "content_filtered").Inc()
			_ = g.quota.RecordUsage(ctx, a.providerKey, resp.Usage.TotalTokens)
			log.Warn("completion rejected: response_format schema mismatch", "provider", a.providerKey, "upstream_model", a.upstreamModel, "error", schemaErr)
			return nil, gwerr.Wrap(gwerr.KindContentFiltered, "completion content did not match requested response_format schema", schemaErr)
		}

		if g.plugins.HasPlugins() {
			pctx.Response = resp
			_ = g.plugins.RunAfter(ctx, pctx)
		}

		latency := time.Since(start)
		g.finishSuccess(ctx, tenantID, a, req, resp, latency, log)
		return resp, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no provider attempt succeeded")
	}
	finalErr := gwerr.WithDetails(lastKind, "all provider attempts failed", lastErr, details)
	pctx.Error = finalErr
	g.plugins.RunOnError(ctx, pctx)
	metrics.RequestsTotal.WithLabelValues("", req.Model, "error").Inc()
	g.recordUsageAsync(ctx, usage.Record{
		TraceID:        logging.TraceIDFromContext(ctx),
		TenantID:       tenantID,
		CanonicalModel: req.Model,
		StatusCode:     gwerr.MapStatus(finalErr.Kind),
		ErrorMessage:   finalErr.Error(),
		LatencyMS:      time.Since(start).Milliseconds(),
		CreatedAt:      time.Now().UTC(),
	})
	g.publishEvent(ctx, SubjectRequestFailed, map[string]interface{}{
		"trace_id":   logging.TraceIDFromContext(ctx),
		"model":      req.Model,
		"error":      finalErr.Error(),
		"status":     gwerr.MapStatus(finalErr.Kind),
		"latency_ms": time.Since(start).Milliseconds(),
		"timestamp":  time.Now(),
	})
	return nil, finalErr
}

// estimateTokens returns a rough upper-bound token estimate for quota
// reservation, refined by RecordUsage once the provider reports real usage.
func estimateTokens(req providers.Request) int {
	chars := 0
	for _, m := range req.Messages {
		chars += len(m.Content)
	}
	estimate := chars/4 + 1
	if req.MaxTokens != nil {
		estimate += *req.MaxTokens
	} else if req.MaxCompletionTokens != nil {
		estimate += *req.MaxCompletionTokens
	}
	return estimate
}

// classifyProviderError maps a provider adapter's error to the gateway's
// error taxonomy. A providers.APIError already carries the Kind its
// upstream status code classified to; anything else (a network error, a
// context cancellation) is reported as a transient upstream failure since
// the pipeline already tried the next candidate.
func classifyProviderError(err error) gwerr.Kind {
	var apiErr *providers.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return gwerr.KindUpstreamTransient
}

// validateResponseSchema checks a completion's content against a client-
// supplied response_format.json_schema, when present. Returns nil when no
// schema was requested or the content matches; the caller decides how to
// react to a mismatch.
func validateResponseSchema(req providers.Request, resp *providers.Response) error {
	if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_schema" || len(req.ResponseFormat.JSONSchema) == 0 {
		return nil
	}
	if len(resp.Choices) == 0 {
		return nil
	}
	return schema.Validate(req.ResponseFormat.JSONSchema, resp.Choices[0].Message.Content)
}

func (g *Gateway) finishSuccess(ctx context.Context, tenantID string, a attempt, req providers.Request, resp *providers.Response, latency time.Duration, log *slog.Logger) {
	_ = g.quota.RecordUsage(ctx, a.providerKey, resp.Usage.TotalTokens)

	g.mu.RLock()
	catalog := g.catalog
	pc, _ := g.providerConfig(a.providerKey)
	g.mu.RUnlock()

	result := cost.Calculate(catalog, string(pc.Kind)+"/"+a.upstreamModel, cost.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		ReasoningTokens:  resp.Usage.ReasoningTokens,
		CacheReadTokens:  resp.Usage.CacheReadTokens,
		CacheWriteTokens: resp.Usage.CacheWriteTokens,
	})

	metrics.RequestDuration.WithLabelValues(a.providerKey, a.upstreamModel).Observe(latency.Seconds())
	metrics.RequestsTotal.WithLabelValues(a.providerKey, a.upstreamModel, "success").Inc()
	metrics.TokensInput.WithLabelValues(a.providerKey, a.upstreamModel).Add(float64(resp.Usage.PromptTokens))
	metrics.TokensOutput.WithLabelValues(a.providerKey, a.upstreamModel).Add(float64(resp.Usage.CompletionTokens))
	if result.TotalUSD > 0 {
		metrics.RequestCostUSD.WithLabelValues(a.providerKey, a.upstreamModel).Add(result.TotalUSD)
	}

	log.Info("request completed",
		"model", req.Model,
		"provider", a.providerKey,
		"upstream_model", a.upstreamModel,
		"latency_ms", latency.Milliseconds(),
		"tokens_in", resp.Usage.PromptTokens,
		"tokens_out", resp.Usage.CompletionTokens,
		"cost_usd", result.TotalUSD,
	)

	traceID := logging.TraceIDFromContext(ctx)
	g.recordUsageAsync(ctx, usage.Record{
		TraceID:          traceID,
		TenantID:         tenantID,
		CanonicalModel:   req.Model,
		ProviderKey:      a.providerKey,
		UpstreamModel:    a.upstreamModel,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		CostUSD:          result.TotalUSD,
		StatusCode:       200,
		LatencyMS:        latency.Milliseconds(),
		CreatedAt:        time.Now().UTC(),
	})

	g.publishEvent(ctx, SubjectRequestCompleted, map[string]interface{}{
		"trace_id":   traceID,
		"provider":   a.providerKey,
		"model":      req.Model,
		"status":     200,
		"latency_ms": latency.Milliseconds(),
		"tokens_in":  resp.Usage.PromptTokens,
		"tokens_out": resp.Usage.CompletionTokens,
		"cost_usd":   result.TotalUSD,
		"timestamp":  time.Now(),
	})
}

// recordUsageAsync invokes the usage sink in a background goroutine so a
// slow sink never adds latency to the response the caller already has.
func (g *Gateway) recordUsageAsync(ctx context.Context, r usage.Record) {
	go func() {
		if err := g.usageSink.Record(context.WithoutCancel(ctx), r); err != nil {
			logging.Logger.Warn("usage sink write failed", "error", err.Error())
		}
	}()
}

// publishEvent calls all registered hooks asynchronously.
func (g *Gateway) publishEvent(ctx context.Context, subject string, data map[string]interface{}) {
	g.mu.RLock()
	hooks := make([]EventHookFunc, len(g.hooks))
	copy(hooks, g.hooks)
	g.mu.RUnlock()

	for _, h := range hooks {
		fn := h
		go fn(context.WithoutCancel(ctx), subject, data)
	}
}

// RouteStream runs the streaming Request Pipeline. Once the first chunk of
// a provider's stream has been forwarded (firstByteSent), the pipeline
// commits to that provider: a mid-stream error is surfaced to the caller as
// a terminal StreamChunk rather than triggering a fallback to the next
// candidate, since the client has already started rendering a response.
func (g *Gateway) RouteStream(ctx context.Context, tenantID string, req providers.Request) (<-chan providers.StreamChunk, error) {
	start := time.Now()
	ctx = logging.WithTenant(ctx, tenantID)
	log := logging.FromContext(ctx)

	attempts, degraded, err := g.planAttempts(ctx, tenantID, req.Model)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("", req.Model, "error").Inc()
		return nil, err
	}

	pctx := plugin.NewContext(&req)
	if pctx.Metadata == nil {
		pctx.Metadata = map[string]interface{}{}
	}
	pctx.Metadata["tenant_id"] = tenantID
	if g.plugins.HasPlugins() {
		if err := g.plugins.RunBefore(ctx, pctx); err != nil {
			metrics.RequestsTotal.WithLabelValues("", req.Model, "rejected").Inc()
			return nil, err
		}
	}
	req = *pctx.Request

	out := make(chan providers.StreamChunk)
	if pctx.Skip && pctx.Response != nil {
		metrics.RequestsTotal.WithLabelValues("", req.Model, "cache_hit").Inc()
		go emitCachedStream(pctx.Response, out)
		return out, nil
	}
	go g.runStreamAttempts(ctx, tenantID, req, attempts, degraded, start, log, out)
	return out, nil
}

// emitCachedStream replays a plugin-cached Response as a single terminal
// stream chunk, so a response-cache hit still satisfies a streaming caller.
func emitCachedStream(resp *providers.Response, out chan<- providers.StreamChunk) {
	defer close(out)
	chunk := providers.StreamChunk{ID: resp.ID, Object: "chat.completion.chunk", Created: resp.Created, Model: resp.Model}
	for _, c := range resp.Choices {
		chunk.Choices = append(chunk.Choices, providers.StreamChoice{
			Index:        c.Index,
			Delta:        providers.MessageDelta{Role: c.Message.Role, Content: c.Message.Content},
			FinishReason: c.FinishReason,
		})
	}
	out <- chunk
}

func (g *Gateway) runStreamAttempts(ctx context.Context, tenantID string, req providers.Request, attempts []attempt, degraded bool, start time.Time, log *slog.Logger, out chan<- providers.StreamChunk) {
	defer close(out)

	var lastErr error
	lastKind := gwerr.KindUpstreamTransient
	for _, a := range attempts {
		sp, ok := a.provider.(providers.StreamProvider)
		if !ok {
			lastErr = fmt.Errorf("provider %s does not support streaming", a.providerKey)
			continue
		}

		ctx := logging.WithCanonicalModel(logging.WithProviderKey(ctx, a.providerKey), a.canonical)

		qr, qerr := g.quota.CheckAndReserve(ctx, a.providerKey, a.limits, estimateTokens(req))
		if qerr == nil && !qr.Allowed {
			metrics.QuotaRejections.WithLabelValues(tenantID, a.providerKey, "rpm").Inc()
			lastErr = fmt.Errorf("provider %s: quota exceeded", a.providerKey)
			lastKind = gwerr.KindUpstreamRateLimit
			continue
		}

		attemptReq := req
		attemptReq.Model = a.upstreamModel
		ch, err := sp.CompleteStream(ctx, attemptReq)
		if err != nil {
			g.health.RecordFailure(ctx, a.providerKey)
			lastErr = fmt.Errorf("provider %s: %w", a.providerKey, err)
			lastKind = classifyProviderError(err)
			continue
		}

		firstByteSent := false
		var totalUsage providers.Usage
		var content strings.Builder
		for chunk := range ch {
			if chunk.Error != nil {
				if !firstByteSent {
					g.health.RecordFailure(ctx, a.providerKey)
					lastErr = fmt.Errorf("provider %s: %w", a.providerKey, chunk.Error)
					lastKind = classifyProviderError(chunk.Error)
					break
				}
				// Committed to this provider already: surface the error
				// to the client instead of falling back.
				out <- chunk
				g.health.RecordFailure(ctx, a.providerKey)
				log.Warn("stream failed after first byte", "provider", a.providerKey, "error", chunk.Error.Error())
				return
			}
			if !firstByteSent {
				chunk.Degraded = degraded
			}
			firstByteSent = true
			for _, c := range chunk.Choices {
				content.WriteString(c.Delta.Content)
			}
			out <- chunk
		}

		if !firstByteSent {
			// Provider returned a channel but closed it without ever
			// sending a chunk or an error; treat as a soft failure and
			// fall back.
			if lastErr == nil {
				lastErr = fmt.Errorf("provider %s: stream closed with no data", a.providerKey)
			}
			continue
		}

		g.health.RecordSuccess(ctx, a.providerKey)
		_ = g.quota.RecordUsage(ctx, a.providerKey, totalUsage.TotalTokens)

		// The stream already committed bytes to the client, so a schema
		// mismatch here can only be logged, never bubbled as an error.
		if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_schema" && len(req.ResponseFormat.JSONSchema) > 0 {
			if err := schema.Validate(req.ResponseFormat.JSONSchema, content.String()); err != nil {
				metrics.SchemaValidationFailures.WithLabelValues(a.providerKey, a.upstreamModel).Inc()
				log.Warn("streamed completion did not match response_format schema", "provider", a.providerKey, "error", err)
			}
		}

		latency := time.Since(start)
		log.Info("stream completed", "provider", a.providerKey, "model", req.Model, "latency_ms", latency.Milliseconds())
		metrics.RequestsTotal.WithLabelValues(a.providerKey, a.upstreamModel, "success").Inc()
		g.recordUsageAsync(ctx, usage.Record{
			TraceID:        logging.TraceIDFromContext(ctx),
			TenantID:       tenantID,
			CanonicalModel: req.Model,
			ProviderKey:    a.providerKey,
			UpstreamModel:  a.upstreamModel,
			StatusCode:     200,
			LatencyMS:      latency.Milliseconds(),
			CreatedAt:      time.Now().UTC(),
		})
		return
	}

	if lastErr == nil {
		lastErr = errors.New("no streaming provider attempt succeeded")
	}
	out <- providers.StreamChunk{Error: gwerr.Wrap(lastKind, "all streaming attempts failed", lastErr)}
	metrics.RequestsTotal.WithLabelValues("", req.Model, "error").Inc()
}

// ── Provider registry accessors ──────────────────────────────────────────────

// AllModels returns ModelInfo from all registered providers. If
// auto-discovery has run for a provider, discovered models take precedence
// over its static model list.
func (g *Gateway) AllModels() []providers.ModelInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var models []providers.ModelInfo
	for key, p := range g.providers {
		if discovered, ok := g.discoveredModels[key]; ok && len(discovered) > 0 {
			models = append(models, discovered...)
		} else {
			models = append(models, p.Models()...)
		}
	}
	return models
}

// GetProvider returns a registered provider by its config key.
func (g *Gateway) GetProvider(key string) (providers.Provider, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.providers[key]
	return p, ok
}

// ListProviders returns the config keys of all registered providers.
func (g *Gateway) ListProviders() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.providers))
	for name := range g.providers {
		names = append(names, name)
	}
	return names
}

// Readiness reports whether the gateway can currently serve traffic: at
// least one registered provider must not be circuit-open, and the shared
// KVStore backing health/quota state must be reachable. A KVStore outage
// still leaves health checks fail-open for individual requests (see
// health.Store.Allow), but readiness should reflect the degraded state
// rather than hide it from an orchestrator's restart/traffic decisions.
func (g *Gateway) Readiness(ctx context.Context) (ready bool, reasons []string) {
	g.mu.RLock()
	keys := make([]string, 0, len(g.providers))
	for key := range g.providers {
		keys = append(keys, key)
	}
	g.mu.RUnlock()

	if len(keys) == 0 {
		return false, []string{"no providers registered"}
	}

	availableProvider := false
	for _, key := range keys {
		if g.health.State(key) != circuitbreaker.StateOpen {
			availableProvider = true
			break
		}
	}
	if !availableProvider {
		reasons = append(reasons, "all registered providers are circuit-open")
	}

	if err := g.health.Ping(ctx); err != nil {
		reasons = append(reasons, fmt.Sprintf("kvstore unreachable: %v", err))
	}

	return len(reasons) == 0, reasons
}

// Close releases gateway resources. Provider adapters and the usage sink
// are responsible for their own cleanup if they implement io.Closer.
func (g *Gateway) Close() error {
	return nil
}

// ── Auto-discovery ───────────────────────────────────────────────────────────

// StartDiscovery periodically refreshes model lists from providers that
// implement providers.DiscoveryProvider. Runs until ctx is cancelled.
func (g *Gateway) StartDiscovery(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("StartDiscovery: interval must be greater than zero, got %v", interval)
	}
	log := logging.FromContext(ctx)
	go func() {
		g.runDiscovery(ctx, log)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.runDiscovery(ctx, log)
			}
		}
	}()
	return nil
}

func (g *Gateway) runDiscovery(ctx context.Context, log *slog.Logger) {
	g.mu.RLock()
	providersCopy := make(map[string]providers.Provider, len(g.providers))
	for k, v := range g.providers {
		providersCopy[k] = v
	}
	g.mu.RUnlock()

	for key, p := range providersCopy {
		dp, ok := p.(providers.DiscoveryProvider)
		if !ok {
			continue
		}
		models, err := dp.DiscoverModels(ctx)
		if err != nil {
			log.Error("model discovery failed", "provider", key, "error", err.Error())
			continue
		}
		g.mu.Lock()
		g.discoveredModels[key] = models
		g.mu.Unlock()
		log.Info("model discovery completed", "provider", key, "models", len(models))
	}
}
