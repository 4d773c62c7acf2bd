package gateway

import "time"

// Config is the gateway's full configuration: the set of upstream
// providers, the canonical models they serve, the aliases and combos
// clients address, and the cross-cutting health defaults.
type Config struct {
	Providers       []ProviderConfig `json:"providers" yaml:"providers"`
	CanonicalModels []CanonicalModel `json:"canonical_models" yaml:"canonical_models"`
	Aliases         []Alias          `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Combos          []Combo          `json:"combos,omitempty" yaml:"combos,omitempty"`
	Health          HealthConfig     `json:"health,omitempty" yaml:"health,omitempty"`
	Plugins         []PluginConfig   `json:"plugins,omitempty" yaml:"plugins,omitempty"`
}

// ProviderKind identifies which Provider Adapter handles a provider's
// requests. It is an open string rather than a closed enum, but
// ValidateConfig accepts only the kinds declared below, and cmd/gatewayd
// builds adapters only for those kinds.
type ProviderKind string

// Provider kinds implemented by this codebase.
const (
	KindOpenAI      ProviderKind = "openai"
	KindGroq        ProviderKind = "groq"
	KindTogether    ProviderKind = "together"
	KindCohere      ProviderKind = "cohere"
	KindCloudflare  ProviderKind = "cloudflare"
	KindDeepInfra   ProviderKind = "deepinfra"
	KindGemini      ProviderKind = "gemini"
	KindAntigravity ProviderKind = "antigravity"
	KindBedrock     ProviderKind = "bedrock"
)

// ProviderConfig describes one upstream account a tenant can be routed to.
type ProviderConfig struct {
	// Key uniquely identifies this provider within the gateway (e.g.
	// "acme-openai-prod"). Used in routing decisions, health/quota keys,
	// and the X-Provider-Selected response header.
	Key  string       `json:"key" yaml:"key"`
	Kind ProviderKind `json:"kind" yaml:"kind"`
	// SecretRef names the credential this provider authenticates with, to
	// be resolved via a SecretProvider rather than embedded in config.
	SecretRef string `json:"secret_ref" yaml:"secret_ref"`
	BaseURL   string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	// Tier is a coarse quality/cost band used as a tie-break in ranking
	// (lower sorts first).
	Tier int `json:"tier" yaml:"tier"`
	// FreeTier marks a provider whose usage doesn't bill the tenant,
	// ranked ahead of paid providers at equal cost.
	FreeTier bool `json:"free_tier,omitempty" yaml:"free_tier,omitempty"`
	// Models lists the upstream model IDs this provider serves.
	Models     []string   `json:"models" yaml:"models"`
	RateLimits RateLimits `json:"rate_limits,omitempty" yaml:"rate_limits,omitempty"`
}

// RateLimits bounds requests-per-minute and tokens-per-minute for a
// provider. Zero means unlimited.
type RateLimits struct {
	RPM int `json:"rpm,omitempty" yaml:"rpm,omitempty"`
	TPM int `json:"tpm,omitempty" yaml:"tpm,omitempty"`
}

// CanonicalModel is the model identity clients request, independent of any
// one provider's naming for it. The Resolver maps a canonical model to the
// set of (provider, upstream model ID) pairs that can serve it.
type CanonicalModel struct {
	Key string `json:"key" yaml:"key"`
	// Providers maps a ProviderConfig.Key to the upstream model ID that
	// provider should be called with to serve this canonical model.
	Providers map[string]string `json:"providers" yaml:"providers"`
}

// Alias is a client-facing shorthand that expands to an ordered list of
// canonical models, tried in turn exactly like a Combo, e.g. "fast" ->
// ["llama-3.3-70b"]. TenantID scopes the alias to one tenant; empty means
// every tenant can address it.
type Alias struct {
	Name       string   `json:"name" yaml:"name"`
	TenantID   string   `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty"`
	Canonicals []string `json:"canonicals" yaml:"canonicals"`
}

// Combo resolves a client-facing name to an ordered list of canonical
// models, used when a tenant wants automatic fallback across model
// families rather than just across providers of a single model. TenantID
// scopes the combo to one tenant; empty means every tenant can address it.
type Combo struct {
	Name       string   `json:"name" yaml:"name"`
	TenantID   string   `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty"`
	Canonicals []string `json:"canonicals" yaml:"canonicals"`
}

// HealthConfig tunes the circuit breaker shared by every provider.
type HealthConfig struct {
	WindowSize       int           `json:"window_size,omitempty" yaml:"window_size,omitempty"`
	SuccessThreshold int           `json:"success_threshold,omitempty" yaml:"success_threshold,omitempty"`
	BaseBackoff      time.Duration `json:"base_backoff,omitempty" yaml:"base_backoff,omitempty"`
}

// PluginConfig holds plugin configuration, unchanged from the ambient
// before/after/on-error hook scaffolding.
type PluginConfig struct {
	Name    string                 `json:"name" yaml:"name"`
	Type    string                 `json:"type" yaml:"type"`
	Stage   string                 `json:"stage" yaml:"stage"`
	Enabled bool                   `json:"enabled" yaml:"enabled"`
	Config  map[string]interface{} `json:"config" yaml:"config"`
}
