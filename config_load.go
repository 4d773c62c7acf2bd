package gateway

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads and parses a config file from the given path.
// Supported formats: JSON (.json), YAML (.yaml, .yml).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}

	return &cfg, nil
}

var knownProviderKinds = map[ProviderKind]bool{
	KindOpenAI:      true,
	KindGroq:        true,
	KindTogether:    true,
	KindCohere:      true,
	KindCloudflare:  true,
	KindDeepInfra:   true,
	KindGemini:      true,
	KindAntigravity: true,
	KindBedrock:     true,
}

// ValidateConfig validates a Config for internal consistency: every provider
// has a known kind and a credential reference, every canonical model points
// only at providers that exist, and every alias/combo resolves to canonical
// models that exist. It does not attempt to reach any upstream.
func ValidateConfig(cfg Config) error {
	if len(cfg.Providers) == 0 {
		return fmt.Errorf("at least one provider is required")
	}
	if len(cfg.CanonicalModels) == 0 {
		return fmt.Errorf("at least one canonical model is required")
	}

	providerKeys := make(map[string]bool, len(cfg.Providers))
	enabledCount := 0
	for _, p := range cfg.Providers {
		if p.Key == "" {
			return fmt.Errorf("provider with empty key")
		}
		if providerKeys[p.Key] {
			return fmt.Errorf("duplicate provider key %q", p.Key)
		}
		providerKeys[p.Key] = true

		if !knownProviderKinds[p.Kind] {
			return fmt.Errorf("provider %q has unknown kind %q", p.Key, p.Kind)
		}
		if p.SecretRef == "" {
			return fmt.Errorf("provider %q requires a secret_ref", p.Key)
		}
		if p.RateLimits.RPM < 0 || p.RateLimits.TPM < 0 {
			return fmt.Errorf("provider %q has negative rate limit", p.Key)
		}
		if p.Enabled {
			enabledCount++
		}
	}
	if enabledCount == 0 {
		return fmt.Errorf("at least one provider must be enabled")
	}

	canonicalKeys := make(map[string]bool, len(cfg.CanonicalModels))
	for _, cm := range cfg.CanonicalModels {
		if cm.Key == "" {
			return fmt.Errorf("canonical model with empty key")
		}
		if canonicalKeys[cm.Key] {
			return fmt.Errorf("duplicate canonical model key %q", cm.Key)
		}
		canonicalKeys[cm.Key] = true

		if len(cm.Providers) == 0 {
			return fmt.Errorf("canonical model %q has no providers", cm.Key)
		}
		for providerKey := range cm.Providers {
			if !providerKeys[providerKey] {
				return fmt.Errorf("canonical model %q references unknown provider %q", cm.Key, providerKey)
			}
		}
	}

	for _, a := range cfg.Aliases {
		if a.Name == "" {
			return fmt.Errorf("alias with empty name")
		}
		if len(a.Canonicals) == 0 {
			return fmt.Errorf("alias %q has no canonical models", a.Name)
		}
		for _, canonical := range a.Canonicals {
			if !canonicalKeys[canonical] {
				return fmt.Errorf("alias %q references unknown canonical model %q", a.Name, canonical)
			}
		}
	}

	for _, c := range cfg.Combos {
		if c.Name == "" {
			return fmt.Errorf("combo with empty name")
		}
		if len(c.Canonicals) == 0 {
			return fmt.Errorf("combo %q has no canonical models", c.Name)
		}
		for _, canonical := range c.Canonicals {
			if !canonicalKeys[canonical] {
				return fmt.Errorf("combo %q references unknown canonical model %q", c.Name, canonical)
			}
		}
	}

	if cfg.Health.WindowSize < 0 || cfg.Health.SuccessThreshold < 0 || cfg.Health.BaseBackoff < 0 {
		return fmt.Errorf("health config must not contain negative values")
	}

	return nil
}
