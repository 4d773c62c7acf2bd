package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvProvider resolves secrets from environment variables. By default a
// SecretRef of "openai" (the provider key) looks up OPENAI_API_KEY
// (dashes become underscores, uppercased). Setting Prefix opts into a
// prefix scheme instead: a SecretRef of "openai-prod" with Prefix
// "GATEWAY_SECRET_" looks up GATEWAY_SECRET_OPENAI_PROD.
type EnvProvider struct {
	Prefix string
}

// NewEnvProvider builds an EnvProvider. An empty prefix uses the default
// "<PROVIDERKEY>_API_KEY" naming; a non-empty prefix opts into prefixed
// lookups instead.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{Prefix: prefix}
}

func (p *EnvProvider) envName(key string) string {
	normalized := strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
	if p.Prefix == "" {
		return normalized + "_API_KEY"
	}
	return p.Prefix + normalized
}

// Get looks up the secret's environment variable. Returns ErrNotFound if
// unset, and an error if set but empty (an explicit misconfiguration, not a
// missing secret).
func (p *EnvProvider) Get(_ context.Context, key string) (string, error) {
	name := p.envName(key)
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("%w: env var %s unset for key %q", ErrNotFound, name, key)
	}
	if v == "" {
		return "", fmt.Errorf("secrets: env var %s is set but empty for key %q", name, key)
	}
	return v, nil
}
