// Package secrets resolves a ProviderConfig's SecretRef into the credential
// string a Provider Adapter authenticates with. Credentials never live in
// gateway config directly; config only carries a reference name, and a
// SecretProvider implementation resolves that name against whatever backend
// an operator has chosen (environment variables, a SQL table, or a remote
// token endpoint behind OAuth2 client-credentials).
package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a SecretProvider has no value for a key.
var ErrNotFound = errors.New("secrets: not found")

// SecretProvider resolves a named secret reference to its value.
// Implementations must never return an empty string with a nil error —
// callers treat that as a configuration bug, not a missing secret.
type SecretProvider interface {
	Get(ctx context.Context, key string) (string, error)
}
