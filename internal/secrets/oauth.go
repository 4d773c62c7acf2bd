package secrets

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuthRefreshingProvider wraps a SecretProvider so that any resolved value
// is treated as an OAuth2 client-credentials secret: instead of returning
// the stored value directly, it exchanges the client ID (passed separately
// per key) and secret for a bearer access token. Some providers (notably
// enterprise deployments that front their API with an OAuth2-protected
// gateway of their own) authenticate this way rather than with a static API
// key.
type OAuthRefreshingProvider struct {
	inner    SecretProvider
	clientID func(key string) string
	tokenURL func(key string) string
	scopes   []string

	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

// NewOAuthRefreshingProvider builds a provider that treats inner's resolved
// values as OAuth2 client secrets. clientID and tokenURL map a SecretRef key
// to the client ID and token endpoint to use for that provider's credentials.
func NewOAuthRefreshingProvider(inner SecretProvider, clientID, tokenURL func(key string) string, scopes []string) *OAuthRefreshingProvider {
	return &OAuthRefreshingProvider{
		inner:    inner,
		clientID: clientID,
		tokenURL: tokenURL,
		scopes:   scopes,
		sources:  make(map[string]oauth2.TokenSource),
	}
}

// Get returns a currently-valid bearer access token for key, exchanging
// key's stored client secret for one on first use and reusing the cached
// TokenSource (which refreshes automatically near expiry) afterwards.
func (p *OAuthRefreshingProvider) Get(ctx context.Context, key string) (string, error) {
	ts, err := p.sourceFor(ctx, key)
	if err != nil {
		return "", err
	}
	token, err := ts.Token()
	if err != nil {
		return "", fmt.Errorf("oauth2 token exchange for %q: %w", key, err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("oauth2 token exchange for %q returned an empty access token", key)
	}
	return token.AccessToken, nil
}

func (p *OAuthRefreshingProvider) sourceFor(ctx context.Context, key string) (oauth2.TokenSource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ts, ok := p.sources[key]; ok {
		return ts, nil
	}

	clientSecret, err := p.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	cfg := clientcredentials.Config{
		ClientID:     p.clientID(key),
		ClientSecret: clientSecret,
		TokenURL:     p.tokenURL(key),
		Scopes:       p.scopes,
	}
	ts := cfg.TokenSource(ctx)
	p.sources[key] = ts
	return ts, nil
}
