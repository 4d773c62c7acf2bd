// Package resolver turns a client-facing model name — a canonical model
// key, an alias, or a combo — into the ordered set of (provider, upstream
// model ID) candidates the Router should rank and the Request Pipeline
// should attempt in turn.
package resolver

import (
	"errors"
	"fmt"
)

// ErrCanonicalNotFound is returned when the requested model name does not
// match any canonical model, alias, or combo.
var ErrCanonicalNotFound = errors.New("resolver: canonical model not found")

// ErrNoEnabledProvider is returned when a canonical model resolves but every
// provider capable of serving it is disabled in config.
var ErrNoEnabledProvider = errors.New("resolver: no enabled provider for model")

// Candidate is one (provider, upstream model ID) pair able to serve a
// canonical model.
type Candidate struct {
	ProviderKey   string
	UpstreamModel string
	Canonical     string
}

// ProviderLookup reports whether a provider key is enabled in config. The
// Resolver depends on this
// narrow interface rather than the full Config so it stays testable without
// constructing a complete gateway config.
type ProviderLookup interface {
	Enabled(providerKey string) bool
}

// AliasDef names a client-facing shorthand that expands to an ordered list
// of canonical models, tried in turn exactly like a Combo. An empty
// TenantID makes the alias visible to every tenant; a non-empty one scopes
// it to that tenant alone.
type AliasDef struct {
	Name       string
	TenantID   string
	Canonicals []string
}

// ComboDef names a client-facing fallback chain across canonical models.
// Semantically identical to AliasDef; kept as a distinct type because a
// caller may want to report combo-level failures separately from
// alias-level ones.
type ComboDef struct {
	Name       string
	TenantID   string
	Canonicals []string
}

// chain is the ordered list of canonical model keys an alias or combo
// expands to.
type chain struct {
	canonicals []string
}

// Resolver resolves client-facing model names against a fixed set of
// canonical models, aliases, and combos loaded from config. Aliases and
// combos may be tenant-scoped: a tenant-scoped entry only matches requests
// from that tenant, but every tenant can still see global (unscoped)
// entries of the same kind. Lookup order per Resolve call: tenant-scoped
// combo, global combo, tenant-scoped alias, global alias, direct canonical
// model match.
type Resolver struct {
	canonical map[string]map[string]string // canonical key -> providerKey -> upstream model ID

	globalCombos  map[string]chain
	tenantCombos  map[string]map[string]chain // tenantID -> combo name -> chain
	globalAliases map[string]chain
	tenantAliases map[string]map[string]chain // tenantID -> alias name -> chain

	providers ProviderLookup
}

// New builds a Resolver from the gateway's canonical model, alias, and
// combo definitions. providers is consulted at resolve time to drop
// disabled providers from the candidate list.
func New(canonicalModels map[string]map[string]string, aliases []AliasDef, combos []ComboDef, providers ProviderLookup) *Resolver {
	r := &Resolver{
		canonical:     canonicalModels,
		globalCombos:  make(map[string]chain),
		tenantCombos:  make(map[string]map[string]chain),
		globalAliases: make(map[string]chain),
		tenantAliases: make(map[string]map[string]chain),
		providers:     providers,
	}
	for _, c := range combos {
		r.index(r.globalCombos, r.tenantCombos, c.TenantID, c.Name, c.Canonicals)
	}
	for _, a := range aliases {
		r.index(r.globalAliases, r.tenantAliases, a.TenantID, a.Name, a.Canonicals)
	}
	return r
}

// index files a chain into global or tenant-scoped storage depending on
// whether tenantID is set.
func (r *Resolver) index(global map[string]chain, scoped map[string]map[string]chain, tenantID, name string, canonicals []string) {
	ch := chain{canonicals: canonicals}
	if tenantID == "" {
		global[name] = ch
		return
	}
	if scoped[tenantID] == nil {
		scoped[tenantID] = make(map[string]chain)
	}
	scoped[tenantID][name] = ch
}

// Resolve returns the ordered list of candidates for requested on behalf of
// tenantID, expanding a tenant-scoped or global combo, a tenant-scoped or
// global alias, or a direct canonical model match, in that order. For a combo or
// alias, candidates from earlier canonical models are listed before
// candidates from later ones, so the Router's ranking only ever reorders
// within one canonical model's candidates, never across chain members.
// tenantID may be empty, in which case only global aliases/combos apply.
func (r *Resolver) Resolve(requested, tenantID string) ([]Candidate, error) {
	canonicalKeys, err := r.expand(requested, tenantID)
	if err != nil {
		return nil, err
	}

	var out []Candidate
	seen := make(map[string]bool, len(canonicalKeys))
	for _, key := range canonicalKeys {
		if seen[key] {
			continue // duplicates dropped, keeping the first occurrence
		}
		seen[key] = true
		providerModels, ok := r.canonical[key]
		if !ok {
			continue
		}
		for providerKey, upstreamModel := range providerModels {
			if !r.providers.Enabled(providerKey) {
				continue
			}
			out = append(out, Candidate{
				ProviderKey:   providerKey,
				UpstreamModel: upstreamModel,
				Canonical:     key,
			})
		}
	}

	if out == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoEnabledProvider, requested)
	}
	return out, nil
}

// expand resolves requested to its ordered list of canonical model keys,
// following the lookup order documented on Resolver.
func (r *Resolver) expand(requested, tenantID string) ([]string, error) {
	if tenantID != "" {
		if combos, ok := r.tenantCombos[tenantID]; ok {
			if ch, ok := combos[requested]; ok {
				return r.validateChain(requested, ch)
			}
		}
	}
	if ch, ok := r.globalCombos[requested]; ok {
		return r.validateChain(requested, ch)
	}
	if tenantID != "" {
		if aliases, ok := r.tenantAliases[tenantID]; ok {
			if ch, ok := aliases[requested]; ok {
				return r.validateChain(requested, ch)
			}
		}
	}
	if ch, ok := r.globalAliases[requested]; ok {
		return r.validateChain(requested, ch)
	}
	if _, ok := r.canonical[requested]; ok {
		return []string{requested}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrCanonicalNotFound, requested)
}

// validateChain confirms every canonical model named in ch actually exists,
// so a misconfigured alias/combo fails with ErrCanonicalNotFound instead of
// silently skipping the bad member at resolve time.
func (r *Resolver) validateChain(requested string, ch chain) ([]string, error) {
	for _, m := range ch.canonicals {
		if _, ok := r.canonical[m]; !ok {
			return nil, fmt.Errorf("%w: %q references undefined canonical model %q", ErrCanonicalNotFound, requested, m)
		}
	}
	return ch.canonicals, nil
}
