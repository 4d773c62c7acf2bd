// Package router ranks resolved provider candidates into the order the
// Request Pipeline's attempt loop should try them: free-tier providers
// first, then by ascending estimated cost, then by configured tier, then
// lexically by provider key as a final deterministic tie-break. Candidates
// whose health or quota state makes them currently unusable are dropped
// rather than merely sorted last, so the pipeline never wastes an attempt
// on a provider it knows will fail — unless dropping them would empty the
// list entirely, in which case Rank retries once without those filters and
// reports the result as degraded.
package router

import (
	"context"
	"sort"

	"github.com/ferro-labs/inference-gateway/internal/quota"
)

// Attributes carries the static per-provider facts the Router ranks on.
// The caller assembles one Attributes value per candidate from config and
// the cost catalog before calling Rank.
type Attributes struct {
	ProviderKey   string
	UpstreamModel string
	FreeTier      bool
	EstimatedCost float64 // nominal USD per request used only for relative ordering
	Tier          int
	Limits        quota.Limits
}

// HealthChecker reports whether a provider is currently allowed to receive
// traffic. Implemented by *health.Store.
type HealthChecker interface {
	Allow(ctx context.Context, providerKey string) bool
}

// QuotaChecker reports whether a provider currently has rate-limit budget
// left, without reserving against it. Implemented by *quota.Tracker.
type QuotaChecker interface {
	Available(ctx context.Context, providerKey string, limits quota.Limits) bool
}

// Result is the outcome of a Rank call: the ordered, filtered candidates,
// and whether filtering had to be bypassed to avoid returning an empty
// list (the spec's "best-effort degraded mode").
type Result struct {
	Candidates []Attributes
	Degraded   bool
}

// Router ranks candidate providers for a single request.
type Router struct {
	health HealthChecker
	quota  QuotaChecker
}

// New builds a Router backed by the given health checker and quota
// checker. Either may be nil, in which case that gate is skipped.
func New(health HealthChecker, quota QuotaChecker) *Router {
	return &Router{health: health, quota: quota}
}

// Rank filters out providers the health checker or quota checker currently
// reject and returns the rest sorted by the composite key described in the
// package doc comment. If filtering would empty a non-empty candidate
// list, Rank retries once against the unfiltered list instead and sets
// Result.Degraded, since serving a degraded response beats serving none.
func (r *Router) Rank(ctx context.Context, candidates []Attributes) Result {
	filtered := r.filter(ctx, candidates)
	degraded := false
	if len(filtered) == 0 && len(candidates) > 0 {
		filtered = candidates
		degraded = true
	}

	ranked := make([]Attributes, len(filtered))
	copy(ranked, filtered)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.FreeTier != b.FreeTier {
			return a.FreeTier // free tier sorts first
		}
		if a.EstimatedCost != b.EstimatedCost {
			return a.EstimatedCost < b.EstimatedCost
		}
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		return a.ProviderKey < b.ProviderKey
	})
	return Result{Candidates: ranked, Degraded: degraded}
}

// filter drops candidates the health or quota gate currently rejects.
func (r *Router) filter(ctx context.Context, candidates []Attributes) []Attributes {
	out := make([]Attributes, 0, len(candidates))
	for _, c := range candidates {
		if r.health != nil && !r.health.Allow(ctx, c.ProviderKey) {
			continue
		}
		if r.quota != nil && !r.quota.Available(ctx, c.ProviderKey, c.Limits) {
			continue
		}
		out = append(out, c)
	}
	return out
}
