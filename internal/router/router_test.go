package router

import (
	"context"
	"testing"

	"github.com/ferro-labs/inference-gateway/internal/quota"
)

type fakeHealth struct {
	down map[string]bool
}

func (f fakeHealth) Allow(ctx context.Context, providerKey string) bool {
	return !f.down[providerKey]
}

type fakeQuota struct {
	exhausted map[string]bool
}

func (f fakeQuota) Available(ctx context.Context, providerKey string, limits quota.Limits) bool {
	return !f.exhausted[providerKey]
}

func TestRankOrdersFreeTierFirst(t *testing.T) {
	r := New(fakeHealth{}, nil)
	out := r.Rank(context.Background(), []Attributes{
		{ProviderKey: "paid", EstimatedCost: 0.0001},
		{ProviderKey: "free", FreeTier: true, EstimatedCost: 0},
	})
	if len(out.Candidates) != 2 || out.Candidates[0].ProviderKey != "free" {
		t.Fatalf("expected free provider first, got %+v", out.Candidates)
	}
	if out.Degraded {
		t.Fatal("expected Degraded=false when no filtering was needed")
	}
}

func TestRankOrdersByCostThenTierThenKey(t *testing.T) {
	r := New(fakeHealth{}, nil)
	out := r.Rank(context.Background(), []Attributes{
		{ProviderKey: "b", EstimatedCost: 1.0, Tier: 1},
		{ProviderKey: "a", EstimatedCost: 1.0, Tier: 1},
		{ProviderKey: "cheap", EstimatedCost: 0.5, Tier: 2},
	})
	want := []string{"cheap", "a", "b"}
	for i, w := range want {
		if out.Candidates[i].ProviderKey != w {
			t.Fatalf("position %d: want %q, got %q (%+v)", i, w, out.Candidates[i].ProviderKey, out.Candidates)
		}
	}
}

func TestRankDropsUnhealthyProviders(t *testing.T) {
	r := New(fakeHealth{down: map[string]bool{"sick": true}}, nil)
	out := r.Rank(context.Background(), []Attributes{
		{ProviderKey: "sick"},
		{ProviderKey: "healthy"},
	})
	if len(out.Candidates) != 1 || out.Candidates[0].ProviderKey != "healthy" {
		t.Fatalf("expected only healthy provider, got %+v", out.Candidates)
	}
}

func TestRankDropsQuotaExhaustedProviders(t *testing.T) {
	r := New(nil, fakeQuota{exhausted: map[string]bool{"tapped-out": true}})
	out := r.Rank(context.Background(), []Attributes{
		{ProviderKey: "tapped-out"},
		{ProviderKey: "fresh"},
	})
	if len(out.Candidates) != 1 || out.Candidates[0].ProviderKey != "fresh" {
		t.Fatalf("expected only the provider with quota left, got %+v", out.Candidates)
	}
	if out.Degraded {
		t.Fatal("expected Degraded=false: the list wasn't emptied")
	}
}

func TestRankNilCheckersAllowAll(t *testing.T) {
	r := New(nil, nil)
	out := r.Rank(context.Background(), []Attributes{{ProviderKey: "a"}, {ProviderKey: "b"}})
	if len(out.Candidates) != 2 {
		t.Fatalf("expected both candidates, got %+v", out.Candidates)
	}
}

func TestRankDegradesWhenFilteringEmptiesTheList(t *testing.T) {
	r := New(fakeHealth{down: map[string]bool{"a": true, "b": true}}, nil)
	out := r.Rank(context.Background(), []Attributes{
		{ProviderKey: "b"},
		{ProviderKey: "a"},
	})
	if !out.Degraded {
		t.Fatal("expected Degraded=true when every candidate was filtered out")
	}
	if len(out.Candidates) != 2 {
		t.Fatalf("expected the degraded retry to return the full unfiltered list, got %+v", out.Candidates)
	}
	if out.Candidates[0].ProviderKey != "a" || out.Candidates[1].ProviderKey != "b" {
		t.Fatalf("expected the degraded list to still be sorted, got %+v", out.Candidates)
	}
}

func TestRankDegradedRetryStillAppliesQuotaAndHealthGatesOnNextCall(t *testing.T) {
	// A single request that degrades doesn't permanently disable filtering:
	// the next Rank call re-evaluates health/quota from scratch.
	fh := fakeHealth{down: map[string]bool{"a": true}}
	r := New(fh, nil)
	out := r.Rank(context.Background(), []Attributes{{ProviderKey: "a"}})
	if !out.Degraded {
		t.Fatal("expected the only candidate being unhealthy to trigger degraded mode")
	}

	fh.down["a"] = false
	out = r.Rank(context.Background(), []Attributes{{ProviderKey: "a"}, {ProviderKey: "b"}})
	if out.Degraded {
		t.Fatal("expected Degraded=false once the provider recovered")
	}
	if len(out.Candidates) != 2 {
		t.Fatalf("expected both candidates, got %+v", out.Candidates)
	}
}

func TestRankEmptyInputNeverDegrades(t *testing.T) {
	r := New(fakeHealth{down: map[string]bool{"a": true}}, nil)
	out := r.Rank(context.Background(), nil)
	if out.Degraded {
		t.Fatal("an empty input list is not the same as filtering emptying a non-empty list")
	}
	if len(out.Candidates) != 0 {
		t.Fatalf("expected no candidates, got %+v", out.Candidates)
	}
}
