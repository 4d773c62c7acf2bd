// Package quota enforces per-provider rate and token budgets using rolling
// one-minute windows backed by a KVStore. Limits are attached to the real
// upstream account a ProviderConfig represents, not to any one tenant: all
// tenants sharing a provider draw down the same RPM/TPM budget, because
// that budget is what the upstream actually enforces against the gateway's
// single API key. The counters are atomic across replicas because every
// increment goes through KVStore.EvalScript's compare-and-swap rather than
// a local read-then-write.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/ferro-labs/inference-gateway/internal/kvstore"
)

// Limits bounds a provider for the current minute. A zero value for either
// field means "unlimited" for that dimension.
type Limits struct {
	RPM int
	TPM int
}

// Result reports the outcome of a reservation attempt.
type Result struct {
	Allowed      bool
	RemainingRPM int
	RemainingTPM int
	RetryAfter   time.Duration
}

// Tracker is the Quota Tracker component: CheckAndReserve must be called
// before a provider is attempted, RecordUsage after the real token count is
// known (estimates and actuals can differ, e.g. streaming responses).
type Tracker struct {
	kv kvstore.KVStore
}

// NewTracker builds a Tracker over the given KVStore.
func NewTracker(kv kvstore.KVStore) *Tracker {
	return &Tracker{kv: kv}
}

// window returns the current minute bucket so keys roll over cleanly every
// 60 seconds without a separate cleanup job.
func window(t time.Time) string {
	return t.UTC().Format("200601021504")
}

func rpmKey(providerKey string, t time.Time) string {
	return fmt.Sprintf("rl:%s:rpm:%s", providerKey, window(t))
}

func tpmKey(providerKey string, t time.Time) string {
	return fmt.Sprintf("rl:%s:tpm:%s", providerKey, window(t))
}

// CheckAndReserve atomically increments the request counter for
// providerKey (and, if estimatedTokens > 0 and limits.TPM > 0, the token
// counter) for the current minute and reports whether both stayed within
// limits. providerKey
// is the ProviderConfig.Key of the upstream account being rate limited —
// every tenant routed to that provider draws down the same counter.
//
// A KVStore error fails open: the request is allowed, the error is
// returned, and any remaining budget that could not be read is reported
// as -1 (unknown), since refusing
// every request during a KVStore outage would turn a storage blip into a
// full gateway outage.
func (t *Tracker) CheckAndReserve(ctx context.Context, providerKey string, limits Limits, estimatedTokens int) (Result, error) {
	now := time.Now()

	rVal, rOK, err := t.incrCheckLimit(ctx, rpmKey(providerKey, now), 1, int64(limits.RPM))
	if err != nil {
		return Result{Allowed: true, RemainingRPM: -1, RemainingTPM: -1}, err
	}
	if !rOK {
		return Result{Allowed: false, RetryAfter: time.Until(nextWindow(now))}, nil
	}

	remainingTPM := -1
	if estimatedTokens > 0 && limits.TPM > 0 {
		tVal, tOK, err := t.incrCheckLimit(ctx, tpmKey(providerKey, now), int64(estimatedTokens), int64(limits.TPM))
		if err != nil {
			return Result{Allowed: true, RemainingRPM: remainingRPM(limits, rVal), RemainingTPM: -1}, err
		}
		if !tOK {
			return Result{Allowed: false, RetryAfter: time.Until(nextWindow(now))}, nil
		}
		remainingTPM = limits.TPM - int(tVal)
	}

	return Result{
		Allowed:      true,
		RemainingRPM: remainingRPM(limits, rVal),
		RemainingTPM: remainingTPM,
	}, nil
}

// Available reports whether providerKey currently has RPM budget left for
// the current minute, without reserving against it. The Router uses this
// as a pre-filter so it doesn't rank a candidate it already knows
// CheckAndReserve will reject; the actual atomic reservation still happens
// in CheckAndReserve when the candidate is attempted. Fails open (reports
// available) on a KVStore error or an unlimited (zero) RPM configuration.
func (t *Tracker) Available(ctx context.Context, providerKey string, limits Limits) bool {
	if limits.RPM <= 0 {
		return true
	}
	remaining, err := t.Remaining(ctx, providerKey, limits)
	if err != nil {
		return true
	}
	return remaining > 0
}

// RecordUsage adjusts the token counter after the real usage for a call is
// known, so a request whose estimate undershot doesn't let the provider
// silently exceed TPM for the rest of the window.
func (t *Tracker) RecordUsage(ctx context.Context, providerKey string, actualTokens int) error {
	if actualTokens == 0 {
		return nil
	}
	_, err := t.kv.IncrBy(ctx, tpmKey(providerKey, time.Now()), int64(actualTokens), time.Minute)
	return err
}

// Remaining reports providerKey's remaining RPM budget for the current
// minute, reading the counter without reserving against it.
func (t *Tracker) Remaining(ctx context.Context, providerKey string, limits Limits) (int, error) {
	if limits.RPM <= 0 {
		return -1, nil
	}
	raw, err := t.kv.Get(ctx, rpmKey(providerKey, time.Now()))
	if err == kvstore.ErrNotFound {
		return limits.RPM, nil
	}
	if err != nil {
		return -1, err
	}
	var used int64
	_, scanErr := fmt.Sscanf(raw, "%d", &used)
	if scanErr != nil {
		return -1, scanErr
	}
	return remainingRPM(limits, used), nil
}

func (t *Tracker) incrCheckLimit(ctx context.Context, key string, delta, limit int64) (int64, bool, error) {
	res, err := t.kv.EvalScript(ctx, kvstore.ScriptIncrCheckLimit, []string{key}, []interface{}{delta, limit, time.Minute})
	if err != nil {
		return 0, false, err
	}
	vals := res.([]interface{})
	newVal, ok := toInt64(vals[0])
	if !ok {
		return 0, false, fmt.Errorf("quota: unexpected EvalScript result type %T", vals[0])
	}
	allowed, ok := vals[1].(bool)
	if !ok {
		return 0, false, fmt.Errorf("quota: unexpected EvalScript result type %T", vals[1])
	}
	return newVal, allowed, nil
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

func remainingRPM(limits Limits, used int64) int {
	if limits.RPM <= 0 {
		return -1
	}
	remaining := limits.RPM - int(used)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

func nextWindow(t time.Time) time.Time {
	return t.Truncate(time.Minute).Add(time.Minute)
}
