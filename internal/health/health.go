// Package health persists circuit-breaker state in a KVStore so a
// provider's health is shared across every gateway replica instead of
// being rediscovered independently by each one. The state machine itself
// lives in internal/circuitbreaker; this package is the KVStore-backed
// coordination layer around it.
package health

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ferro-labs/inference-gateway/internal/circuitbreaker"
	"github.com/ferro-labs/inference-gateway/internal/kvstore"
)

const keyPrefix = "health:"

// Config tunes the underlying circuit breaker for every provider key this
// Store manages.
type Config struct {
	WindowSize       int
	SuccessThreshold int
	BaseBackoff      time.Duration
}

// Store tracks per-provider health. A process-local circuit breaker makes
// the Allow/RecordSuccess/RecordFailure decision (so a KVStore outage never
// blocks request handling); its resulting state is mirrored into the
// KVStore best-effort so other replicas converge on the same Open/Closed
// view within one request round trip.
type Store struct {
	kv    kvstore.KVStore
	cfg   Config
	mu    sync.Mutex
	local map[string]*circuitbreaker.CircuitBreaker
}

// NewStore creates a Store. A zero Config uses the circuitbreaker
// package's defaults.
func NewStore(kv kvstore.KVStore, cfg Config) *Store {
	return &Store{kv: kv, cfg: cfg, local: make(map[string]*circuitbreaker.CircuitBreaker)}
}

func (s *Store) breaker(key string) *circuitbreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.local[key]
	if !ok {
		cb = circuitbreaker.New(s.cfg.WindowSize, s.cfg.SuccessThreshold, s.cfg.BaseBackoff)
		s.local[key] = cb
	}
	return cb
}

// Allow reports whether a request to providerKey should be attempted. It
// first consults the KVStore for an Open verdict recorded by any replica;
// if the KVStore is unreachable it falls back to this process's own
// circuit breaker rather than refusing every request (fail open).
func (s *Store) Allow(ctx context.Context, providerKey string) bool {
	if remoteOpen, err := s.remoteOpen(ctx, providerKey); err == nil {
		if remoteOpen {
			return false
		}
	}
	return s.breaker(providerKey).Allow()
}

func (s *Store) remoteOpen(ctx context.Context, providerKey string) (bool, error) {
	raw, err := s.kv.Get(ctx, stateKey(providerKey))
	if err != nil {
		if err == kvstore.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	state, openUntilUnix, ok := parseState(raw)
	if !ok || state != circuitbreaker.StateOpen {
		return false, nil
	}
	return time.Now().Before(time.Unix(openUntilUnix, 0)), nil
}

// RecordSuccess records a successful call against providerKey.
func (s *Store) RecordSuccess(ctx context.Context, providerKey string) {
	cb := s.breaker(providerKey)
	cb.RecordSuccess()
	s.publish(ctx, providerKey, cb)
}

// RecordFailure records a failed call against providerKey.
func (s *Store) RecordFailure(ctx context.Context, providerKey string) {
	cb := s.breaker(providerKey)
	cb.RecordFailure()
	s.publish(ctx, providerKey, cb)
}

// State reports this process's three-way health state for providerKey,
// used by the /health/readiness surface (Gateway.Readiness).
func (s *Store) State(providerKey string) circuitbreaker.State {
	return s.breaker(providerKey).State()
}

// Ping reports whether the backing KVStore is reachable, for the
// /health/readiness surface. A missing key is still a reachable store;
// only a transport-level error means the store itself is down.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.kv.Get(ctx, "health:ping")
	if err == kvstore.ErrNotFound {
		return nil
	}
	return err
}

// publish mirrors the local breaker's state into the KVStore, best effort:
// a write failure here must never surface to the caller, since health
// bookkeeping is strictly secondary to serving the request that triggered it.
func (s *Store) publish(ctx context.Context, providerKey string, cb *circuitbreaker.CircuitBreaker) {
	state := cb.State()
	openUntil := time.Now()
	if state == circuitbreaker.StateOpen {
		openUntil = openUntil.Add(2 * time.Minute) // upper bound; real TTL tracked locally
	}
	_ = s.kv.Set(ctx, stateKey(providerKey), formatState(state, openUntil.Unix()), 5*time.Minute)
}

func stateKey(providerKey string) string {
	return fmt.Sprintf("%s%s", keyPrefix, providerKey)
}

func formatState(state circuitbreaker.State, openUntilUnix int64) string {
	return fmt.Sprintf("%s|%d", state.String(), openUntilUnix)
}

func parseState(raw string) (circuitbreaker.State, int64, bool) {
	parts := strings.SplitN(raw, "|", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	switch parts[0] {
	case "closed":
		return circuitbreaker.StateClosed, ts, true
	case "open":
		return circuitbreaker.StateOpen, ts, true
	case "half_open":
		return circuitbreaker.StateHalfOpen, ts, true
	default:
		return 0, 0, false
	}
}
