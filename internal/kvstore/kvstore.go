// Package kvstore is the shared-state backend for the Health Store and the
// Quota Tracker: small keys, short TTLs, and one compare-and-swap primitive
// (EvalScript) so rolling counters stay correct under concurrent writers,
// whether those writers are goroutines in one process or replicas of the
// gateway sharing one Redis.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist or has expired.
var ErrNotFound = errors.New("kvstore: key not found")

// KVStore is the storage contract the Health Store and Quota Tracker depend
// on. Implementations must be safe for concurrent use.
type KVStore interface {
	// Get returns the raw value stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value at key with the given TTL. A zero TTL means no
	// expiration.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// IncrBy atomically adds delta to the integer stored at key (treating a
	// missing key as 0) and returns the new value. If ttl is nonzero, the
	// key's TTL is set to ttl on every call, whether or not the key existed.
	IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)

	// Expire sets or refreshes a key's TTL without changing its value. It is
	// a no-op if the key does not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Exists reports whether key is currently present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)

	// EvalScript runs a named, side-effecting compare-and-swap operation
	// against keys/args and returns an implementation-defined result. This
	// is the primitive the Quota Tracker uses for "increment and check
	// under the limit, atomically". The Health Store does not use it; it
	// reads and writes its state with Get and Set.
	EvalScript(ctx context.Context, script Script, keys []string, args []interface{}) (interface{}, error)
}

// Script identifies one of the small set of CAS operations this package
// knows how to run, so the in-memory backend can implement them natively
// instead of actually interpreting Lua.
type Script int

const (
	// ScriptIncrCheckLimit atomically increments keys[0] by args[0].(int64)
	// and returns the resulting value, capping the increment to not exceed
	// args[1].(int64) — the key is left unchanged and ok=false is returned
	// if the increment would exceed the limit. Sets TTL args[2].(time.Duration)
	// on first write. Returns (newValue int64, ok bool).
	ScriptIncrCheckLimit Script = iota
)
