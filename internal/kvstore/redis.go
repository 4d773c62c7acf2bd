package kvstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrCheckLimitScript is a server-side Lua CAS: increments KEYS[1] by
// ARGV[1], refusing the increment (and leaving the counter unchanged) if the
// result would exceed ARGV[2] (a limit of 0 or less means "no limit"). Sets
// the key's TTL (ARGV[3], milliseconds) only on first creation so a hot
// counter's window doesn't keep sliding forward under sustained traffic.
var incrCheckLimitScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local delta = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local ttl_ms = tonumber(ARGV[3])
local next_val = current + delta
if limit > 0 and next_val > limit then
	return {current, 0}
end
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SET", KEYS[1], tostring(next_val))
if existed == 0 and ttl_ms > 0 then
	redis.call("PEXPIRE", KEYS[1], ttl_ms)
end
return {next_val, 1}
`)

// RedisStore is the production KVStore backend: state is visible to every
// gateway replica, so health and quota decisions are consistent across a
// fleet. Grounded on the same Get/Set/Exists/TTL shape used by the pack's
// Redis-backed idempotency manager, with EvalScript backed by a real
// server-side Lua script instead of a client-side read-modify-write.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an already-configured *redis.Client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisStore) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.IncrBy(ctx, key, delta)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (r *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}

func (r *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisStore) EvalScript(ctx context.Context, script Script, keys []string, args []interface{}) (interface{}, error) {
	switch script {
	case ScriptIncrCheckLimit:
		delta := args[0].(int64)
		limit := args[1].(int64)
		ttl, _ := args[2].(time.Duration)
		res, err := incrCheckLimitScript.Run(ctx, r.client, keys, delta, limit, ttl.Milliseconds()).Result()
		if err != nil {
			return nil, err
		}
		vals := res.([]interface{})
		newVal := vals[0].(int64)
		ok := vals[1].(int64) == 1
		return []interface{}{newVal, ok}, nil
	default:
		return nil, ErrNotFound
	}
}
