package middleware

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// rateLimitScript increments the window counter and sets its expiry on
// first use, returning the new count and the remaining TTL in seconds.
var rateLimitScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`)

// RedisRateLimitStore implements RateLimitStore backed by Redis, so limits
// hold across replicas and process restarts. It uses the same fixed window
// counter algorithm as the in-memory store.
//
// Redis failures fail open: the request is allowed and the error counted on
// the metrics instance when one is attached.
type RedisRateLimitStore struct {
	client  redis.UniversalClient
	metrics *Metrics
}

// NewRedisRateLimitStore creates a Redis-backed rate limit store.
func NewRedisRateLimitStore(client redis.UniversalClient) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client}
}

// SetMetrics attaches a metrics instance for fail-open error counting.
func (s *RedisRateLimitStore) SetMetrics(m *Metrics) {
	s.metrics = m
}

// Allow checks if a request from the given key should be allowed.
// Implements the RateLimitStore interface.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int, int) {
	windowMillis := config.WindowDuration.Milliseconds()
	res, err := rateLimitScript.Run(ctx, s.client, []string{"ratelimit:" + key}, windowMillis).Slice()
	if err != nil || len(res) != 2 {
		s.failOpen()
		return true, config.RequestsPerWindow, 0
	}

	count, ok1 := res[0].(int64)
	ttlMillis, ok2 := res[1].(int64)
	if !ok1 || !ok2 {
		s.failOpen()
		return true, config.RequestsPerWindow, 0
	}

	if count <= int64(config.RequestsPerWindow) {
		return true, config.RequestsPerWindow - int(count), 0
	}

	retryAfter := int(time.Duration(ttlMillis) * time.Millisecond / time.Second)
	if retryAfter <= 0 {
		retryAfter = 1
	}
	return false, 0, retryAfter
}

func (s *RedisRateLimitStore) failOpen() {
	if s.metrics != nil {
		s.metrics.IncRateLimitRedisErrors()
	}
}
