// Package payment provides the Redis-backed pending-intent store.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis key prefixes for the pending-intent record and its order index.
const (
	pendingUserKeyPrefix  = "checkout:pending:user:"
	pendingOrderKeyPrefix = "checkout:pending:order:"
)

// claimScript atomically resolves an order ID to its user entry, verifies
// the entry still refers to that order, and deletes both keys. Returns the
// entry's JSON payload, or false when nothing matched. Running it as a Lua
// script makes the delete the arbitration point: only one caller gets the
// payload back.
var claimScript = redis.NewScript(`
local user_id = redis.call("GET", KEYS[1])
if not user_id then
  return false
end
local user_key = ARGV[1] .. user_id
local payload = redis.call("GET", user_key)
redis.call("DEL", KEYS[1])
if not payload then
  return false
end
local entry = cjson.decode(payload)
if entry["order_id"] ~= ARGV[2] then
  return false
end
redis.call("DEL", user_key)
return payload
`)

// RedisPendingStore implements PendingStore on Redis so the pending intent
// survives process death.
type RedisPendingStore struct {
	client *redis.Client
}

// NewRedisPendingStore creates a Redis-backed pending store.
func NewRedisPendingStore(client *redis.Client) *RedisPendingStore {
	return &RedisPendingStore{client: client}
}

// Put stores the pending intent, replacing any prior entry for the user.
// The user record and the order index are written in one transaction so the
// ordering guarantee (persisted before the redirect opens) covers both.
func (s *RedisPendingStore) Put(ctx context.Context, intent *PendingIntent) error {
	payload, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("marshal pending intent: %w", err)
	}

	userKey := pendingUserKeyPrefix + intent.UserID

	// Drop the stale order index if the user already has a pending entry.
	prior, err := s.client.Get(ctx, userKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("read prior pending intent: %w", err)
	}

	pipe := s.client.TxPipeline()
	if prior != "" {
		var old PendingIntent
		if err := json.Unmarshal([]byte(prior), &old); err == nil && old.OrderID != "" {
			pipe.Del(ctx, pendingOrderKeyPrefix+old.OrderID)
		}
	}
	pipe.Set(ctx, userKey, payload, 0)
	pipe.Set(ctx, pendingOrderKeyPrefix+intent.OrderID, intent.UserID, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("persist pending intent: %w", err)
	}
	return nil
}

// GetByUser returns the user's pending intent without claiming it.
func (s *RedisPendingStore) GetByUser(ctx context.Context, userID string) (*PendingIntent, error) {
	payload, err := s.client.Get(ctx, pendingUserKeyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pending intent: %w", err)
	}

	var intent PendingIntent
	if err := json.Unmarshal([]byte(payload), &intent); err != nil {
		return nil, fmt.Errorf("unmarshal pending intent: %w", err)
	}
	return &intent, nil
}

// Claim atomically removes and returns the entry matching orderID.
func (s *RedisPendingStore) Claim(ctx context.Context, orderID string) (*PendingIntent, bool, error) {
	result, err := claimScript.Run(ctx, s.client,
		[]string{pendingOrderKeyPrefix + orderID},
		pendingUserKeyPrefix, orderID,
	).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("claim pending intent: %w", err)
	}

	payload, ok := result.(string)
	if !ok {
		return nil, false, nil
	}

	var intent PendingIntent
	if err := json.Unmarshal([]byte(payload), &intent); err != nil {
		return nil, false, fmt.Errorf("unmarshal pending intent: %w", err)
	}
	return &intent, true, nil
}
