package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis tracks checkout-intent liveness and short fulfillment locks. The TTL
// key is the eviction mechanism for abandoned intents: once it lapses the
// intent can no longer be paid or completed, whatever a late webhook says.
type Redis struct {
	Client *redis.Client
	Logger *log.Logger
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{Client: client, Logger: log.Default()}
}

func intentKey(intentID string) string {
	return "checkout_intent:" + intentID
}

func fulfillmentKey(intentID string) string {
	return "fulfillment_lock:" + intentID
}

// ArmIntentTTL marks the intent live for the given window.
func (r *Redis) ArmIntentTTL(ctx context.Context, intentID string, ttl time.Duration) error {
	return r.Client.Set(ctx, intentKey(intentID), "active", ttl).Err()
}

// IntentActive reports whether the intent's TTL key still exists.
func (r *Redis) IntentActive(ctx context.Context, intentID string) (bool, error) {
	_, err := r.Client.Get(ctx, intentKey(intentID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DropIntentTTL removes the liveness key once the intent reaches a terminal
// state.
func (r *Redis) DropIntentTTL(ctx context.Context, intentID string) error {
	_, err := r.Client.Del(ctx, intentKey(intentID)).Result()
	return err
}

// LockFulfillment takes a short exclusive lock for one fulfillment attempt.
// This only narrows the duplicate-trigger window; correctness rests on the
// existence check inside the fulfillment transaction.
func (r *Redis) LockFulfillment(ctx context.Context, intentID, token string, ttl time.Duration) (bool, error) {
	return r.Client.SetNX(ctx, fulfillmentKey(intentID), token, ttl).Result()
}

// UnlockFulfillment releases the lock if we still own it.
func (r *Redis) UnlockFulfillment(ctx context.Context, intentID, token string) error {
	key := fulfillmentKey(intentID)
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // already expired
	}
	if err != nil {
		return err
	}
	if val == token {
		_, err := r.Client.Del(ctx, key).Result()
		return err
	}
	r.Logger.Println(fmt.Sprintf("REDIS: fulfillment lock for %s held by another owner, leaving it", intentID))
	return nil
}
