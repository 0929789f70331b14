package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// m2mTokenKey is where the cached catalog M2M token lives in Redis.
	m2mTokenKey = "booking:m2m_token"
	// tokenExpiryBuffer refreshes tokens this many seconds before they
	// actually expire.
	tokenExpiryBuffer = 60
)

// TokenCache is one cached token with its expiry.
type TokenCache struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsValid reports whether the token is still usable, with the refresh buffer
// applied.
func (tc *TokenCache) IsValid() bool {
	if tc == nil || tc.Token == "" {
		return false
	}
	return time.Now().Add(tokenExpiryBuffer * time.Second).Before(tc.ExpiresAt)
}

// RedisTokenCache caches M2M tokens in Redis so restarts and replicas share
// one token instead of hammering Keycloak.
type RedisTokenCache struct {
	Client *redis.Client
}

func NewRedisTokenCache(client *redis.Client) *RedisTokenCache {
	return &RedisTokenCache{Client: client}
}

// GetToken returns the cached token, or nil when absent or expired.
func (c *RedisTokenCache) GetToken(ctx context.Context) (*TokenCache, error) {
	if c.Client == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}

	tokenJSON, err := c.Client.Get(ctx, m2mTokenKey).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get token from redis: %w", err)
	}

	var tokenCache TokenCache
	if err := json.Unmarshal([]byte(tokenJSON), &tokenCache); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token cache: %w", err)
	}
	if !tokenCache.IsValid() {
		return nil, nil
	}
	return &tokenCache, nil
}

// SetToken stores a token with its advertised lifetime.
func (c *RedisTokenCache) SetToken(ctx context.Context, token string, expiresIn int) error {
	if c.Client == nil {
		return fmt.Errorf("redis client not initialized")
	}

	tokenCache := &TokenCache{
		Token:     token,
		ExpiresAt: time.Now().Add(time.Duration(expiresIn) * time.Second),
	}
	tokenJSON, err := json.Marshal(tokenCache)
	if err != nil {
		return fmt.Errorf("failed to marshal token cache: %w", err)
	}

	// Redis TTL slightly outlives the token so IsValid, not key eviction,
	// decides staleness.
	ttl := time.Duration(expiresIn+tokenExpiryBuffer) * time.Second
	if err := c.Client.Set(ctx, m2mTokenKey, tokenJSON, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store token in redis: %w", err)
	}
	return nil
}
