package auth

import (
	"context"
	"fmt"
	"time"

	"ms-booking/internal/logger"

	"github.com/go-redis/redis/v8"
)

// InitializeRedis builds the shared Redis client and verifies the connection.
// The same client backs intent TTL tracking, fulfillment locks and the M2M
// token cache.
func InitializeRedis(redisAddr string, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: "",
		DB:       0,
		PoolSize: 10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Error("AUTH", fmt.Sprintf("Failed to connect to Redis at %s: %v", redisAddr, err))
		return nil, err
	}

	log.Info("AUTH", fmt.Sprintf("Connected to Redis at %s", redisAddr))
	return client, nil
}
