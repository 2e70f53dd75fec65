package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AcquireFulfillmentLock acquires the per-registration lock that serializes
// concurrent payment-captured deliveries for the same registration
func (c *Client) AcquireFulfillmentLock(ctx context.Context, registrationID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:fulfillment:%s", registrationID), "1", ttl).Result()
}

// ReleaseFulfillmentLock releases the per-registration lock
func (c *Client) ReleaseFulfillmentLock(ctx context.Context, registrationID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:fulfillment:%s", registrationID)).Err()
}

// MarkPaymentProcessed caches a processed gateway payment id with TTL
func (c *Client) MarkPaymentProcessed(ctx context.Context, paymentID string, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("payment:processed:%s", paymentID), "1", ttl).Err()
}

// IsPaymentProcessed checks the processed-payment cache. This is a fast path
// only; the database status condition remains the authoritative guard.
func (c *Client) IsPaymentProcessed(ctx context.Context, paymentID string) (bool, error) {
	result, err := c.rdb.Exists(ctx, fmt.Sprintf("payment:processed:%s", paymentID)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}
