package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
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

	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func lockKey(key string) string {
	return fmt.Sprintf("lock:%s", key)
}

func claimKey(viewID string) string {
	return fmt.Sprintf("ad_claim:%s", viewID)
}

// Acquire takes the lock for key if it is free. The returned token is needed
// to release it.
func (c *Client) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, lockKey(key), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	return token, ok, nil
}

// Release drops the lock only if it is still held with token
func (c *Client) Release(ctx context.Context, key, token string) error {
	if _, err := c.releaseScript.Run(ctx, c.rdb, []string{lockKey(key)}, token).Result(); err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

// MarkClaimed records an ad view as claimed. It returns false if the view was
// claimed before.
func (c *Client) MarkClaimed(ctx context.Context, viewID string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, claimKey(viewID), time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark ad view %s: %w", viewID, err)
	}
	return ok, nil
}
