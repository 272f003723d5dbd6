package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/daily_take.lua
var dailyTakeScript string

//go:embed scripts/daily_release.lua
var dailyReleaseScript string

// Client is the fast-path rejection layer in front of Postgres: daily-limit
// counters and post-expiry cooldown keys. Redis is advisory only; every
// check here is re-validated inside the store transaction.
type Client struct {
	rdb           *redis.Client
	takeScript    *redis.Script
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
		takeScript:    redis.NewScript(dailyTakeScript),
		releaseScript: redis.NewScript(dailyReleaseScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func dailyKey(productID string, day time.Time) string {
	return fmt.Sprintf("daily:%s:%s", productID, day.UTC().Format("2006-01-02"))
}

func cooldownKey(productID, agentID string) string {
	return fmt.Sprintf("cooldown:%s:%s", productID, agentID)
}

// TakeDailySlot atomically claims one unit of a product's daily limit.
// Returns false when the day's counter has reached the limit.
func (c *Client) TakeDailySlot(ctx context.Context, productID string, day time.Time, limit int) (bool, error) {
	key := dailyKey(productID, day)

	// Counter lives until well past midnight; the date in the key is what
	// actually scopes it to the calendar day.
	result, err := c.takeScript.Run(ctx, c.rdb, []string{key}, limit, int((36 * time.Hour).Seconds())).Result()
	if err != nil {
		return false, fmt.Errorf("daily take script failed: %w", err)
	}

	taken, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}
	return taken == 1, nil
}

// ReleaseDailySlot returns a slot claimed by TakeDailySlot when the
// authoritative insert failed afterwards.
func (c *Client) ReleaseDailySlot(ctx context.Context, productID string, day time.Time) error {
	key := dailyKey(productID, day)

	if _, err := c.releaseScript.Run(ctx, c.rdb, []string{key}).Result(); err != nil {
		return fmt.Errorf("daily release script failed: %w", err)
	}
	return nil
}

// SetCooldown plants a cooldown marker for an agent/product pair
func (c *Client) SetCooldown(ctx context.Context, productID, agentID string, ttl time.Duration) error {
	return c.rdb.Set(ctx, cooldownKey(productID, agentID), "1", ttl).Err()
}

// InCooldown checks whether a cooldown marker is still live
func (c *Client) InCooldown(ctx context.Context, productID, agentID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, cooldownKey(productID, agentID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
