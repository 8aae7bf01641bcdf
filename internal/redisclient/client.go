package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"distribution-service/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/set_snapshot.lua
var setSnapshotScript string

type Client struct {
	rdb         *redis.Client
	snapshotTTL time.Duration
	setSnapshot *redis.Script
}

// NewClient connects to Redis and fails fast when it is unreachable
func NewClient(addr, password string, db int, snapshotTTL time.Duration) (*Client, error) {
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

	return NewClientWithRedis(rdb, snapshotTTL), nil
}

func NewClientWithRedis(rdb *redis.Client, snapshotTTL time.Duration) *Client {
	return &Client{
		rdb:         rdb,
		snapshotTTL: snapshotTTL,
		setSnapshot: redis.NewScript(setSnapshotScript),
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func snapshotKey(productID int64) string {
	return fmt.Sprintf("product:snapshot:%d", productID)
}

// GetProductSnapshot returns nil without error on a miss
func (c *Client) GetProductSnapshot(ctx context.Context, productID int64) (*models.ProductSnapshot, error) {
	data, err := c.rdb.HGet(ctx, snapshotKey(productID), "data").Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snap models.ProductSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %d: %w", productID, err)
	}
	return &snap, nil
}

// SetProductSnapshot stores snap unless a newer version is already cached.
// It reports whether snap was written.
func (c *Client) SetProductSnapshot(ctx context.Context, snap models.ProductSnapshot) (bool, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return false, fmt.Errorf("encode snapshot %d: %w", snap.ProductID, err)
	}

	version := fmt.Sprintf("%020d", snap.Version)
	ttl := int64(c.snapshotTTL / time.Second)

	result, err := c.setSnapshot.Run(ctx, c.rdb, []string{snapshotKey(snap.ProductID)}, version, data, ttl).Int64()
	if err != nil {
		return false, fmt.Errorf("set snapshot script failed: %w", err)
	}
	return result == 1, nil
}

// MarkEventProcessed records eventID and reports whether it was new
func (c *Client) MarkEventProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("event:processed:%s", eventID), "1", ttl).Result()
}

// ForgetEvent undoes MarkEventProcessed so a failed event can be retried
func (c *Client) ForgetEvent(ctx context.Context, eventID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("event:processed:%s", eventID)).Err()
}
