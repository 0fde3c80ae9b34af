// Package store mirrors the zone view into Redis so other processes can read
// current zone state without talking to the bridge.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"hifibridge/internal/config"
)

const keyPrefix = "hifibridge:zone:"

// Cache stores zone snapshots by zone ID.
type Cache interface {
	Set(ctx context.Context, id string, stateJSON []byte) error
	Get(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
	RemoveAllExcept(ctx context.Context, keepIDs []string) ([]string, error)
}

// StateCache is the Redis implementation of Cache.
type StateCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStateCache wraps rdb. Entries expire after ttl unless refreshed; zero
// keeps them forever.
func NewStateCache(rdb *redis.Client, ttl time.Duration) *StateCache {
	return &StateCache{rdb: rdb, ttl: ttl}
}

// NewRedisClient connects and pings the server.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// Key returns the Redis key of a zone.
func Key(id string) string { return keyPrefix + id }

func (c *StateCache) Set(ctx context.Context, id string, stateJSON []byte) error {
	return c.rdb.Set(ctx, Key(id), stateJSON, c.ttl).Err()
}

// Get returns nil, nil for a missing zone.
func (c *StateCache) Get(ctx context.Context, id string) ([]byte, error) {
	b, err := c.rdb.Get(ctx, Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return b, err
}

func (c *StateCache) Delete(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, Key(id)).Err()
}

// RemoveAllExcept deletes every zone key not in keepIDs and returns the
// removed IDs.
func (c *StateCache) RemoveAllExcept(ctx context.Context, keepIDs []string) ([]string, error) {
	keep := make(map[string]struct{}, len(keepIDs))
	for _, id := range keepIDs {
		if id != "" {
			keep[id] = struct{}{}
		}
	}

	iter := c.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	var removed []string
	for iter.Next(ctx) {
		full := iter.Val()
		id, ok := strings.CutPrefix(full, keyPrefix)
		if !ok {
			continue
		}
		if _, ok := keep[id]; ok {
			continue
		}
		if err := c.rdb.Del(ctx, full).Err(); err != nil {
			return removed, err
		}
		removed = append(removed, id)
	}
	return removed, iter.Err()
}
