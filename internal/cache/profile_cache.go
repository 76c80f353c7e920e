package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skorpland/powermemo/internal/model"
)

// ProfileCache is the read-through cache in front of ProfileStore.List
// (spec §4.3: key "user_profiles::{project}::{user}", TTL
// cache_user_profiles_ttl, invalidated by every mutation path).
type ProfileCache struct {
	client *Client
	ttl    time.Duration
}

func NewProfileCache(client *Client, ttl time.Duration) *ProfileCache {
	return &ProfileCache{client: client, ttl: ttl}
}

func profileCacheKey(projectID, userID string) string {
	return fmt.Sprintf("user_profiles::%s::%s", projectID, userID)
}

// Get returns the cached profile list, if present.
func (c *ProfileCache) Get(ctx context.Context, projectID, userID string) ([]model.Profile, bool) {
	if c == nil || c.client == nil || c.client.rdb == nil {
		return nil, false
	}
	val, err := c.client.rdb.Get(ctx, profileCacheKey(projectID, userID)).Result()
	if err != nil {
		return nil, false
	}
	var profiles []model.Profile
	if err := json.Unmarshal([]byte(val), &profiles); err != nil {
		return nil, false
	}
	return profiles, true
}

// Set populates the cache, ignoring failures (reads fall back to the store).
func (c *ProfileCache) Set(ctx context.Context, projectID, userID string, profiles []model.Profile) {
	if c == nil || c.client == nil || c.client.rdb == nil {
		return
	}
	data, err := json.Marshal(profiles)
	if err != nil {
		return
	}
	_ = c.client.rdb.Set(ctx, profileCacheKey(projectID, userID), data, c.ttl).Err()
}

// Invalidate deletes the cache entry; every ProfileStore mutation must call
// this before returning success (spec §4.3).
func (c *ProfileCache) Invalidate(ctx context.Context, projectID, userID string) error {
	if c == nil || c.client == nil || c.client.rdb == nil {
		return nil
	}
	err := c.client.rdb.Del(ctx, profileCacheKey(projectID, userID)).Err()
	if err != nil && err != redis.Nil {
		return err
	}
	return nil
}
