package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"consult-chat/internal/models"
)

const keyPrefix = "chat:profile:"

// ProfileCache keeps read-through copies of identity profiles in Redis.
type ProfileCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewProfileCache parses the URL and pings the server before returning.
func NewProfileCache(ctx context.Context, url string, ttl time.Duration) (*ProfileCache, error) {
	if url == "" {
		return nil, errors.New("redis: url is empty")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &ProfileCache{client: c, ttl: ttl}, nil
}

// NewProfileCacheWithClient wraps an existing client.
func NewProfileCacheWithClient(client *redis.Client, ttl time.Duration) *ProfileCache {
	return &ProfileCache{client: client, ttl: ttl}
}

func profileKey(id string) string { return keyPrefix + id }

// GetMany returns the cached profiles among ids; absent or unreadable entries are reported as missing.
func (c *ProfileCache) GetMany(ctx context.Context, ids []string) (map[string]models.Profile, []string, error) {
	found := make(map[string]models.Profile, len(ids))
	if len(ids) == 0 {
		return found, nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = profileKey(id)
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return found, ids, err
	}
	var missing []string
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		var p models.Profile
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			missing = append(missing, ids[i])
			continue
		}
		found[ids[i]] = p
	}
	return found, missing, nil
}

// SetMany stores profiles with the configured TTL in one round trip.
func (c *ProfileCache) SetMany(ctx context.Context, profiles []models.Profile) error {
	if len(profiles) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for _, p := range profiles {
		raw, err := json.Marshal(p)
		if err != nil {
			return err
		}
		pipe.Set(ctx, profileKey(p.ID), raw, c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Ping checks connectivity.
func (c *ProfileCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client.
func (c *ProfileCache) Close() error {
	return c.client.Close()
}
