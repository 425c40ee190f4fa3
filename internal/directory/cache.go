// Package directory caches the user's playlist directory. The directory is
// read on every selection screen, changes rarely, and is the first endpoint
// to hit rate limits, so reads are served from a short-TTL cache with
// request coalescing and a stale-read fallback during rate-limit cooldowns.
package directory

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"sortify/internal/core"
)

// FetchFunc loads the playlist directory from upstream.
type FetchFunc func(ctx context.Context) ([]core.Playlist, error)

type entry struct {
	playlists []core.Playlist
	fetchedAt time.Time
}

// Cache serves playlist directories keyed by account. Entries past their TTL
// are refreshed through a single in-flight fetch per key; concurrent callers
// share the result. When upstream rate-limits a refresh the cache enters a
// cooldown and keeps serving the stale entry until the cooldown passes.
type Cache struct {
	ttl      time.Duration
	cooldown time.Duration
	logger   *zap.Logger

	entries *lru.Cache[string, entry]
	group   singleflight.Group

	mutex         sync.Mutex
	cooldownUntil map[string]time.Time

	// now is swappable for tests
	now func() time.Time
}

func NewCache(config *core.CacheConfig, logger *zap.Logger) (*Cache, error) {
	entries, err := lru.New[string, entry](config.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create directory cache: %w", err)
	}

	return &Cache{
		ttl:           config.DirectoryTTL,
		cooldown:      config.RateLimitCooldown,
		logger:        logger,
		entries:       entries,
		cooldownUntil: make(map[string]time.Time),
		now:           time.Now,
	}, nil
}

// Get returns the playlist directory for key, refreshing from fetch when the
// cached copy is missing or older than the TTL.
func (c *Cache) Get(ctx context.Context, key string, fetch FetchFunc) ([]core.Playlist, error) {
	if cached, ok := c.fresh(key); ok {
		return cached, nil
	}

	if c.coolingDown(key) {
		if stale, ok := c.entries.Get(key); ok {
			c.logger.Debug("Serving stale playlist directory during cooldown",
				zap.String("key", key))
			return stale.playlists, nil
		}
		return nil, fmt.Errorf("directory unavailable during cooldown: %w", core.ErrRateLimited)
	}

	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Another caller may have refreshed while this one queued.
		if cached, ok := c.fresh(key); ok {
			return cached, nil
		}

		playlists, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		c.entries.Add(key, entry{playlists: playlists, fetchedAt: c.now()})
		return playlists, nil
	})
	if err != nil {
		if core.IsRateLimited(err) {
			c.startCooldown(key)
			if stale, ok := c.entries.Get(key); ok {
				c.logger.Warn("Rate limited refreshing playlist directory, serving stale copy",
					zap.String("key", key))
				return stale.playlists, nil
			}
		}
		return nil, fmt.Errorf("failed to load playlist directory: %w", err)
	}

	return result.([]core.Playlist), nil
}

// Invalidate drops the cached directory for key, forcing the next Get to
// fetch. Called after a playlist is created so it shows up immediately.
func (c *Cache) Invalidate(key string) {
	c.entries.Remove(key)
}

func (c *Cache) fresh(key string) ([]core.Playlist, bool) {
	cached, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if c.now().Sub(cached.fetchedAt) > c.ttl {
		return nil, false
	}
	return cached.playlists, true
}

func (c *Cache) coolingDown(key string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	until, ok := c.cooldownUntil[key]
	if !ok {
		return false
	}
	if c.now().After(until) {
		delete(c.cooldownUntil, key)
		return false
	}
	return true
}

func (c *Cache) startCooldown(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.cooldownUntil[key] = c.now().Add(c.cooldown)
	c.logger.Info("Playlist directory cooldown started",
		zap.String("key", key),
		zap.Duration("cooldown", c.cooldown))
}
