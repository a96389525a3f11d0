package cachesvc

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/trezcool/ecole/core"
)

const defaultLRUSize = 1024

type entry struct {
	value   string
	expires time.Time // zero: never
}

// LRUCache is an in-process Cache, used when no redis is configured.
type LRUCache struct {
	entries *lru.Cache[string, entry]
	now     func() time.Time
}

var _ core.Cache = (*LRUCache)(nil)

func NewLRUCache(size int) *LRUCache {
	if size <= 0 {
		size = defaultLRUSize
	}
	entries, _ := lru.New[string, entry](size) // only fails on size <= 0
	return &LRUCache{entries: entries, now: time.Now}
}

func (c *LRUCache) Get(_ context.Context, key string) (string, error) {
	e, ok := c.entries.Get(key)
	if !ok {
		return "", core.ErrCacheMiss
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		c.entries.Remove(key)
		return "", core.ErrCacheMiss
	}
	return e.value, nil
}

// Set stores value under key; a ttl <= 0 never expires.
func (c *LRUCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	e := entry{value: value}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.entries.Add(key, e)
	return nil
}

func (c *LRUCache) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		c.entries.Remove(k)
	}
	return nil
}
