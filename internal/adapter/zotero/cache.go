package zotero

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// Formatter renders the bibliography entry of a library item.
type Formatter interface {
	Citation(ctx context.Context, key string) (string, error)
}

// CachedFormatter wraps a Formatter with an in-memory cache.
type CachedFormatter struct {
	inner Formatter
	cache *cache.Cache
}

// NewCachedFormatter creates a cache decorator around a formatter. Entries
// expire after ttl.
func NewCachedFormatter(inner Formatter, ttl time.Duration) *CachedFormatter {
	return &CachedFormatter{
		inner: inner,
		cache: cache.New(ttl, ttl*2),
	}
}

// Citation returns the cached entry for key or asks the wrapped formatter.
func (c *CachedFormatter) Citation(ctx context.Context, key string) (string, error) {
	if cached, found := c.cache.Get(key); found {
		return cached.(string), nil
	}
	citation, err := c.inner.Citation(ctx, key)
	if err != nil {
		return "", err
	}
	c.cache.Set(key, citation, cache.DefaultExpiration)
	return citation, nil
}
