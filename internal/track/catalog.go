package track

import (
	"context"
	"sync"
	"time"

	"ytqgo/internal/models"
)

// FetchCatalog resolves the available encodings for a media URL.
type FetchCatalog func(ctx context.Context, url string) (models.FormatCatalog, error)

type catalogEntry struct {
	catalog   models.FormatCatalog
	fetchedAt time.Time
}

// CatalogCache caches format catalogs per URL inside a freshness window.
// Failures are never cached: an unsupported URL today might resolve after the
// backend updates its extractors.
type CatalogCache struct {
	fetch FetchCatalog
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]catalogEntry
}

func NewCatalogCache(ttl time.Duration, fetch FetchCatalog) *CatalogCache {
	return &CatalogCache{
		fetch:   fetch,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]catalogEntry),
	}
}

// Resolve returns the cached catalog when fresh, otherwise fetches and
// caches it. Concurrent calls for different URLs proceed independently.
func (c *CatalogCache) Resolve(ctx context.Context, url string) (models.FormatCatalog, error) {
	c.mu.Lock()
	if entry, ok := c.entries[url]; ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		catalog := entry.catalog
		c.mu.Unlock()
		return catalog, nil
	}
	c.mu.Unlock()

	catalog, err := c.fetch(ctx, url)
	if err != nil {
		return models.FormatCatalog{}, err
	}

	c.mu.Lock()
	c.entries[url] = catalogEntry{catalog: catalog, fetchedAt: c.now()}
	c.mu.Unlock()
	return catalog, nil
}

// Cached reports whether a fresh entry exists without fetching.
func (c *CatalogCache) Cached(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[url]
	return ok && c.now().Sub(entry.fetchedAt) < c.ttl
}

// Evict drops one URL's entry, stale or not.
func (c *CatalogCache) Evict(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, url)
}
