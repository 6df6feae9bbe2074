package modelstore

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const defaultCacheSize = 8

// Cache keeps recently loaded artifacts in memory, keyed by URL.
type Cache struct {
	store  *Store
	lru    *lru.Cache[string, *Artifact]
	logger *zap.Logger
}

// NewCache keeps up to size decoded artifacts keyed by URL.
func NewCache(store *Store, size int, logger *zap.Logger) (*Cache, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := lru.New[string, *Artifact](size)
	if err != nil {
		return nil, err
	}
	return &Cache{store: store, lru: c, logger: logger}, nil
}

// Get returns the artifact at url, loading it from the store on a miss.
func (c *Cache) Get(ctx context.Context, url string) (*Artifact, error) {
	if a, ok := c.lru.Get(url); ok {
		return a, nil
	}
	a, err := c.store.Load(ctx, url)
	if err != nil {
		return nil, err
	}
	c.lru.Add(url, a)
	c.logger.Debug("model loaded into cache",
		zap.String("url", url),
		zap.String("id", a.ID),
		zap.String("kind", a.Kind),
	)
	return a, nil
}

// Put stores a freshly saved artifact so the next Get skips the load.
func (c *Cache) Put(url string, a *Artifact) {
	c.lru.Add(url, a)
}

// Invalidate drops url so the next Get reads it again.
func (c *Cache) Invalidate(url string) {
	if c.lru.Remove(url) {
		c.logger.Debug("model evicted from cache", zap.String("url", url))
	}
}

func (c *Cache) Len() int {
	return c.lru.Len()
}
