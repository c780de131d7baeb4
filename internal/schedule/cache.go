package schedule

import (
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/sells-group/materials-cli/internal/docstore"
)

// Cache holds the source documents of each coarse-key partition for the
// duration of one scheduler run. It is safe for concurrent use.
type Cache struct {
	m *xsync.Map[string, []docstore.Document]
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{m: xsync.NewMap[string, []docstore.Document]()}
}

// Load returns the documents cached for key.
func (c *Cache) Load(key string) ([]docstore.Document, bool) {
	return c.m.Load(key)
}

// Store caches docs under key.
func (c *Cache) Store(key string, docs []docstore.Document) {
	c.m.Store(key, docs)
}

// Clear drops every entry.
func (c *Cache) Clear() { c.m.Clear() }

// Len is the number of cached partitions.
func (c *Cache) Len() int { return c.m.Size() }
