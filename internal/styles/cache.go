package styles

import (
	"sync"

	"github.com/conneroisu/sitepipe/internal/fsutil"
)

// CompiledStyleCache holds the most recent engine result so that a
// recompile triggered only by post-processing inputs (generated markup)
// skips the engine. It stays valid until Invalidate is called on a
// stylesheet-source change.
type CompiledStyleCache struct {
	mu     sync.RWMutex
	sheet  *Stylesheet
	digest string
	hits   int
	misses int
}

// NewCompiledStyleCache returns an empty cache.
func NewCompiledStyleCache() *CompiledStyleCache {
	return &CompiledStyleCache{}
}

// Get returns the cached result, if any.
func (c *CompiledStyleCache) Get() (*Stylesheet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sheet == nil {
		c.misses++
		return nil, false
	}
	c.hits++
	return c.sheet, true
}

// Store replaces the cached result.
func (c *CompiledStyleCache) Store(sheet *Stylesheet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sheet = sheet
	c.digest = fsutil.HashBytes(sheet.CSS)
}

// Invalidate drops the cached result.
func (c *CompiledStyleCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sheet = nil
	c.digest = ""
}

// Digest is the md5 of the cached CSS, empty when nothing is cached.
func (c *CompiledStyleCache) Digest() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.digest
}

// Stats reports cache hits and misses since creation.
func (c *CompiledStyleCache) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
