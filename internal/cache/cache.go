// Package cache provides a bounded, injected parse cache keyed by content
// hash. Jobs share one instance explicitly; there is no ambient global.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"

	"github.com/vosbek/codeatlas/internal/diag"
	"github.com/vosbek/codeatlas/internal/jparse"
)

type entry struct {
	tree  *jparse.DeclTree
	diags []diag.Diagnostic
}

// ParseCache memoizes ParseFile results by file content. Identical bytes
// yield the identical tree, so sharing entries across jobs is safe.
type ParseCache struct {
	lru *lru.Cache[uint64, entry]
}

// New builds a cache holding up to size entries; size <= 0 disables
// caching (every Get recomputes).
func New(size int) (*ParseCache, error) {
	if size <= 0 {
		return &ParseCache{}, nil
	}
	c, err := lru.New[uint64, entry](size)
	if err != nil {
		return nil, err
	}
	return &ParseCache{lru: c}, nil
}

// Get returns the declaration tree for src, parsing on a miss.
func (c *ParseCache) Get(relPath string, src []byte) (*jparse.DeclTree, []diag.Diagnostic) {
	if c.lru == nil {
		return jparse.ParseFile(relPath, src)
	}
	key := cacheKey(relPath, src)
	if e, ok := c.lru.Get(key); ok {
		return e.tree, e.diags
	}
	tree, diags := jparse.ParseFile(relPath, src)
	c.lru.Add(key, entry{tree: tree, diags: diags})
	return tree, diags
}

// cacheKey hashes path and content together: diagnostics carry the file
// path, so entries cannot be shared across identically-named files.
func cacheKey(relPath string, src []byte) uint64 {
	h := xxh3.New()
	h.WriteString(relPath)
	h.Write([]byte{0})
	h.Write(src)
	return h.Sum64()
}

// Len reports the resident entry count.
func (c *ParseCache) Len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}
