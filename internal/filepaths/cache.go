// Package filepaths interns absolute file paths as small integer IDs.
package filepaths

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"macrodex/internal/macros"
)

// Entry is one interned path.
type Entry struct {
	ID   macros.FileID `json:"id"`
	Path string        `json:"path"`
}

// Cache is a concurrency-safe path interner. IDs start at 1 and never change
// for the lifetime of the cache. Preload restores IDs from a previous run.
type Cache struct {
	mu    sync.RWMutex
	ids   map[string]macros.FileID
	paths map[macros.FileID]string
	next  macros.FileID
}

func NewCache() *Cache {
	return &Cache{
		ids:   make(map[string]macros.FileID),
		paths: make(map[macros.FileID]string),
		next:  1,
	}
}

// FilePathID returns the ID of an absolute path, interning it on first use.
func (c *Cache) FilePathID(path string) (macros.FileID, error) {
	if path == "" || !filepath.IsAbs(path) {
		return 0, fmt.Errorf("file path %q is not absolute", path)
	}
	path = filepath.Clean(path)

	c.mu.RLock()
	id, ok := c.ids[path]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.ids[path]; ok {
		return id, nil
	}
	id = c.next
	c.next++
	c.ids[path] = id
	c.paths[id] = path
	return id, nil
}

// FilePath returns the path for id.
func (c *Cache) FilePath(id macros.FileID) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.paths[id]
	return p, ok
}

// Preload adds previously assigned entries. It fails if an entry conflicts
// with an existing assignment.
func (c *Cache) Preload(entries []Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		if !e.ID.Valid() {
			return fmt.Errorf("invalid file id for %s", e.Path)
		}
		path := filepath.Clean(e.Path)
		if id, ok := c.ids[path]; ok && id != e.ID {
			return fmt.Errorf("path %s already has id %d, not %d", path, id, e.ID)
		}
		if p, ok := c.paths[e.ID]; ok && p != path {
			return fmt.Errorf("file id %d already names %s", e.ID, p)
		}
		c.ids[path] = e.ID
		c.paths[e.ID] = path
		if e.ID >= c.next {
			c.next = e.ID + 1
		}
	}
	return nil
}

// Entries returns all interned paths ordered by ID.
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	out := make([]Entry, 0, len(c.paths))
	for id, p := range c.paths {
		out = append(out, Entry{ID: id, Path: p})
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids)
}
