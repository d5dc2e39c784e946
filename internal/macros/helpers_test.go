package macros

import (
	"errors"
	"sync"
	"testing"
)

// mapResolver assigns IDs in first-seen order and fails for paths in deny.
type mapResolver struct {
	mu   sync.Mutex
	ids  map[string]FileID
	deny map[string]bool
}

func newMapResolver(deny ...string) *mapResolver {
	r := &mapResolver{ids: make(map[string]FileID), deny: make(map[string]bool)}
	for _, d := range deny {
		r.deny[d] = true
	}
	return r
}

func (r *mapResolver) FilePathID(path string) (FileID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deny[path] {
		return 0, errors.New("unresolvable")
	}
	if id, ok := r.ids[path]; ok {
		return id, nil
	}
	id := FileID(len(r.ids) + 1)
	r.ids[path] = id
	return id, nil
}

func (r *mapResolver) id(t *testing.T, path string) FileID {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.ids[path]
	if !ok {
		t.Fatalf("path %s was never resolved", path)
	}
	return id
}

func loc(f *File, line, col uint32) Location {
	return Location{File: f, Line: line, Column: col}
}

func tok(name string, l Location) Token {
	return Token{Name: name, Location: l}
}

// newTestCollector returns a collector over a fresh table.
func newTestCollector(t *testing.T, opts ...Option) (*Collector, *Table, *mapResolver) {
	t.Helper()
	res := newMapResolver()
	table := NewTable()
	return NewCollector(res, table, opts...), table, res
}

func finish(t *testing.T, c *Collector) Result {
	t.Helper()
	c.EndOfMainFile()
	r, ok := c.Result()
	if !ok {
		t.Fatal("result not available after EndOfMainFile")
	}
	return r
}
