package macros

import (
	"path/filepath"
	"strconv"
	"strings"
)

// StableNamer generates a cross-run identifier for a macro from its name and
// definition location. ok is false when the location cannot be named.
type StableNamer interface {
	StableName(name string, definition Location) (usr string, ok bool)
}

// StableNamerFunc adapts a function to StableNamer.
type StableNamerFunc func(name string, definition Location) (string, bool)

func (f StableNamerFunc) StableName(name string, definition Location) (string, bool) {
	return f(name, definition)
}

// NewStableNamer names macros c:<path>@<line>:<column>@macro@<NAME>. Paths
// under root are written relative to it so names survive moving the checkout.
func NewStableNamer(root string) StableNamer {
	root = filepath.Clean(root)
	return StableNamerFunc(func(name string, def Location) (string, bool) {
		if name == "" || !def.IsFile() || def.Line == 0 {
			return "", false
		}
		p := filepath.Clean(def.File.Path)
		if root != "." && root != "" {
			if rel, err := filepath.Rel(root, p); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				p = rel
			}
		}
		var b strings.Builder
		b.WriteString("c:")
		b.WriteString(filepath.ToSlash(p))
		b.WriteByte('@')
		b.WriteString(strconv.FormatUint(uint64(def.Line), 10))
		b.WriteByte(':')
		b.WriteString(strconv.FormatUint(uint64(def.Column), 10))
		b.WriteString("@macro@")
		b.WriteString(name)
		return b.String(), true
	})
}
