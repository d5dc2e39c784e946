// Package discover finds translation units in a source tree when no
// compilation database is available.
package discover

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"
)

var skipDirs = map[string]struct{}{
	"node_modules": {},
	"CMakeFiles":   {},
	"vendor":       {},
}

type pattern struct {
	text string
	glob glob.Glob
	// root matches files directly under the root for "**/" patterns.
	root glob.Glob
}

func compile(patterns []string) ([]pattern, error) {
	out := make([]pattern, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, err
		}
		cp := pattern{text: p, glob: g}
		if rest, ok := strings.CutPrefix(p, "**/"); ok {
			if rg, err := glob.Compile(rest, '/'); err == nil {
				cp.root = rg
			}
		}
		out = append(out, cp)
	}
	return out, nil
}

func matchAny(rel string, patterns []pattern) bool {
	for _, p := range patterns {
		if p.glob.Match(rel) {
			return true
		}
		if p.root != nil && !strings.Contains(rel, "/") && p.root.Match(rel) {
			return true
		}
	}
	return false
}

// Finder selects files under Root by include and exclude globs, honouring
// the root .gitignore.
type Finder struct {
	root    string
	include []pattern
	exclude []pattern
	ignore  *ignore.GitIgnore
}

// New compiles the glob patterns. Patterns use / as separator and are
// matched against root-relative paths.
func New(root string, include, exclude []string) (*Finder, error) {
	inc, err := compile(include)
	if err != nil {
		return nil, err
	}
	exc, err := compile(exclude)
	if err != nil {
		return nil, err
	}
	f := &Finder{root: root, include: inc, exclude: exc}
	if gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore")); err == nil {
		f.ignore = gi
	}
	return f, nil
}

func (f *Finder) excluded(rel string) bool {
	if matchAny(rel, f.exclude) || matchAny(rel+"/**", f.exclude) {
		return true
	}
	return f.ignore != nil && f.ignore.MatchesPath(rel)
}

// Files returns matching files as sorted absolute paths.
func (f *Finder) Files() ([]string, error) {
	root, err := filepath.Abs(f.root)
	if err != nil {
		return nil, err
	}

	var results []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if f.excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		if f.excluded(rel) || !matchAny(rel, f.include) {
			return nil
		}
		results = append(results, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(results)
	return results, nil
}
