package frontend

import (
	"os"
	"path/filepath"

	"macrodex/internal/compdb"
)

// HeaderSearch resolves #include names the way GCC and Clang do: quoted
// includes try the including file's directory, then -iquote, -I and system
// directories; angled includes try -I then system directories.
type HeaderSearch struct {
	quote  []string
	angled []string
	system []string
}

func NewHeaderSearch(flags compdb.Flags) *HeaderSearch {
	return &HeaderSearch{
		quote:  flags.QuotePaths,
		angled: flags.IncludePaths,
		system: flags.SystemPaths,
	}
}

// Find returns the absolute path of name, or false if no directory has it.
func (h *HeaderSearch) Find(name string, angled bool, includerDir string) (string, bool) {
	if filepath.IsAbs(name) {
		return name, isFile(name)
	}
	var dirs [][]string
	if !angled {
		dirs = append(dirs, []string{includerDir}, h.quote)
	}
	dirs = append(dirs, h.angled, h.system)
	for _, group := range dirs {
		for _, dir := range group {
			if dir == "" {
				continue
			}
			candidate := filepath.Join(dir, name)
			if isFile(candidate) {
				abs, err := filepath.Abs(candidate)
				if err != nil {
					return candidate, true
				}
				return abs, true
			}
		}
	}
	return "", false
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
