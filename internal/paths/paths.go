// Package paths maps between absolute, repo-relative and workspace paths.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// DataDirName is the per-repository workspace directory.
	DataDirName = ".macrodex"
	// ConfigFileName lives inside DataDirName.
	ConfigFileName = "config.json"
	// DatabaseFileName is the default store inside DataDirName.
	DatabaseFileName = "macrodex.db"
	// SCIPFileName is the default export inside DataDirName.
	SCIPFileName = "index.scip"
)

// DataDir returns <repoRoot>/.macrodex.
func DataDir(repoRoot string) string {
	return filepath.Join(repoRoot, DataDirName)
}

// EnsureDataDir creates the workspace directory if needed.
func EnsureDataDir(repoRoot string) (string, error) {
	dir := DataDir(repoRoot)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// ConfigPath returns the config file location for repoRoot.
func ConfigPath(repoRoot string) string {
	return filepath.Join(DataDir(repoRoot), ConfigFileName)
}

// ResolveIn makes p absolute relative to base, leaving absolute paths alone.
func ResolveIn(base, p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

// CanonicalizePath converts an absolute path to a repo-relative path with
// forward slashes. Symlinks are resolved when the path exists.
func CanonicalizePath(absolutePath string, repoRoot string) (string, error) {
	resolved, err := evalIfExists(absolutePath)
	if err != nil {
		return "", err
	}
	root, err := evalIfExists(repoRoot)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, resolved)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func evalIfExists(p string) (string, error) {
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return "", err
	}
	return resolved, nil
}

// IsWithinRepo reports whether path lies under repoRoot.
func IsWithinRepo(path string, repoRoot string) bool {
	canonical, err := CanonicalizePath(path, repoRoot)
	if err != nil {
		return false
	}
	return canonical != ".." && !strings.HasPrefix(canonical, "../")
}

// DisplayPath returns the repo-relative form of path when it lies inside
// repoRoot and the cleaned absolute path otherwise.
func DisplayPath(path string, repoRoot string) string {
	if repoRoot != "" && IsWithinRepo(path, repoRoot) {
		if rel, err := CanonicalizePath(path, repoRoot); err == nil {
			return rel
		}
	}
	return filepath.ToSlash(filepath.Clean(path))
}
