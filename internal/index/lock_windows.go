//go:build windows

package index

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"macrodex/internal/errors"
)

const lockFile = "collect.lock"

// Lock is an exclusive lock on the workspace store. On Windows it relies on
// exclusive creation of the lock file, so a crashed process leaves a stale
// lock that must be removed by hand.
type Lock struct {
	path string
	file *os.File
}

func AcquireLock(dataDir string) (*Lock, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	path := filepath.Join(dataDir, lockFile)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		if os.IsExist(err) {
			pid := ""
			if content, readErr := os.ReadFile(path); readErr == nil {
				pid = strings.TrimSpace(string(content))
			}
			return nil, errors.New(errors.IndexLocked,
				fmt.Sprintf("workspace is locked by another process (PID %s); remove %s if it is stale", pid, path), err)
		}
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if _, err := file.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("writing PID to lock file: %w", err)
	}
	return &Lock{path: path, file: file}, nil
}

// Release releases the lock and removes the lock file.
func (l *Lock) Release() {
	if l == nil || l.file == nil {
		return
	}
	l.file.Close()
	os.Remove(l.path)
}
