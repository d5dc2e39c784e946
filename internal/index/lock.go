//go:build !windows

package index

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"macrodex/internal/errors"
)

const lockFile = "collect.lock"

// Lock is an exclusive lock on the workspace store.
type Lock struct {
	path string
	file *os.File
}

// AcquireLock takes the workspace lock in dataDir without blocking. It fails
// with an INDEX_LOCKED error while another process holds it.
func AcquireLock(dataDir string) (*Lock, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	path := filepath.Join(dataDir, lockFile)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = file.Close()
		return nil, lockedError(path, err)
	}

	fail := func(what string, err error) (*Lock, error) {
		_ = syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		_ = file.Close()
		return nil, fmt.Errorf("%s lock file: %w", what, err)
	}
	if err := file.Truncate(0); err != nil {
		return fail("truncating", err)
	}
	if _, err := file.Seek(0, 0); err != nil {
		return fail("seeking", err)
	}
	if _, err := file.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		return fail("writing PID to", err)
	}

	return &Lock{path: path, file: file}, nil
}

func lockedError(path string, cause error) error {
	msg := "workspace is locked by another process. Another macrodex command may be running"
	if content, err := os.ReadFile(path); err == nil && len(content) > 0 {
		msg = fmt.Sprintf("workspace is locked by another process (PID %s). Another macrodex command may be running",
			strings.TrimSpace(string(content)))
	}
	return errors.New(errors.IndexLocked, msg, cause)
}

// Release releases the lock and removes the lock file.
func (l *Lock) Release() {
	if l == nil || l.file == nil {
		return
	}
	_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	_ = l.file.Close()
	_ = os.Remove(l.path)
}
