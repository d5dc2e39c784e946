package incremental

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"macrodex/internal/slogutil"
	"macrodex/internal/storage"
)

// Tracker maps changes to the main files that depend on them.
type Tracker struct {
	db     *storage.DB
	logger *slog.Logger
}

// NewTracker creates a tracker over the runs stored in db.
func NewTracker(db *storage.DB, logger *slog.Logger) *Tracker {
	return &Tracker{db: db, logger: slogutil.OrDiscard(logger)}
}

// AffectedByDefines returns main files whose used-define set contains any of
// names.
func (t *Tracker) AffectedByDefines(ctx context.Context, names []string) ([]string, error) {
	files, err := t.db.MainFilesUsingDefines(ctx, dedupe(names))
	if err != nil {
		return nil, fmt.Errorf("affected by defines: %w", err)
	}
	return files, nil
}

// AffectedByFiles returns main files that are, or include, any of paths.
// Relative paths are made absolute against the working directory.
func (t *Tracker) AffectedByFiles(ctx context.Context, paths []string) ([]string, error) {
	abs := make([]string, 0, len(paths))
	for _, p := range paths {
		a, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		abs = append(abs, a)
	}
	files, err := t.db.MainFilesIncluding(ctx, dedupe(abs))
	if err != nil {
		return nil, fmt.Errorf("affected by files: %w", err)
	}
	return files, nil
}

// Affected returns the sorted union of AffectedByDefines and AffectedByFiles.
func (t *Tracker) Affected(ctx context.Context, changes Changes) ([]string, error) {
	byDefine, err := t.AffectedByDefines(ctx, changes.Defines)
	if err != nil {
		return nil, err
	}
	byFile, err := t.AffectedByFiles(ctx, changes.Files)
	if err != nil {
		return nil, err
	}
	out := dedupe(append(byDefine, byFile...))
	t.logger.Debug("Computed affected units",
		"defines", len(changes.Defines), "files", len(changes.Files), "affected", len(out))
	return out, nil
}

// dedupe returns the sorted distinct values of s.
func dedupe(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	out := append([]string(nil), s...)
	sort.Strings(out)
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}
