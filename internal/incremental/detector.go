package incremental

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Stale returns stored runs whose main file or any included file was modified
// or deleted after the run finished.
func (t *Tracker) Stale(ctx context.Context) ([]StaleRun, error) {
	runs, err := t.db.MainFiles(ctx)
	if err != nil {
		return nil, err
	}

	checked := make(map[string]*StaleFile)
	check := func(path string) (*StaleFile, error) {
		if sf, ok := checked[path]; ok {
			return sf, nil
		}
		info, err := os.Stat(path)
		var sf *StaleFile
		switch {
		case errors.Is(err, fs.ErrNotExist):
			sf = &StaleFile{Path: path, ChangeType: ChangeDeleted}
		case err != nil:
			return nil, fmt.Errorf("stat %s: %w", path, err)
		default:
			sf = &StaleFile{Path: path, ChangeType: ChangeModified, ModTime: info.ModTime()}
		}
		checked[path] = sf
		return sf, nil
	}

	var stale []StaleRun
	for _, run := range runs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		included, err := t.db.IncludedFiles(ctx, run.MainFile)
		if err != nil {
			return nil, err
		}
		var changed []StaleFile
		for _, path := range append([]string{run.MainFile}, included...) {
			sf, err := check(path)
			if err != nil {
				return nil, err
			}
			if sf.ChangeType == ChangeDeleted || sf.ModTime.After(run.FinishedAt) {
				changed = append(changed, *sf)
			}
		}
		if len(changed) > 0 {
			t.logger.Debug("Run is stale", "main", run.MainFile, "changed", len(changed))
			stale = append(stale, StaleRun{MainFile: run.MainFile, Files: changed})
		}
	}
	return stale, nil
}
