package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"macrodex/internal/filepaths"
	"macrodex/internal/macros"
)

// ErrRunNotFound is returned by per-file readers when no run of that main
// file is stored.
var ErrRunNotFound = errors.New("no collection run stored for file")

// PathSource maps the file IDs of a result back to paths.
type PathSource interface {
	FilePath(id macros.FileID) (string, bool)
}

// RunRecord is one finished translation unit ready to be stored.
type RunRecord struct {
	MainFile   string
	StartedAt  time.Time
	FinishedAt time.Time
	Result     macros.Result
}

// Run describes a stored collection run.
type Run struct {
	ID         string    `json:"id" yaml:"id"`
	MainFile   string    `json:"mainFile" yaml:"mainFile"`
	StartedAt  time.Time `json:"startedAt" yaml:"startedAt"`
	FinishedAt time.Time `json:"finishedAt" yaml:"finishedAt"`
}

// Symbol is a catalogue row.
type Symbol struct {
	USR  string `json:"usr" yaml:"usr"`
	Name string `json:"name" yaml:"name"`
}

// Location is a stored reference to a symbol.
type Location struct {
	USR      string            `json:"usr" yaml:"usr"`
	Path     string            `json:"path" yaml:"path"`
	Line     uint32            `json:"line" yaml:"line"`
	Column   uint32            `json:"column" yaml:"column"`
	Role     macros.SymbolRole `json:"role" yaml:"role"`
	MainFile string            `json:"mainFile" yaml:"mainFile"`
}

// UsedDefine is a stored used define. Path is empty when the test happened
// outside any file.
type UsedDefine struct {
	Name string `json:"name" yaml:"name"`
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// fileIDs interns paths in the files table for the duration of a transaction.
type fileIDs struct {
	ctx    context.Context
	insert *sql.Stmt
	lookup *sql.Stmt
	ids    map[string]int64
}

func newFileIDs(ctx context.Context, tx *sql.Tx) (*fileIDs, error) {
	insert, err := tx.PrepareContext(ctx, `INSERT INTO files (path) VALUES (?) ON CONFLICT(path) DO NOTHING`)
	if err != nil {
		return nil, err
	}
	lookup, err := tx.PrepareContext(ctx, `SELECT file_id FROM files WHERE path = ?`)
	if err != nil {
		insert.Close()
		return nil, err
	}
	return &fileIDs{ctx: ctx, insert: insert, lookup: lookup, ids: make(map[string]int64)}, nil
}

func (f *fileIDs) close() {
	f.insert.Close()
	f.lookup.Close()
}

func (f *fileIDs) id(path string) (int64, error) {
	if id, ok := f.ids[path]; ok {
		return id, nil
	}
	if _, err := f.insert.ExecContext(f.ctx, path); err != nil {
		return 0, fmt.Errorf("insert file %s: %w", path, err)
	}
	var id int64
	if err := f.lookup.QueryRowContext(f.ctx, path).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup file %s: %w", path, err)
	}
	f.ids[path] = id
	return id, nil
}

// SaveRun stores rec in a single transaction, replacing any earlier run of the
// same main file, and returns the new run ID. File IDs in rec.Result are
// translated through paths; entries whose file cannot be named are dropped,
// as are locations of symbols that have no catalogue entry.
func (db *DB) SaveRun(ctx context.Context, rec RunRecord, paths PathSource) (string, error) {
	runID := uuid.NewString()
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		files, err := newFileIDs(ctx, tx)
		if err != nil {
			return err
		}
		defer files.close()

		dbFile := func(id macros.FileID) (int64, bool, error) {
			p, ok := paths.FilePath(id)
			if !ok {
				return 0, false, nil
			}
			fid, err := files.id(p)
			return fid, err == nil, err
		}

		mainID, err := files.id(rec.MainFile)
		if err != nil {
			return err
		}
		if err := deleteRunTx(ctx, tx, mainID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO collection_runs (run_id, main_file_id, started_at, finished_at)
			VALUES (?, ?, ?, ?)
		`, runID, mainID, rec.StartedAt.UnixMilli(), rec.FinishedAt.UnixMilli()); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		usrs := make(map[macros.SymbolIndex]string, len(rec.Result.Symbols))
		for idx, sym := range rec.Result.Symbols {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO symbols (usr, name) VALUES (?, ?) ON CONFLICT(usr) DO NOTHING
			`, sym.USR, sym.Name); err != nil {
				return fmt.Errorf("insert symbol %s: %w", sym.USR, err)
			}
			usrs[idx] = sym.USR
		}

		locStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO locations (run_id, seq, usr, file_id, line, col, role)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer locStmt.Close()
		for seq, loc := range rec.Result.Locations {
			usr, ok := usrs[loc.Symbol]
			if !ok {
				continue
			}
			fid, ok, err := dbFile(loc.File)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if _, err := locStmt.ExecContext(ctx, runID, seq, usr, fid, loc.Line, loc.Column, loc.Role.String()); err != nil {
				return fmt.Errorf("insert location: %w", err)
			}
		}

		for seq, id := range rec.Result.Files {
			fid, ok, err := dbFile(id)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO included_files (run_id, seq, file_id) VALUES (?, ?, ?)
			`, runID, seq, fid); err != nil {
				return fmt.Errorf("insert included file: %w", err)
			}
		}

		for _, u := range rec.Result.UsedDefines {
			var fid int64
			if u.File.Valid() {
				if fid, _, err = dbFile(u.File); err != nil {
					return err
				}
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO used_defines (run_id, name, file_id) VALUES (?, ?, ?)
			`, runID, u.Name, fid); err != nil {
				return fmt.Errorf("insert used define: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	db.logger.Debug("Stored collection run", "run", runID, "main", rec.MainFile,
		"symbols", len(rec.Result.Symbols), "locations", len(rec.Result.Locations))
	return runID, nil
}

func deleteRunTx(ctx context.Context, tx *sql.Tx, mainID int64) error {
	var old string
	err := tx.QueryRowContext(ctx, `SELECT run_id FROM collection_runs WHERE main_file_id = ?`, mainID).Scan(&old)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find previous run: %w", err)
	}
	for _, table := range []string{"locations", "included_files", "used_defines", "collection_runs"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ?", old); err != nil {
			return fmt.Errorf("delete previous run from %s: %w", table, err)
		}
	}
	return nil
}

// DeleteRun removes the stored run of mainFile, if any.
func (db *DB) DeleteRun(ctx context.Context, mainFile string) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		var mainID int64
		err := tx.QueryRowContext(ctx, `SELECT file_id FROM files WHERE path = ?`, mainFile).Scan(&mainID)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		return deleteRunTx(ctx, tx, mainID)
	})
}

// FilePaths returns every stored path with its ID, for preloading a
// filepaths.Cache so IDs stay stable across runs.
func (db *DB) FilePaths(ctx context.Context) ([]filepaths.Entry, error) {
	rows, err := db.Query(ctx, `SELECT file_id, path FROM files ORDER BY file_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var entries []filepaths.Entry
	for rows.Next() {
		var e filepaths.Entry
		if err := rows.Scan(&e.ID, &e.Path); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MainFiles lists stored runs ordered by main file path.
func (db *DB) MainFiles(ctx context.Context) ([]Run, error) {
	rows, err := db.Query(ctx, `
		SELECT r.run_id, f.path, r.started_at, r.finished_at
		FROM collection_runs r JOIN files f ON f.file_id = r.main_file_id
		ORDER BY f.path
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		if err := rows.Scan(&r.ID, &r.MainFile, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		r.FinishedAt = time.UnixMilli(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (db *DB) runID(ctx context.Context, mainFile string) (string, error) {
	var id string
	err := db.QueryRow(ctx, `
		SELECT r.run_id FROM collection_runs r JOIN files f ON f.file_id = r.main_file_id
		WHERE f.path = ?
	`, mainFile).Scan(&id)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%s: %w", mainFile, ErrRunNotFound)
	}
	return id, err
}

// Symbols returns catalogue rows named name, or all rows when name is empty.
func (db *DB) Symbols(ctx context.Context, name string) ([]Symbol, error) {
	query := `SELECT usr, name FROM symbols`
	var args []any
	if name != "" {
		query += ` WHERE name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY name, usr`

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Symbol
	for rows.Next() {
		var s Symbol
		if err := rows.Scan(&s.USR, &s.Name); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Locations returns every stored reference to usr across runs.
func (db *DB) Locations(ctx context.Context, usr string) ([]Location, error) {
	rows, err := db.Query(ctx, `
		SELECT l.usr, f.path, l.line, l.col, l.role, m.path
		FROM locations l
		JOIN files f ON f.file_id = l.file_id
		JOIN collection_runs r ON r.run_id = l.run_id
		JOIN files m ON m.file_id = r.main_file_id
		WHERE l.usr = ?
		ORDER BY m.path, l.seq
	`, usr)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Location
	for rows.Next() {
		var loc Location
		var role string
		if err := rows.Scan(&loc.USR, &loc.Path, &loc.Line, &loc.Column, &role, &loc.MainFile); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		if loc.Role, err = macros.ParseSymbolRole(role); err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

// IncludedFiles returns the included-file set of mainFile in inclusion order.
func (db *DB) IncludedFiles(ctx context.Context, mainFile string) ([]string, error) {
	runID, err := db.runID(ctx, mainFile)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, `
		SELECT f.path FROM included_files i JOIN files f ON f.file_id = i.file_id
		WHERE i.run_id = ? ORDER BY i.seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query included files: %w", err)
	}
	defer rows.Close() //nolint:errcheck
	return scanStrings(rows)
}

// UsedDefines returns the used-define set of mainFile ordered by name.
func (db *DB) UsedDefines(ctx context.Context, mainFile string) ([]UsedDefine, error) {
	runID, err := db.runID(ctx, mainFile)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, `
		SELECT u.name, COALESCE(f.path, '')
		FROM used_defines u LEFT JOIN files f ON f.file_id = u.file_id
		WHERE u.run_id = ?
		ORDER BY u.name, COALESCE(f.path, '')
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query used defines: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []UsedDefine
	for rows.Next() {
		var u UsedDefine
		if err := rows.Scan(&u.Name, &u.Path); err != nil {
			return nil, fmt.Errorf("failed to scan used define: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// placeholders returns "?, ?, ..." for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// MainFilesUsingDefines returns main files whose used-define set contains
// any of names.
func (db *DB) MainFilesUsingDefines(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}
	rows, err := db.Query(ctx, `
		SELECT DISTINCT m.path
		FROM used_defines u
		JOIN collection_runs r ON r.run_id = u.run_id
		JOIN files m ON m.file_id = r.main_file_id
		WHERE u.name IN (`+placeholders(len(names))+`)
		ORDER BY m.path
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query used defines: %w", err)
	}
	defer rows.Close() //nolint:errcheck
	return scanStrings(rows)
}

// MainFilesIncluding returns main files that are, or include, any of paths.
func (db *DB) MainFilesIncluding(ctx context.Context, paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	args := make([]any, 0, 2*len(paths))
	for _, p := range paths {
		args = append(args, p)
	}
	for _, p := range paths {
		args = append(args, p)
	}
	ph := placeholders(len(paths))
	rows, err := db.Query(ctx, `
		SELECT m.path
		FROM collection_runs r JOIN files m ON m.file_id = r.main_file_id
		WHERE m.path IN (`+ph+`)
		UNION
		SELECT m.path
		FROM included_files i
		JOIN files f ON f.file_id = i.file_id
		JOIN collection_runs r ON r.run_id = i.run_id
		JOIN files m ON m.file_id = r.main_file_id
		WHERE f.path IN (`+ph+`)
		ORDER BY 1
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query included files: %w", err)
	}
	defer rows.Close() //nolint:errcheck
	return scanStrings(rows)
}
