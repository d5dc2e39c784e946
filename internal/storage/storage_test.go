package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"macrodex/internal/filepaths"
	"macrodex/internal/macros"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), ".macrodex", "macrodex.db"), nil)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	})
	return db
}

// sampleRun builds the result of main.c which includes a.h and tests FOO
// (defined in a.h) and BAR (never defined).
func sampleRun(t *testing.T, cache *filepaths.Cache, root string) RunRecord {
	t.Helper()
	id := func(name string) macros.FileID {
		fid, err := cache.FilePathID(filepath.Join(root, name))
		if err != nil {
			t.Fatal(err)
		}
		return fid
	}
	mainID, aID := id("main.c"), id("a.h")
	now := time.Now()
	return RunRecord{
		MainFile:   filepath.Join(root, "main.c"),
		StartedAt:  now.Add(-time.Second),
		FinishedAt: now,
		Result: macros.Result{
			Symbols: macros.SymbolEntries{
				1: {USR: "c:a.h@1:9@macro@FOO", Name: "FOO"},
			},
			Locations: macros.SourceLocationEntries{
				{Symbol: 1, File: aID, Line: 1, Column: 9, Role: macros.RoleDefinition},
				{Symbol: 1, File: mainID, Line: 2, Column: 8, Role: macros.RoleUsage},
				{Symbol: 2, File: mainID, Line: 3, Column: 8, Role: macros.RoleUsage},
			},
			Files: macros.FileIDs{aID},
			UsedDefines: macros.UsedDefines{
				{Name: "BAR", File: mainID},
				{Name: "FOO", File: mainID},
				{Name: "GLOBAL", File: 0},
			},
		},
	}
}

func TestDatabaseInitialization(t *testing.T) {
	db := setupTestDB(t)

	if _, err := os.Stat(db.Path()); err != nil {
		t.Fatalf("Database file was not created: %v", err)
	}
	version, err := db.getSchemaVersion()
	if err != nil {
		t.Fatalf("Failed to get schema version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("Expected schema version %d, got %d", currentSchemaVersion, version)
	}
}

func TestReopenExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	db, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db, err = Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	if v, _ := db.getSchemaVersion(); v != currentSchemaVersion {
		t.Errorf("schema version after reopen = %d", v)
	}
}

func TestSaveRunAndRead(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	root := t.TempDir()
	cache := filepaths.NewCache()
	rec := sampleRun(t, cache, root)

	runID, err := db.SaveRun(ctx, rec, cache)
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if runID == "" {
		t.Fatal("empty run ID")
	}

	syms, err := db.Symbols(ctx, "FOO")
	if err != nil {
		t.Fatal(err)
	}
	if len(syms) != 1 || syms[0].USR != "c:a.h@1:9@macro@FOO" {
		t.Errorf("Symbols(FOO) = %v", syms)
	}

	locs, err := db.Locations(ctx, "c:a.h@1:9@macro@FOO")
	if err != nil {
		t.Fatal(err)
	}
	// The location of symbol 2 has no catalogue entry and is not stored.
	if len(locs) != 2 {
		t.Fatalf("Locations = %v, want 2", locs)
	}
	if locs[0].Role != macros.RoleDefinition || locs[0].Path != filepath.Join(root, "a.h") {
		t.Errorf("first location = %+v", locs[0])
	}
	if locs[1].Role != macros.RoleUsage || locs[1].Line != 2 || locs[1].Column != 8 {
		t.Errorf("second location = %+v", locs[1])
	}
	if locs[1].MainFile != rec.MainFile {
		t.Errorf("MainFile = %q, want %q", locs[1].MainFile, rec.MainFile)
	}

	files, err := db.IncludedFiles(ctx, rec.MainFile)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0] != filepath.Join(root, "a.h") {
		t.Errorf("IncludedFiles = %v", files)
	}

	used, err := db.UsedDefines(ctx, rec.MainFile)
	if err != nil {
		t.Fatal(err)
	}
	want := []UsedDefine{
		{Name: "BAR", Path: rec.MainFile},
		{Name: "FOO", Path: rec.MainFile},
		{Name: "GLOBAL"},
	}
	if len(used) != len(want) {
		t.Fatalf("UsedDefines = %v, want %v", used, want)
	}
	for i := range want {
		if used[i] != want[i] {
			t.Errorf("UsedDefines[%d] = %v, want %v", i, used[i], want[i])
		}
	}
}

func TestSaveRunReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	root := t.TempDir()
	cache := filepaths.NewCache()
	rec := sampleRun(t, cache, root)

	first, err := db.SaveRun(ctx, rec, cache)
	if err != nil {
		t.Fatal(err)
	}
	rec.Result.Files = nil
	rec.Result.UsedDefines = macros.UsedDefines{{Name: "ONLY"}}
	second, err := db.SaveRun(ctx, rec, cache)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Error("expected a new run ID")
	}

	runs, err := db.MainFiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != second {
		t.Fatalf("MainFiles = %v, want only run %s", runs, second)
	}
	files, _ := db.IncludedFiles(ctx, rec.MainFile)
	if len(files) != 0 {
		t.Errorf("IncludedFiles after replace = %v", files)
	}
	used, _ := db.UsedDefines(ctx, rec.MainFile)
	if len(used) != 1 || used[0].Name != "ONLY" {
		t.Errorf("UsedDefines after replace = %v", used)
	}
	locs, _ := db.Locations(ctx, "c:a.h@1:9@macro@FOO")
	if len(locs) != 2 {
		t.Errorf("Locations after replace = %d, want 2", len(locs))
	}
}

func TestUnknownMainFile(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.UsedDefines(context.Background(), "/nowhere/main.c")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("error = %v, want ErrRunNotFound", err)
	}
}

func TestAffectedQueries(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	root := t.TempDir()
	cache := filepaths.NewCache()
	if _, err := db.SaveRun(ctx, sampleRun(t, cache, root), cache); err != nil {
		t.Fatal(err)
	}
	mainFile := filepath.Join(root, "main.c")

	got, err := db.MainFilesUsingDefines(ctx, []string{"BAR", "NOT_USED"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != mainFile {
		t.Errorf("MainFilesUsingDefines = %v", got)
	}

	got, err = db.MainFilesIncluding(ctx, []string{filepath.Join(root, "a.h")})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != mainFile {
		t.Errorf("MainFilesIncluding(a.h) = %v", got)
	}

	got, _ = db.MainFilesIncluding(ctx, []string{mainFile})
	if len(got) != 1 {
		t.Errorf("MainFilesIncluding(main.c) = %v", got)
	}
	got, _ = db.MainFilesIncluding(ctx, nil)
	if len(got) != 0 {
		t.Errorf("MainFilesIncluding(nil) = %v", got)
	}
}

func TestFilePathsPreload(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	root := t.TempDir()
	cache := filepaths.NewCache()
	if _, err := db.SaveRun(ctx, sampleRun(t, cache, root), cache); err != nil {
		t.Fatal(err)
	}

	entries, err := db.FilePaths(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("FilePaths = %v, want main.c and a.h", entries)
	}
	fresh := filepaths.NewCache()
	if err := fresh.Preload(entries); err != nil {
		t.Fatalf("Preload: %v", err)
	}
	for _, e := range entries {
		id, err := fresh.FilePathID(e.Path)
		if err != nil || id != e.ID {
			t.Errorf("FilePathID(%s) = %d, %v; want %d", e.Path, id, err, e.ID)
		}
	}
}

func TestDeleteRun(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	root := t.TempDir()
	cache := filepaths.NewCache()
	rec := sampleRun(t, cache, root)
	if _, err := db.SaveRun(ctx, rec, cache); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteRun(ctx, rec.MainFile); err != nil {
		t.Fatal(err)
	}
	runs, _ := db.MainFiles(ctx)
	if len(runs) != 0 {
		t.Errorf("runs after delete = %v", runs)
	}
	if err := db.DeleteRun(ctx, "/unknown.c"); err != nil {
		t.Errorf("DeleteRun(unknown) = %v", err)
	}
}
