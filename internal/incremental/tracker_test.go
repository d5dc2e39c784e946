package incremental

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"macrodex/internal/filepaths"
	"macrodex/internal/macros"
	"macrodex/internal/storage"
)

type fixture struct {
	tracker *Tracker
	root    string
}

// setup stores two runs: one.c includes shared.h and tests A; two.c includes
// nothing and tests B.
func setup(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	for _, name := range []string{"one.c", "two.c", "shared.h"} {
		if err := os.WriteFile(filepath.Join(root, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	db, err := storage.Open(filepath.Join(root, ".macrodex", "macrodex.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	cache := filepaths.NewCache()
	id := func(name string) macros.FileID {
		fid, err := cache.FilePathID(filepath.Join(root, name))
		if err != nil {
			t.Fatal(err)
		}
		return fid
	}
	finished := time.Now().Add(time.Hour)
	runs := []storage.RunRecord{
		{
			MainFile:   filepath.Join(root, "one.c"),
			FinishedAt: finished,
			Result: macros.Result{
				Files:       macros.FileIDs{id("shared.h")},
				UsedDefines: macros.UsedDefines{{Name: "A", File: id("one.c")}},
			},
		},
		{
			MainFile:   filepath.Join(root, "two.c"),
			FinishedAt: finished,
			Result: macros.Result{
				UsedDefines: macros.UsedDefines{{Name: "B", File: id("two.c")}},
			},
		},
	}
	for _, rec := range runs {
		if _, err := db.SaveRun(context.Background(), rec, cache); err != nil {
			t.Fatal(err)
		}
	}
	return fixture{tracker: NewTracker(db, nil), root: root}
}

func (f fixture) path(name string) string { return filepath.Join(f.root, name) }

func TestAffectedByDefines(t *testing.T) {
	f := setup(t)
	tests := []struct {
		names []string
		want  []string
	}{
		{[]string{"A"}, []string{f.path("one.c")}},
		{[]string{"B", "A", "A"}, []string{f.path("one.c"), f.path("two.c")}},
		{[]string{"C"}, nil},
		{nil, nil},
	}
	for _, tt := range tests {
		got, err := f.tracker.AffectedByDefines(context.Background(), tt.names)
		if err != nil {
			t.Fatal(err)
		}
		if !equal(got, tt.want) {
			t.Errorf("AffectedByDefines(%v) = %v, want %v", tt.names, got, tt.want)
		}
	}
}

func TestAffectedByFiles(t *testing.T) {
	f := setup(t)
	got, err := f.tracker.AffectedByFiles(context.Background(), []string{f.path("shared.h")})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{f.path("one.c")}; !equal(got, want) {
		t.Errorf("AffectedByFiles(shared.h) = %v, want %v", got, want)
	}

	got, _ = f.tracker.AffectedByFiles(context.Background(), []string{f.path("two.c")})
	if want := []string{f.path("two.c")}; !equal(got, want) {
		t.Errorf("AffectedByFiles(two.c) = %v, want %v", got, want)
	}
}

func TestAffectedUnion(t *testing.T) {
	f := setup(t)
	got, err := f.tracker.Affected(context.Background(), Changes{
		Defines: []string{"B"},
		Files:   []string{f.path("shared.h")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{f.path("one.c"), f.path("two.c")}; !equal(got, want) {
		t.Errorf("Affected = %v, want %v", got, want)
	}
}

func TestStale(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	stale, err := f.tracker.Stale(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 0 {
		t.Fatalf("Stale = %v, want none", stale)
	}

	later := time.Now().Add(2 * time.Hour)
	if err := os.Chtimes(f.path("shared.h"), later, later); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(f.path("two.c")); err != nil {
		t.Fatal(err)
	}

	stale, err = f.tracker.Stale(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 2 {
		t.Fatalf("Stale = %v, want both runs", stale)
	}
	if stale[0].MainFile != f.path("one.c") || stale[0].Files[0].ChangeType != ChangeModified {
		t.Errorf("stale[0] = %+v", stale[0])
	}
	if stale[1].MainFile != f.path("two.c") || stale[1].Files[0].ChangeType != ChangeDeleted {
		t.Errorf("stale[1] = %+v", stale[1])
	}
}

func TestDedupe(t *testing.T) {
	got := dedupe([]string{"b", "a", "b", "c", "a"})
	if want := []string{"a", "b", "c"}; !equal(got, want) {
		t.Errorf("dedupe = %v, want %v", got, want)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
