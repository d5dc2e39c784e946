package scip

import (
	"path/filepath"
	"testing"

	scippb "github.com/sourcegraph/scip/bindings/go/scip"

	"macrodex/internal/errors"
	"macrodex/internal/filepaths"
	"macrodex/internal/macros"
)

func sampleUnits(t *testing.T, root string) ([]Unit, *filepaths.Cache) {
	t.Helper()
	cache := filepaths.NewCache()
	id := func(name string) macros.FileID {
		fid, err := cache.FilePathID(filepath.Join(root, name))
		if err != nil {
			t.Fatal(err)
		}
		return fid
	}
	hdr := id("cfg.h")
	symbols := macros.SymbolEntries{1: {USR: "c:cfg.h@1:9@macro@CFG", Name: "CFG"}}
	def := macros.SourceLocationEntry{Symbol: 1, File: hdr, Line: 1, Column: 9, Role: macros.RoleDefinition}

	one := Unit{MainFile: filepath.Join(root, "one.c"), Result: macros.Result{
		Symbols: symbols,
		Locations: macros.SourceLocationEntries{
			def,
			{Symbol: 1, File: id("one.c"), Line: 3, Column: 8, Role: macros.RoleUsage},
			{Symbol: 7, File: id("one.c"), Line: 4, Column: 1, Role: macros.RoleUsage},
		},
	}}
	two := Unit{MainFile: filepath.Join(root, "two.cpp"), Result: macros.Result{
		Symbols: symbols,
		Locations: macros.SourceLocationEntries{
			def,
			{Symbol: 1, File: id("two.cpp"), Line: 2, Column: 8, Role: macros.RoleUndefinition},
		},
	}}
	return []Unit{one, two}, cache
}

func TestSymbolString(t *testing.T) {
	tests := []struct {
		usr  string
		want string
	}{
		{"c:a.h@1:9@macro@X", "macrodex . . . `c:a.h@1:9@macro@X`!"},
		{"c:we`ird.h@1:1@macro@Y", "macrodex . . . `c:we``ird.h@1:1@macro@Y`!"},
	}
	for _, tt := range tests {
		if got := SymbolString(tt.usr); got != tt.want {
			t.Errorf("SymbolString(%q) = %q, want %q", tt.usr, got, tt.want)
		}
	}
}

func TestExport(t *testing.T) {
	root := t.TempDir()
	units, cache := sampleUnits(t, root)
	index := Export(units, cache, Options{ProjectRoot: root})

	if index.Metadata.ToolInfo.Name != Scheme {
		t.Errorf("tool name = %q", index.Metadata.ToolInfo.Name)
	}
	var paths []string
	for _, doc := range index.Documents {
		paths = append(paths, doc.RelativePath)
	}
	if len(paths) != 3 || paths[0] != "cfg.h" || paths[1] != "one.c" || paths[2] != "two.cpp" {
		t.Fatalf("documents = %v", paths)
	}

	hdr := index.Documents[0]
	if len(hdr.Occurrences) != 1 {
		t.Fatalf("cfg.h occurrences = %d, want the shared definition once", len(hdr.Occurrences))
	}
	occ := hdr.Occurrences[0]
	if occ.SymbolRoles != int32(scippb.SymbolRole_Definition) {
		t.Errorf("roles = %d, want definition", occ.SymbolRoles)
	}
	if want := []int32{0, 8, 11}; len(occ.Range) != 3 || occ.Range[0] != want[0] || occ.Range[1] != want[1] || occ.Range[2] != want[2] {
		t.Errorf("range = %v, want %v", occ.Range, want)
	}
	if len(hdr.Symbols) != 1 || hdr.Symbols[0].DisplayName != "CFG" || hdr.Symbols[0].Kind != scippb.SymbolInformation_Macro {
		t.Errorf("symbols = %v", hdr.Symbols)
	}

	// The location of symbol 7 has no catalogue entry.
	if n := len(index.Documents[1].Occurrences); n != 1 {
		t.Errorf("one.c occurrences = %d, want 1", n)
	}
	if index.Documents[2].Language != "cpp" {
		t.Errorf("two.cpp language = %q", index.Documents[2].Language)
	}
	if roles := index.Documents[2].Occurrences[0].SymbolRoles; roles != int32(scippb.SymbolRole_WriteAccess) {
		t.Errorf("undefinition roles = %d", roles)
	}
}

func TestExportSkipsFilesOutsideRoot(t *testing.T) {
	root := t.TempDir()
	units, cache := sampleUnits(t, root)
	index := Export(units, cache, Options{ProjectRoot: filepath.Join(root, "sub")})
	if len(index.Documents) != 0 {
		t.Errorf("documents = %d, want 0", len(index.Documents))
	}
}

func TestWriteLoad(t *testing.T) {
	root := t.TempDir()
	units, cache := sampleUnits(t, root)
	index := Export(units, cache, Options{ProjectRoot: root})

	for _, compress := range []bool{false, true} {
		path := filepath.Join(root, "out", "index.scip")
		if compress {
			path += ".zst"
		}
		if err := Write(path, index, compress); err != nil {
			t.Fatalf("Write(compress=%v): %v", compress, err)
		}
		loaded, err := Load(path)
		if err != nil {
			t.Fatalf("Load(compress=%v): %v", compress, err)
		}
		if len(loaded.Documents) != len(index.Documents) {
			t.Errorf("compress=%v: documents = %d, want %d", compress, len(loaded.Documents), len(index.Documents))
		}
		if loaded.Documents[0].Occurrences[0].Symbol != index.Documents[0].Occurrences[0].Symbol {
			t.Errorf("compress=%v: symbol mismatch", compress)
		}
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.scip"))
	if errors.CodeOf(err) != errors.IndexMissing {
		t.Errorf("CodeOf = %v, want %v", errors.CodeOf(err), errors.IndexMissing)
	}
}
