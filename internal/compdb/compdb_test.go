package compdb

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{`cc -c a.c`, []string{"cc", "-c", "a.c"}, false},
		{`cc -DMSG="hello world" -I 'my dir'`, []string{"cc", "-DMSG=hello world", "-I", "my dir"}, false},
		{`cc -DQ=\"x\"  b.c`, []string{"cc", `-DQ="x"`, "b.c"}, false},
		{`cc ""`, []string{"cc", ""}, false},
		{`cc "open`, nil, true},
		{`cc \`, nil, true},
	}
	for _, tt := range tests {
		got, err := SplitCommand(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("SplitCommand(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitCommand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseArguments(t *testing.T) {
	args := []string{
		"clang", "-c", "-Iinclude", "-I", "/opt/inc",
		"-iquote", "q", "-isystem/usr/local/include",
		"-DFOO", "-DBAR=2", "-D", "BAZ=a=b", "-UFOO",
		"-include", "config.h", "-o", "main.o", "main.c",
	}
	f := ParseArguments("/build", args)

	want := Flags{
		IncludePaths:   []string{"/build/include", "/opt/inc"},
		QuotePaths:     []string{"/build/q"},
		SystemPaths:    []string{"/usr/local/include"},
		ForcedIncludes: []string{"/build/config.h"},
		Defines: []Define{
			{Name: "FOO", Value: "1"},
			{Name: "BAR", Value: "2"},
			{Name: "BAZ", Value: "a=b"},
			{Name: "FOO", Undef: true},
		},
	}
	for i := range want.IncludePaths {
		want.IncludePaths[i] = filepath.FromSlash(want.IncludePaths[i])
	}
	if !reflect.DeepEqual(f, want) {
		t.Errorf("ParseArguments:\n got %+v\nwant %+v", f, want)
	}
}

func TestParseArgumentsMissingValue(t *testing.T) {
	f := ParseArguments("/b", []string{"cc", "-I"})
	if len(f.IncludePaths) != 0 {
		t.Errorf("dangling -I should be ignored, got %v", f.IncludePaths)
	}
}

func TestFlagsMerge(t *testing.T) {
	a := Flags{IncludePaths: []string{"/a", "/b"}, Defines: []Define{{Name: "X", Value: "1"}}}
	b := Flags{IncludePaths: []string{"/b", "/c"}, Defines: []Define{{Name: "X", Undef: true}}}

	m := a.Merge(b)
	if !reflect.DeepEqual(m.IncludePaths, []string{"/a", "/b", "/c"}) {
		t.Errorf("IncludePaths = %v", m.IncludePaths)
	}
	if len(m.Defines) != 2 || !m.Defines[1].Undef {
		t.Errorf("Defines = %+v", m.Defines)
	}
	if len(a.IncludePaths) != 2 {
		t.Error("Merge must not modify the receiver")
	}
}

func writeDB(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, DefaultFileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write compdb: %v", err)
	}
	return path
}

func TestLoadAndUnits(t *testing.T) {
	dir := t.TempDir()
	path := writeDB(t, dir, `[
  {"directory": "/proj/build", "file": "../src/a.c", "arguments": ["cc", "-I../include", "-c", "../src/a.c"]},
  {"directory": "/proj/build", "file": "/proj/src/b.c", "command": "cc -DB=1 -c /proj/src/b.c"},
  {"directory": "/proj/build", "file": "../src/a.c", "arguments": ["cc", "-DSECOND", "-c", "../src/a.c"]},
  {"directory": "/proj/build", "file": "/proj/src/bad.c", "command": "cc \"unterminated"}
]`)

	db, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	units, skipped := db.Units()
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d: %+v", len(units), units)
	}
	if units[0].File != filepath.FromSlash("/proj/src/a.c") {
		t.Errorf("unit 0 file = %s", units[0].File)
	}
	if len(units[0].Flags.Defines) != 0 {
		t.Errorf("duplicate entry should not override the first: %+v", units[0].Flags)
	}
	if len(units[1].Flags.Defines) != 1 || units[1].Flags.Defines[0].Name != "B" {
		t.Errorf("unit 1 defines = %+v", units[1].Flags.Defines)
	}
	if len(skipped) != 1 {
		t.Errorf("expected one skipped entry, got %v", skipped)
	}
}

func TestLoadInvalid(t *testing.T) {
	path := writeDB(t, t.TempDir(), `{"not": "an array"}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFind(t *testing.T) {
	root := t.TempDir()
	if _, ok := Find(root, ""); ok {
		t.Fatal("expected no database in empty root")
	}

	if err := os.MkdirAll(filepath.Join(root, "build"), 0755); err != nil {
		t.Fatal(err)
	}
	writeDB(t, filepath.Join(root, "build"), "[]")
	got, ok := Find(root, "")
	if !ok || got != filepath.Join(root, "build", DefaultFileName) {
		t.Errorf("Find = %s, %v", got, ok)
	}

	custom := filepath.Join(root, "out")
	if err := os.MkdirAll(custom, 0755); err != nil {
		t.Fatal(err)
	}
	writeDB(t, custom, "[]")
	got, ok = Find(root, "out/compile_commands.json")
	if !ok || got != filepath.Join(custom, DefaultFileName) {
		t.Errorf("configured path should win, got %s", got)
	}
}
