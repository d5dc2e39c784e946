package frontend

import (
	"reflect"
	"testing"

	"macrodex/internal/macros"
)

type macroSet map[string]*macros.MacroInfo

func (m macroSet) lookup(name string) *macros.MacroInfo { return m[name] }

func objectMacro(name, body string) *macros.MacroInfo {
	return &macros.MacroInfo{Name: name, Body: body}
}

func TestEvalCondition(t *testing.T) {
	set := macroSet{
		"ONE":      objectMacro("ONE", "1"),
		"VERSION":  objectMacro("VERSION", "0x0302"),
		"ALIAS":    objectMacro("ALIAS", "VERSION"),
		"SELF":     objectMacro("SELF", "SELF + 1"),
		"HAS_ONE":  objectMacro("HAS_ONE", "defined(ONE)"),
		"EMPTY":    objectMacro("EMPTY", ""),
		"MAX":      {Name: "MAX", FunctionLike: true, Params: []string{"a", "b"}, Body: "((a) > (b) ? (a) : (b))"},
		"FIRST":    {Name: "FIRST", FunctionLike: true, Params: []string{"..."}, Body: "__VA_ARGS__"},
		"COMMENTS": objectMacro("COMMENTS", "2 /* two */"),
	}

	tests := []struct {
		expr    string
		want    bool
		wantErr bool
	}{
		{"1", true, false},
		{"0", false, false},
		{"defined(ONE)", true, false},
		{"defined ONE && !defined(MISSING)", true, false},
		{"VERSION >= 0x0300", true, false},
		{"ALIAS == 770", true, false},
		{"UNDEFINED_NAME", false, false},
		{"SELF == 1", true, false},
		{"HAS_ONE", true, false},
		{"MAX(2, 7) == 7", true, false},
		{"FIRST(3)", true, false},
		{"FIRST(3, 4)", false, true},
		{"MAX", false, false},
		{"(1 << 4) == 16 && 7 % 4 == 3", true, false},
		{"-1 < 0 ? 'a' == 97 : 0", true, false},
		{"~0 == -1", true, false},
		{`'\'' == 39`, true, false},
		{`'\\' == 92 && '\n' == 10`, true, false},
		{`'\x41' == 65`, true, false},
		{`'\'`, false, true},
		{"0 && 1 / 0", false, false},
		{"1 || 1 / 0", true, false},
		{"1 / 0", false, true},
		{"COMMENTS == 2 // trailing", true, false},
		{"201710L > 199901L", true, false},
		{"true", true, false},
		{"(1", false, true},
		{"1 2", false, true},
		{"defined(", false, true},
		{"EMPTY", false, true},
		{"\"str\"", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := evalCondition(tt.expr, condHooks{lookup: set.lookup})
			if (err != nil) != tt.wantErr {
				t.Fatalf("evalCondition(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("evalCondition(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvalConditionEvents(t *testing.T) {
	set := macroSet{
		"A":   objectMacro("A", "B + 1"),
		"B":   objectMacro("B", "2"),
		"MAX": {Name: "MAX", FunctionLike: true, Params: []string{"x", "y"}, Body: "x"},
	}
	type event struct {
		kind string
		name string
		off  int
	}
	var events []event
	hooks := condHooks{
		lookup:  set.lookup,
		defined: func(name string, off int) { events = append(events, event{"defined", name, off}) },
		expands: func(name string, off int) { events = append(events, event{"expands", name, off}) },
	}

	//           0         1         2
	//           0123456789012345678901234567
	text := "defined(C) || A > MAX(B, 1)"
	if _, err := evalCondition(text, hooks); err != nil {
		t.Fatalf("evalCondition: %v", err)
	}

	want := []event{
		{"defined", "C", 8},
		{"expands", "A", 14},
		{"expands", "MAX", 18},
	}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %+v, want %+v", events, want)
	}
}

func TestParseIntLiteral(t *testing.T) {
	tests := map[string]int64{
		"42": 42, "0x2A": 42, "052": 42, "0b101010": 42, "42UL": 42, "0": 0,
	}
	for in, want := range tests {
		got, err := parseIntLiteral(in)
		if err != nil || got != want {
			t.Errorf("parseIntLiteral(%q) = %d, %v; want %d", in, got, err, want)
		}
	}
	if _, err := parseIntLiteral("1.5"); err == nil {
		t.Error("expected error for floating literal")
	}
}

func TestSplitMacroName(t *testing.T) {
	name, params, fn := splitMacroName("MAX(a, b)")
	if name != "MAX" || !fn || !reflect.DeepEqual(params, []string{"a", "b"}) {
		t.Errorf("got %q %v %v", name, params, fn)
	}
	name, params, fn = splitMacroName("PLAIN")
	if name != "PLAIN" || fn || params != nil {
		t.Errorf("got %q %v %v", name, params, fn)
	}
}

func TestLanguageForFile(t *testing.T) {
	if LanguageForFile("/src/a.c") != LangC || LanguageForFile("x.H") != LangC {
		t.Error("C files misclassified")
	}
	if LanguageForFile("/src/a.cpp") != LangCpp || LanguageForFile("b.HPP") != LangCpp {
		t.Error("C++ files misclassified")
	}
}
