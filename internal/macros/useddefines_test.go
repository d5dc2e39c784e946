package macros

import (
	"reflect"
	"testing"
)

type lookupMap map[string]*MacroInfo

func (m lookupMap) MacroInfo(name string) *MacroInfo { return m[name] }

func TestUsedDefinesInsert(t *testing.T) {
	var defs UsedDefines
	inputs := []UsedDefine{
		{"C", 1}, {"A", 2}, {"A", 1}, {"C", 1}, {"B", 1}, {"A", 2},
	}
	for _, in := range inputs {
		defs.Insert(in)
	}

	want := UsedDefines{{"A", 1}, {"A", 2}, {"B", 1}, {"C", 1}}
	if !reflect.DeepEqual(defs, want) {
		t.Errorf("got %v, want %v", defs, want)
	}
	if !defs.IsSorted() {
		t.Error("set is not strictly sorted")
	}
	if defs.Insert(UsedDefine{"B", 1}) {
		t.Error("duplicate insert reported as new")
	}
}

func TestMergeUsedDefines(t *testing.T) {
	tests := []struct {
		name      string
		confirmed UsedDefines
		maybe     UsedDefines
		want      UsedDefines
	}{
		{
			name:      "interleave",
			confirmed: UsedDefines{{"A", 1}, {"C", 1}},
			maybe:     UsedDefines{{"B", 1}},
			want:      UsedDefines{{"A", 1}, {"B", 1}, {"C", 1}},
		},
		{
			name:      "empty maybe",
			confirmed: UsedDefines{{"A", 1}},
			want:      UsedDefines{{"A", 1}},
		},
		{
			name:  "empty confirmed",
			maybe: UsedDefines{{"A", 1}, {"Z", 3}},
			want:  UsedDefines{{"A", 1}, {"Z", 3}},
		},
		{
			name:      "same name tested defined and undefined",
			confirmed: UsedDefines{{"F", 1}, {"G", 2}},
			maybe:     UsedDefines{{"F", 1}, {"F", 2}},
			want:      UsedDefines{{"F", 1}, {"F", 2}, {"G", 2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeUsedDefines(tt.confirmed, tt.maybe)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterHeaderGuards(t *testing.T) {
	maybe := UsedDefines{{"FEATURE_X", 1}, {"GONE", 1}, {"GUARD_H", 1}, {"PLAIN", 2}}
	lookup := lookupMap{
		"GUARD_H": {Name: "GUARD_H", UsedForHeaderGuard: true},
		"PLAIN":   {Name: "PLAIN"},
	}

	got := filterHeaderGuards(maybe, lookup)
	want := UsedDefines{{"FEATURE_X", 1}, {"GONE", 1}, {"PLAIN", 2}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestResolveUsedDefinesDropsExports(t *testing.T) {
	confirmed := UsedDefines{{"MYLIB_EXPORT", 1}, {"MYLIB_FLAG", 1}}
	maybe := UsedDefines{{"Q_DECL_EXPORT_X", 2}, {"export_lower", 2}}

	got := ResolveUsedDefines(confirmed, maybe, lookupMap{})
	want := UsedDefines{{"MYLIB_FLAG", 1}, {"export_lower", 2}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
