// Package frontend is a reference C/C++ preprocessor built on tree-sitter.
// It walks the directives of a translation unit in order, keeps the macro
// table, resolves includes, evaluates conditionals and reports every event
// to a macros.Callbacks.
package frontend

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	"macrodex/internal/compdb"
)

// DefaultMaxIncludeDepth matches common compiler limits.
const DefaultMaxIncludeDepth = 200

// ErrNoCGO is returned when the front-end is unavailable because the binary
// was built without cgo.
var ErrNoCGO = errors.New("preprocessing requires CGO (tree-sitter)")

// Options configures a Preprocessor.
type Options struct {
	Flags           compdb.Flags
	MaxIncludeDepth int
	// NoBuiltins disables the __STDC__ / __cplusplus predefines.
	NoBuiltins bool
	Logger     *slog.Logger
}

// Language is the grammar used for a translation unit.
type Language string

const (
	LangC   Language = "c"
	LangCpp Language = "cpp"
)

var cppExtensions = map[string]bool{
	".cc": true, ".cpp": true, ".cxx": true, ".c++": true,
	".hh": true, ".hpp": true, ".hxx": true, ".ipp": true,
	".mm": true,
}

// LanguageForFile picks the grammar from a main file's extension.
func LanguageForFile(path string) Language {
	if cppExtensions[strings.ToLower(filepath.Ext(path))] {
		return LangCpp
	}
	return LangC
}

func builtinDefines(lang Language) []compdb.Define {
	defs := []compdb.Define{
		{Name: "__STDC__", Value: "1"},
		{Name: "__STDC_HOSTED__", Value: "1"},
	}
	if lang == LangCpp {
		return append(defs, compdb.Define{Name: "__cplusplus", Value: "201703L"})
	}
	return append(defs, compdb.Define{Name: "__STDC_VERSION__", Value: "201710L"})
}

// splitMacroName separates NAME(a,b) into its name and parameters.
func splitMacroName(s string) (name string, params []string, functionLike bool) {
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return s, nil, false
	}
	inner := strings.TrimSpace(s[open+1 : len(s)-1])
	if inner != "" {
		for _, p := range strings.Split(inner, ",") {
			params = append(params, strings.TrimSpace(p))
		}
	}
	return s[:open], params, true
}
