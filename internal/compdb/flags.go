package compdb

import (
	"fmt"
	"strings"

	"macrodex/internal/paths"
)

// Define is one -D or -U option. Order matters: a later -U cancels an
// earlier -D of the same name.
type Define struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
	Undef bool   `json:"undef,omitempty"`
}

// ParseDefine parses NAME, NAME=VALUE or NAME(args)=BODY. A bare NAME is
// defined to 1, as compilers do.
func ParseDefine(s string) Define {
	name, value, ok := strings.Cut(s, "=")
	if !ok {
		value = "1"
	}
	return Define{Name: name, Value: value}
}

// Flags are the preprocessor options of a translation unit.
type Flags struct {
	IncludePaths   []string `json:"includePaths,omitempty"`
	QuotePaths     []string `json:"quotePaths,omitempty"`
	SystemPaths    []string `json:"systemPaths,omitempty"`
	Defines        []Define `json:"defines,omitempty"`
	ForcedIncludes []string `json:"forcedIncludes,omitempty"`
}

// Merge returns f followed by other. Search paths of other are searched
// after those of f; defines of other are applied after those of f.
func (f Flags) Merge(other Flags) Flags {
	return Flags{
		IncludePaths:   appendUnique(f.IncludePaths, other.IncludePaths),
		QuotePaths:     appendUnique(f.QuotePaths, other.QuotePaths),
		SystemPaths:    appendUnique(f.SystemPaths, other.SystemPaths),
		Defines:        append(append([]Define(nil), f.Defines...), other.Defines...),
		ForcedIncludes: append(append([]string(nil), f.ForcedIncludes...), other.ForcedIncludes...),
	}
}

func appendUnique(a, b []string) []string {
	out := append([]string(nil), a...)
	seen := make(map[string]bool, len(a)+len(b))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// optionsWithValue take their value either attached (-Ifoo) or as the next
// argument (-I foo).
var optionsWithValue = []string{"-iquote", "-isystem", "-idirafter", "-include", "-I", "-D", "-U"}

// ParseArguments extracts preprocessor flags from a compiler argument vector.
// Relative paths are resolved against dir. Unrelated arguments are ignored.
func ParseArguments(dir string, args []string) Flags {
	var f Flags
	for i := 0; i < len(args); i++ {
		arg := args[i]
		opt, value, ok := splitOption(arg)
		if !ok {
			continue
		}
		if value == "" {
			if i+1 >= len(args) {
				break
			}
			i++
			value = args[i]
		}
		switch opt {
		case "-I":
			f.IncludePaths = append(f.IncludePaths, paths.ResolveIn(dir, value))
		case "-iquote":
			f.QuotePaths = append(f.QuotePaths, paths.ResolveIn(dir, value))
		case "-isystem", "-idirafter":
			f.SystemPaths = append(f.SystemPaths, paths.ResolveIn(dir, value))
		case "-include":
			f.ForcedIncludes = append(f.ForcedIncludes, paths.ResolveIn(dir, value))
		case "-D":
			f.Defines = append(f.Defines, ParseDefine(value))
		case "-U":
			f.Defines = append(f.Defines, Define{Name: value, Undef: true})
		}
	}
	return f
}

func splitOption(arg string) (opt, value string, ok bool) {
	for _, o := range optionsWithValue {
		if strings.HasPrefix(arg, o) {
			return o, arg[len(o):], true
		}
	}
	return "", "", false
}

// SplitCommand splits a shell command line into arguments, honouring single
// quotes, double quotes and backslash escapes.
func SplitCommand(cmd string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inArg   bool
		quote   rune
		escaped bool
	)
	for _, r := range cmd {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inArg = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inArg = true
		case r == ' ' || r == '\t' || r == '\n':
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote in command", quote)
	}
	if escaped {
		return nil, fmt.Errorf("trailing backslash in command")
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args, nil
}
