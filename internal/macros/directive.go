package macros

// File is a front-end handle for an opened file.
type File struct {
	Path string
}

// Location is a front-end position. A nil File means the position is not in
// a file (command line, builtin or scratch buffer).
type Location struct {
	File   *File
	Line   uint32
	Column uint32
}

// IsFile reports whether l points into a real file.
func (l Location) IsFile() bool { return l.File != nil }

// Token is a macro name as it appeared in the source.
type Token struct {
	Name     string
	Location Location
}

// MacroInfo describes one definition of a macro.
type MacroInfo struct {
	Name         string
	Location     Location
	FunctionLike bool
	Params       []string
	Body         string

	// UsedForHeaderGuard is set by the front-end when the definition is the
	// controlling macro of an include guard.
	UsedForHeaderGuard bool
}

// DirectiveKind distinguishes #define from #undef directives.
type DirectiveKind uint8

const (
	DefineDirective DirectiveKind = iota + 1
	UndefineDirective
)

// MacroDirective is one link of a macro's redefinition chain, newest first.
// Info is nil for #undef directives.
type MacroDirective struct {
	Kind     DirectiveKind
	Info     *MacroInfo
	Location Location
	Previous *MacroDirective
}

// MacroDefinition is the state of a macro name at an event. Both fields are
// nil when the name is not currently defined.
type MacroDefinition struct {
	LocalDirective *MacroDirective
	Info           *MacroInfo
}

// MacroLookup answers which definition of a name is current.
type MacroLookup interface {
	MacroInfo(name string) *MacroInfo
}

// Table tracks the directive chains of a translation unit the way a
// preprocessor does. It implements MacroLookup.
type Table struct {
	heads map[string]*MacroDirective
}

func NewTable() *Table {
	return &Table{heads: make(map[string]*MacroDirective)}
}

// Define appends a #define directive to info.Name's chain.
func (t *Table) Define(info *MacroInfo) *MacroDirective {
	d := &MacroDirective{
		Kind:     DefineDirective,
		Info:     info,
		Location: info.Location,
		Previous: t.heads[info.Name],
	}
	t.heads[info.Name] = d
	return d
}

// Undefine appends an #undef directive and returns the definition that was
// active before it. Undefining a name that is not defined changes nothing.
func (t *Table) Undefine(name string, loc Location) MacroDefinition {
	def := t.Definition(name)
	if def.Info == nil {
		return def
	}
	t.heads[name] = &MacroDirective{
		Kind:     UndefineDirective,
		Location: loc,
		Previous: t.heads[name],
	}
	return def
}

// Definition returns the current definition of name.
func (t *Table) Definition(name string) MacroDefinition {
	d := t.heads[name]
	if d == nil || d.Info == nil {
		return MacroDefinition{}
	}
	return MacroDefinition{LocalDirective: d, Info: d.Info}
}

func (t *Table) MacroInfo(name string) *MacroInfo {
	return t.Definition(name).Info
}

func (t *Table) IsDefined(name string) bool {
	return t.MacroInfo(name) != nil
}

// Chain returns the newest directive for name, defined or not.
func (t *Table) Chain(name string) *MacroDirective {
	return t.heads[name]
}
