//go:build cgo

package frontend

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"

	"macrodex/internal/compdb"
	"macrodex/internal/macros"
	"macrodex/internal/slogutil"
)

// IsAvailable reports whether the front-end can run in this build.
func IsAvailable() bool { return true }

// sourceFile is a parsed file, cached for the duration of one run.
type sourceFile struct {
	path   string
	handle *macros.File
	src    []byte
	tree   *sitter.Tree
	lines  []int

	// guard is the controlling macro when the whole file is wrapped in
	// #ifndef guard / #define guard / #endif.
	guard string
	// guardDefine is the start byte of a #define that directly follows a
	// leading #ifndef of the same name, or -1.
	guardDefine int
}

// position converts a byte offset to a 1-based line and column.
func (f *sourceFile) position(offset int) macros.Location {
	i := sort.Search(len(f.lines), func(i int) bool { return f.lines[i] > offset }) - 1
	if i < 0 {
		i = 0
	}
	return macros.Location{File: f.handle, Line: uint32(i + 1), Column: uint32(offset - f.lines[i] + 1)}
}

func (f *sourceFile) nodeLocation(n *sitter.Node) macros.Location {
	p := n.StartPoint()
	return macros.Location{File: f.handle, Line: p.Row + 1, Column: p.Column + 1}
}

func lineStarts(src []byte) []int {
	starts := []int{0}
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// Preprocessor walks one translation unit at a time. It implements
// macros.MacroLookup for the unit being processed. A Preprocessor is not safe
// for concurrent use; create one per worker.
type Preprocessor struct {
	opts   Options
	logger *slog.Logger
	parser *sitter.Parser
	search *HeaderSearch

	lang    Language
	table   *macros.Table
	cb      macros.Callbacks
	files   map[string]*sourceFile
	handles map[string]*macros.File
	once    map[string]bool
	depth   int
}

// New creates a Preprocessor.
func New(opts Options) *Preprocessor {
	if opts.MaxIncludeDepth <= 0 {
		opts.MaxIncludeDepth = DefaultMaxIncludeDepth
	}
	return &Preprocessor{
		opts:   opts,
		logger: slogutil.OrDiscard(opts.Logger),
		parser: sitter.NewParser(),
		search: NewHeaderSearch(opts.Flags),
		table:  macros.NewTable(),
	}
}

// MacroInfo returns the current definition of name.
func (p *Preprocessor) MacroInfo(name string) *macros.MacroInfo {
	return p.table.MacroInfo(name)
}

// Run preprocesses mainFile, reporting events to cb and finishing with
// EndOfMainFile. If the main file cannot be read or ctx is cancelled, Run
// returns an error and EndOfMainFile is not called.
func (p *Preprocessor) Run(ctx context.Context, mainFile string, cb macros.Callbacks) error {
	abs, err := filepath.Abs(mainFile)
	if err != nil {
		return err
	}
	p.reset(cb, LanguageForFile(abs))

	if !p.opts.NoBuiltins {
		p.commandLine(builtinDefines(p.lang))
	}
	p.commandLine(p.opts.Flags.Defines)

	main, err := p.load(ctx, abs)
	if err != nil {
		return err
	}
	for _, inc := range p.opts.Flags.ForcedIncludes {
		if err := p.forcedInclude(ctx, inc, filepath.Dir(abs)); err != nil {
			return err
		}
	}
	if err := p.enter(ctx, main); err != nil {
		return err
	}
	cb.EndOfMainFile()
	return nil
}

func (p *Preprocessor) reset(cb macros.Callbacks, lang Language) {
	p.cb = cb
	p.lang = lang
	p.table = macros.NewTable()
	p.files = make(map[string]*sourceFile)
	p.handles = make(map[string]*macros.File)
	p.once = make(map[string]bool)
	p.depth = 0
	if lang == LangCpp {
		p.parser.SetLanguage(cpp.GetLanguage())
	} else {
		p.parser.SetLanguage(c.GetLanguage())
	}
}

// commandLine applies -D and -U options. Their locations are outside any file.
func (p *Preprocessor) commandLine(defs []compdb.Define) {
	for _, d := range defs {
		name, params, fn := splitMacroName(d.Name)
		loc := macros.Location{Line: 1, Column: 1}
		tok := macros.Token{Name: name, Location: loc}
		if d.Undef {
			p.cb.MacroUndefined(tok, p.table.Undefine(name, loc))
			continue
		}
		info := &macros.MacroInfo{Name: name, Location: loc, FunctionLike: fn, Params: params, Body: d.Value}
		p.cb.MacroDefined(tok, p.table.Define(info))
	}
}

func (p *Preprocessor) handle(path string) *macros.File {
	h, ok := p.handles[path]
	if !ok {
		h = &macros.File{Path: path}
		p.handles[path] = h
	}
	return h
}

// load reads and parses path once per run.
func (p *Preprocessor) load(ctx context.Context, path string) (*sourceFile, error) {
	if f, ok := p.files[path]; ok {
		return f, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tree, err := p.parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	f := &sourceFile{
		path:        path,
		handle:      p.handle(path),
		src:         src,
		tree:        tree,
		lines:       lineStarts(src),
		guardDefine: -1,
	}
	f.guard, f.guardDefine = detectGuard(tree.RootNode(), src)
	p.files[path] = f
	return f, nil
}

// detectGuard inspects the top level of a file. guardDefine is set when the
// first directive is #ifndef X directly followed by #define X; guard is set
// when, in addition, that block is the only top-level item and has no #else.
func detectGuard(root *sitter.Node, src []byte) (guard string, guardDefine int) {
	guardDefine = -1
	var items []*sitter.Node
	for i := 0; i < int(root.NamedChildCount()); i++ {
		if n := root.NamedChild(i); n.Type() != "comment" {
			items = append(items, n)
		}
	}
	if len(items) == 0 || items[0].Type() != "preproc_ifdef" || ifdefKeyword(items[0]) != "#ifndef" {
		return "", -1
	}
	block := items[0]
	nameNode := block.ChildByFieldName("name")
	if nameNode == nil {
		return "", -1
	}
	name := nameNode.Content(src)

	var first *sitter.Node
	for i := 0; i < int(block.ChildCount()); i++ {
		child := block.Child(i)
		if !child.IsNamed() || child.Type() == "comment" || block.FieldNameForChild(i) != "" {
			continue
		}
		first = child
		break
	}
	if first == nil || first.Type() != "preproc_def" {
		return "", -1
	}
	if defName := first.ChildByFieldName("name"); defName == nil || defName.Content(src) != name {
		return "", -1
	}
	guardDefine = int(first.StartByte())
	if len(items) == 1 && block.ChildByFieldName("alternative") == nil {
		guard = name
	}
	return guard, guardDefine
}

func ifdefKeyword(n *sitter.Node) string {
	if n.ChildCount() == 0 {
		return ""
	}
	return strings.ReplaceAll(n.Child(0).Type(), " ", "")
}

func (p *Preprocessor) enter(ctx context.Context, f *sourceFile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.depth++
	defer func() { p.depth-- }()
	return p.walkChildren(ctx, f, f.tree.RootNode())
}

func (p *Preprocessor) walkChildren(ctx context.Context, f *sourceFile, n *sitter.Node) error {
	for i := 0; i < int(n.ChildCount()); i++ {
		if err := p.walk(ctx, f, n.Child(i)); err != nil {
			return err
		}
	}
	return nil
}

// walkBody visits the items of a conditional block, skipping its name,
// condition and alternative.
func (p *Preprocessor) walkBody(ctx context.Context, f *sourceFile, n *sitter.Node) error {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if !child.IsNamed() || n.FieldNameForChild(i) != "" {
			continue
		}
		if err := p.walk(ctx, f, child); err != nil {
			return err
		}
	}
	return nil
}

func (p *Preprocessor) walk(ctx context.Context, f *sourceFile, n *sitter.Node) error {
	switch typ := n.Type(); {
	case typ == "preproc_include":
		return p.include(ctx, f, n)
	case typ == "preproc_def":
		p.define(f, n, false)
	case typ == "preproc_function_def":
		p.define(f, n, true)
	case typ == "preproc_call":
		p.call(f, n)
	case strings.HasPrefix(typ, "preproc_ifdef"), strings.HasPrefix(typ, "preproc_elifdef"):
		return p.ifdef(ctx, f, n)
	case strings.HasPrefix(typ, "preproc_if"), strings.HasPrefix(typ, "preproc_elif"):
		return p.ifBlock(ctx, f, n)
	case typ == "identifier", typ == "type_identifier", typ == "field_identifier",
		typ == "primitive_type", typ == "namespace_identifier", typ == "statement_identifier":
		p.identifier(f, n)
	case typ == "comment", typ == "string_literal", typ == "char_literal",
		typ == "system_lib_string", typ == "raw_string_literal", typ == "preproc_arg":
	default:
		return p.walkChildren(ctx, f, n)
	}
	return nil
}

func (p *Preprocessor) include(ctx context.Context, f *sourceFile, n *sitter.Node) error {
	pathNode := n.ChildByFieldName("path")
	if pathNode == nil {
		return nil
	}
	raw := strings.TrimSpace(pathNode.Content(f.src))
	if pathNode.Type() == "identifier" {
		// Computed include: #include HEADER
		if info := p.table.MacroInfo(raw); info != nil {
			p.cb.MacroExpands(macros.Token{Name: raw, Location: f.nodeLocation(pathNode)}, p.table.Definition(raw))
			raw = strings.TrimSpace(info.Body)
		}
	}
	angled := strings.HasPrefix(raw, "<")
	name := strings.Trim(raw, "<>\"")
	return p.includeFile(ctx, name, angled, filepath.Dir(f.path))
}

func (p *Preprocessor) forcedInclude(ctx context.Context, path, dir string) error {
	return p.includeFile(ctx, path, false, dir)
}

func (p *Preprocessor) includeFile(ctx context.Context, name string, angled bool, dir string) error {
	found, ok := p.search.Find(name, angled, dir)
	if !ok {
		p.notFound(name)
		return nil
	}
	inc, err := p.load(ctx, found)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Warn("cannot read include", "path", found, "error", err)
		p.notFound(name)
		return nil
	}

	p.cb.InclusionDirective(inc.handle)

	switch {
	case p.once[inc.path]:
		return nil
	case inc.guard != "" && p.table.IsDefined(inc.guard):
		return nil
	case p.depth >= p.opts.MaxIncludeDepth:
		p.logger.Warn("include nested too deeply", "path", inc.path, "depth", p.depth)
		return nil
	}
	return p.enter(ctx, inc)
}

func (p *Preprocessor) notFound(name string) {
	p.logger.Debug("include not found", "name", name)
	p.cb.FileNotFound()
	p.cb.InclusionDirective(nil)
}

func (p *Preprocessor) define(f *sourceFile, n *sitter.Node, functionLike bool) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nameNode.Content(f.src)
	info := &macros.MacroInfo{
		Name:               name,
		Location:           f.nodeLocation(nameNode),
		FunctionLike:       functionLike,
		UsedForHeaderGuard: int(n.StartByte()) == f.guardDefine,
	}
	if value := n.ChildByFieldName("value"); value != nil {
		info.Body = strings.TrimSpace(value.Content(f.src))
	}
	if functionLike {
		if params := n.ChildByFieldName("parameters"); params != nil {
			for i := 0; i < int(params.ChildCount()); i++ {
				switch child := params.Child(i); child.Type() {
				case "identifier":
					info.Params = append(info.Params, child.Content(f.src))
				case "...":
					info.Params = append(info.Params, "...")
				}
			}
		}
	}
	p.cb.MacroDefined(macros.Token{Name: name, Location: info.Location}, p.table.Define(info))
}

// call handles #undef and #pragma once; other directives are ignored.
func (p *Preprocessor) call(f *sourceFile, n *sitter.Node) {
	directive := n.ChildByFieldName("directive")
	if directive == nil {
		return
	}
	arg := n.ChildByFieldName("argument")
	switch strings.ReplaceAll(directive.Content(f.src), " ", "") {
	case "#undef":
		if arg == nil {
			return
		}
		text := arg.Content(f.src)
		start := strings.IndexFunc(text, func(r rune) bool { return r < 128 && isIdentStart(byte(r)) })
		if start < 0 {
			return
		}
		end := start
		for end < len(text) && isIdentChar(text[end]) {
			end++
		}
		name := text[start:end]
		loc := f.position(int(arg.StartByte()) + start)
		p.cb.MacroUndefined(macros.Token{Name: name, Location: loc}, p.table.Undefine(name, loc))
	case "#pragma":
		if arg != nil && strings.TrimSpace(arg.Content(f.src)) == "once" {
			p.once[f.path] = true
		}
	}
}

func (p *Preprocessor) ifdef(ctx context.Context, f *sourceFile, n *sitter.Node) error {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return p.walkAlternative(ctx, f, n.ChildByFieldName("alternative"))
	}
	name := nameNode.Content(f.src)
	tok := macros.Token{Name: name, Location: f.nodeLocation(nameNode)}
	def := p.table.Definition(name)

	negated := strings.HasSuffix(ifdefKeyword(n), "ndef")
	if negated {
		p.cb.Ifndef(tok, def)
	} else {
		p.cb.Ifdef(tok, def)
	}

	if (def.Info != nil) != negated {
		return p.walkBody(ctx, f, n)
	}
	return p.walkAlternative(ctx, f, n.ChildByFieldName("alternative"))
}

func (p *Preprocessor) ifBlock(ctx context.Context, f *sourceFile, n *sitter.Node) error {
	cond := n.ChildByFieldName("condition")
	if cond == nil {
		return p.walkAlternative(ctx, f, n.ChildByFieldName("alternative"))
	}
	base := int(cond.StartByte())
	hooks := condHooks{
		lookup: p.table.MacroInfo,
		defined: func(name string, off int) {
			p.cb.Defined(macros.Token{Name: name, Location: f.position(base + off)}, p.table.Definition(name))
		},
		expands: func(name string, off int) {
			p.cb.MacroExpands(macros.Token{Name: name, Location: f.position(base + off)}, p.table.Definition(name))
		},
	}
	taken, err := evalCondition(cond.Content(f.src), hooks)
	if err != nil {
		p.logger.Debug("cannot evaluate condition", "file", f.path, "line", cond.StartPoint().Row+1, "error", err)
	}
	if taken {
		return p.walkBody(ctx, f, n)
	}
	return p.walkAlternative(ctx, f, n.ChildByFieldName("alternative"))
}

func (p *Preprocessor) walkAlternative(ctx context.Context, f *sourceFile, alt *sitter.Node) error {
	if alt == nil {
		return nil
	}
	switch typ := alt.Type(); {
	case strings.HasPrefix(typ, "preproc_else"):
		return p.walkBody(ctx, f, alt)
	case strings.HasPrefix(typ, "preproc_elifdef"):
		return p.ifdef(ctx, f, alt)
	case strings.HasPrefix(typ, "preproc_elif"):
		return p.ifBlock(ctx, f, alt)
	}
	return nil
}

// identifier reports a macro expansion for a name in ordinary code.
// Function-like macros only expand when followed by '('.
func (p *Preprocessor) identifier(f *sourceFile, n *sitter.Node) {
	name := n.Content(f.src)
	info := p.table.MacroInfo(name)
	if info == nil {
		return
	}
	if info.FunctionLike && !followedByParen(f.src, int(n.EndByte())) {
		return
	}
	p.cb.MacroExpands(macros.Token{Name: name, Location: f.nodeLocation(n)}, p.table.Definition(name))
}

func followedByParen(src []byte, i int) bool {
	for ; i < len(src); i++ {
		switch src[i] {
		case ' ', '\t', '\r', '\n':
			continue
		case '(':
			return true
		default:
			return false
		}
	}
	return false
}
