package macros

import (
	"log/slog"
	"path/filepath"

	"macrodex/internal/slogutil"
)

// Option configures a Collector.
type Option func(*Collector)

// WithStableNamer replaces the default namer (NewStableNamer("")).
func WithStableNamer(n StableNamer) Option {
	return func(c *Collector) { c.namer = n }
}

// WithLogger sets the logger used for skipped events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Collector) { c.logger = logger }
}

// Collector accumulates the results of one translation unit from
// preprocessor events. Call EndOfMainFile once the unit is complete; events
// after that are ignored.
type Collector struct {
	resolver PathResolver
	lookup   MacroLookup
	namer    StableNamer
	logger   *slog.Logger
	canon    *Canonicalizer

	symbols     SymbolEntries
	locations   SourceLocationEntries
	files       FileIDs
	usedDefines UsedDefines
	maybeUsed   UsedDefines

	fileIDs     map[*File]FileID
	seenFiles   map[FileID]struct{}
	skipInclude bool
	finished    bool
}

// NewCollector creates a collector. lookup is consulted at end of file to
// find which staged names turned out to be include guards.
func NewCollector(resolver PathResolver, lookup MacroLookup, opts ...Option) *Collector {
	c := &Collector{
		resolver:  resolver,
		lookup:    lookup,
		canon:     NewCanonicalizer(),
		symbols:   make(SymbolEntries),
		fileIDs:   make(map[*File]FileID),
		seenFiles: make(map[FileID]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.namer == nil {
		c.namer = NewStableNamer("")
	}
	c.logger = slogutil.OrDiscard(c.logger)
	return c
}

// InclusionDirective is called for every #include. file is nil when the
// search failed. The file is skipped if FileNotFound was reported just before.
func (c *Collector) InclusionDirective(file *File) {
	if c.finished {
		return
	}
	if !c.skipInclude && file != nil {
		c.addSourceFile(file)
	}
	c.skipInclude = false
}

// FileNotFound marks the next inclusion event as belonging to a failed search.
func (c *Collector) FileNotFound() {
	if c.finished {
		return
	}
	c.skipInclude = true
}

func (c *Collector) Ifdef(tok Token, def MacroDefinition) {
	c.conditional(tok, def)
}

func (c *Collector) Ifndef(tok Token, def MacroDefinition) {
	c.conditional(tok, def)
}

// Defined is called for the defined operator in #if and #elif.
func (c *Collector) Defined(tok Token, def MacroDefinition) {
	c.conditional(tok, def)
}

func (c *Collector) conditional(tok Token, def MacroDefinition) {
	if c.finished {
		return
	}
	c.addUsedDefine(tok, def)
	c.addMacroAsSymbol(tok, c.canon.FirstMacroInfo(def.LocalDirective), RoleUsage)
}

// MacroDefined is called after directive was added to its chain.
func (c *Collector) MacroDefined(tok Token, directive *MacroDirective) {
	if c.finished {
		return
	}
	c.addMacroAsSymbol(tok, c.canon.FirstMacroInfo(directive), RoleDefinition)
}

// MacroUndefined is called with the definition active before the #undef.
func (c *Collector) MacroUndefined(tok Token, def MacroDefinition) {
	if c.finished {
		return
	}
	c.addMacroAsSymbol(tok, c.canon.FirstMacroInfo(def.LocalDirective), RoleUndefinition)
}

func (c *Collector) MacroExpands(tok Token, def MacroDefinition) {
	if c.finished {
		return
	}
	c.addUsedDefine(tok, def)
	c.addMacroAsSymbol(tok, c.canon.FirstMacroInfo(def.LocalDirective), RoleUsage)
}

// EndOfMainFile resolves the staged used defines and freezes the results.
func (c *Collector) EndOfMainFile() {
	if c.finished {
		return
	}
	c.usedDefines = ResolveUsedDefines(c.usedDefines, c.maybeUsed, c.lookup)
	c.maybeUsed = nil
	c.finished = true
}

// Finished reports whether EndOfMainFile has run.
func (c *Collector) Finished() bool { return c.finished }

// Result returns the collections. ok is false before EndOfMainFile, when the
// used-define set is not yet resolved.
func (c *Collector) Result() (Result, bool) {
	if !c.finished {
		return Result{}, false
	}
	return Result{
		Symbols:     c.symbols,
		Locations:   c.locations,
		Files:       c.files,
		UsedDefines: c.usedDefines,
	}, true
}

func (c *Collector) addUsedDefine(tok Token, def MacroDefinition) {
	u := UsedDefine{Name: tok.Name, File: c.fileID(tok.Location)}
	if def.Info != nil {
		c.usedDefines.Insert(u)
	} else {
		c.maybeUsed.Insert(u)
	}
}

func (c *Collector) addMacroAsSymbol(tok Token, info *MacroInfo, role SymbolRole) {
	if info == nil || !tok.Location.IsFile() {
		return
	}
	fileID := c.fileID(tok.Location)
	if !fileID.Valid() {
		return
	}

	idx := c.canon.Index(info)
	if _, ok := c.symbols[idx]; !ok {
		if usr, ok := c.namer.StableName(tok.Name, info.Location); ok {
			c.symbols[idx] = SymbolEntry{USR: usr, Name: tok.Name}
		} else {
			c.logger.Debug("no stable name for macro", "macro", tok.Name, "role", role.String())
		}
	}

	c.locations = append(c.locations, SourceLocationEntry{
		Symbol: idx,
		File:   fileID,
		Line:   tok.Location.Line,
		Column: tok.Location.Column,
		Role:   role,
	})
}

func (c *Collector) addSourceFile(file *File) {
	id := c.resolveFile(file)
	if !id.Valid() {
		return
	}
	if _, ok := c.seenFiles[id]; ok {
		return
	}
	c.seenFiles[id] = struct{}{}
	c.files = append(c.files, id)
}

func (c *Collector) fileID(loc Location) FileID {
	if !loc.IsFile() {
		return 0
	}
	return c.resolveFile(loc.File)
}

func (c *Collector) resolveFile(file *File) FileID {
	if id, ok := c.fileIDs[file]; ok {
		return id
	}
	path, err := filepath.Abs(file.Path)
	if err != nil {
		path = file.Path
	}
	id, err := c.resolver.FilePathID(path)
	if err != nil {
		c.logger.Debug("cannot resolve file", "path", file.Path, "error", err)
		return 0
	}
	c.fileIDs[file] = id
	return id
}
