// Package scip exports collection results as a SCIP index so macro
// definitions and references can be browsed with SCIP tooling.
package scip

import (
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	scippb "github.com/sourcegraph/scip/bindings/go/scip"

	"macrodex/internal/macros"
	"macrodex/internal/slogutil"
	"macrodex/internal/version"
)

// Scheme is the SCIP symbol scheme of exported macros.
const Scheme = "macrodex"

// PathSource maps result file IDs back to paths.
type PathSource interface {
	FilePath(id macros.FileID) (string, bool)
}

// Unit is the result of one translation unit.
type Unit struct {
	MainFile string
	Result   macros.Result
}

// Options controls an export.
type Options struct {
	// ProjectRoot is the absolute directory document paths are relative to.
	ProjectRoot string
	// Arguments are recorded in the tool info.
	Arguments []string
	Logger    *slog.Logger
}

// SymbolString returns the SCIP symbol of a macro with the given stable name.
func SymbolString(usr string) string {
	return Scheme + " . . . `" + strings.ReplaceAll(usr, "`", "``") + "`!"
}

// roleBits maps a location role to SCIP symbol role bits.
func roleBits(role macros.SymbolRole) int32 {
	switch role {
	case macros.RoleDefinition:
		return int32(scippb.SymbolRole_Definition)
	case macros.RoleUndefinition:
		return int32(scippb.SymbolRole_WriteAccess)
	default:
		return int32(scippb.SymbolRole_ReadAccess)
	}
}

type occurrenceKey struct {
	line, col, end int32
	symbol         string
	roles          int32
}

type docBuilder struct {
	doc     *scippb.Document
	seen    map[occurrenceKey]bool
	symbols map[string]bool
}

// Export merges units into one index. Headers seen by several units become
// one document with deduplicated occurrences. Locations whose symbol has no
// catalogue entry or whose file lies outside ProjectRoot are skipped.
func Export(units []Unit, paths PathSource, opts Options) *scippb.Index {
	logger := slogutil.OrDiscard(opts.Logger)
	docs := make(map[string]*docBuilder)
	skipped := 0

	for _, unit := range units {
		for _, loc := range unit.Result.Locations {
			sym, ok := unit.Result.Symbols[loc.Symbol]
			if !ok {
				skipped++
				continue
			}
			path, ok := paths.FilePath(loc.File)
			if !ok {
				skipped++
				continue
			}
			rel, ok := relativePath(opts.ProjectRoot, path)
			if !ok {
				skipped++
				continue
			}

			b := docs[rel]
			if b == nil {
				b = &docBuilder{
					doc: &scippb.Document{
						Language:     languageOf(rel),
						RelativePath: rel,
					},
					seen:    make(map[occurrenceKey]bool),
					symbols: make(map[string]bool),
				}
				docs[rel] = b
			}

			symbol := SymbolString(sym.USR)
			line := int32(loc.Line) - 1
			col := int32(loc.Column) - 1
			key := occurrenceKey{line: line, col: col, end: col + int32(len(sym.Name)), symbol: symbol, roles: roleBits(loc.Role)}
			if !b.seen[key] {
				b.seen[key] = true
				b.doc.Occurrences = append(b.doc.Occurrences, &scippb.Occurrence{
					Range:       []int32{key.line, key.col, key.end},
					Symbol:      symbol,
					SymbolRoles: key.roles,
				})
			}
			if loc.Role == macros.RoleDefinition && !b.symbols[symbol] {
				b.symbols[symbol] = true
				b.doc.Symbols = append(b.doc.Symbols, &scippb.SymbolInformation{
					Symbol:      symbol,
					DisplayName: sym.Name,
					Kind:        scippb.SymbolInformation_Macro,
				})
			}
		}
	}
	if skipped > 0 {
		logger.Debug("Skipped locations during SCIP export", "count", skipped)
	}

	index := &scippb.Index{
		Metadata: &scippb.Metadata{
			Version: scippb.ProtocolVersion_UnspecifiedProtocolVersion,
			ToolInfo: &scippb.ToolInfo{
				Name:      Scheme,
				Version:   version.Version,
				Arguments: opts.Arguments,
			},
			ProjectRoot:          projectRootURI(opts.ProjectRoot),
			TextDocumentEncoding: scippb.TextEncoding_UTF8,
		},
	}

	keys := make([]string, 0, len(docs))
	for k := range docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		doc := docs[k].doc
		sort.SliceStable(doc.Occurrences, func(i, j int) bool {
			a, b := doc.Occurrences[i].Range, doc.Occurrences[j].Range
			if a[0] != b[0] {
				return a[0] < b[0]
			}
			return a[1] < b[1]
		})
		sort.Slice(doc.Symbols, func(i, j int) bool { return doc.Symbols[i].Symbol < doc.Symbols[j].Symbol })
		index.Documents = append(index.Documents, doc)
	}
	return index
}

func relativePath(root, path string) (string, bool) {
	if root == "" {
		return filepath.ToSlash(path), true
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func projectRootURI(root string) string {
	if root == "" {
		return ""
	}
	return "file://" + filepath.ToSlash(root)
}

func languageOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cc", ".cpp", ".cxx", ".hpp", ".hh", ".hxx":
		return "cpp"
	default:
		return "c"
	}
}
