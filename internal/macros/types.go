// Package macros collects macro symbols, their source locations, the files a
// translation unit includes and the macro names whose state influenced
// compilation. A Collector is driven by a preprocessor front-end for exactly
// one translation unit and is not safe for concurrent use; run one Collector
// per unit and share only the PathResolver.
package macros

import (
	"fmt"
	"strings"
)

// FileID identifies a file path. Zero is the invalid ID.
type FileID uint32

// Valid reports whether id was assigned by a PathResolver.
func (id FileID) Valid() bool { return id != 0 }

// PathResolver maps absolute native paths to stable file IDs. Implementations
// must be safe for concurrent use.
type PathResolver interface {
	FilePathID(path string) (FileID, error)
}

// SymbolIndex is the run-local identity of a macro, shared by every
// directive in its redefinition chain.
type SymbolIndex uint64

// SymbolRole says how a location refers to a macro.
type SymbolRole uint8

const (
	RoleDefinition SymbolRole = iota + 1
	RoleUndefinition
	RoleUsage
)

func (r SymbolRole) String() string {
	switch r {
	case RoleDefinition:
		return "definition"
	case RoleUndefinition:
		return "undefinition"
	case RoleUsage:
		return "usage"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

func (r SymbolRole) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *SymbolRole) UnmarshalText(text []byte) error {
	role, err := ParseSymbolRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// ParseSymbolRole parses the String form of a role.
func ParseSymbolRole(s string) (SymbolRole, error) {
	switch strings.ToLower(s) {
	case "definition":
		return RoleDefinition, nil
	case "undefinition":
		return RoleUndefinition, nil
	case "usage":
		return RoleUsage, nil
	}
	return 0, fmt.Errorf("unknown symbol role %q", s)
}

// SymbolEntry is a catalogue row: the cross-run stable name and the macro name.
type SymbolEntry struct {
	USR  string `json:"usr" yaml:"usr"`
	Name string `json:"name" yaml:"name"`
}

// SymbolEntries is the symbol catalogue of one run.
type SymbolEntries map[SymbolIndex]SymbolEntry

// SourceLocationEntry records one reference to a macro.
type SourceLocationEntry struct {
	Symbol SymbolIndex `json:"symbol" yaml:"symbol"`
	File   FileID      `json:"file" yaml:"file"`
	Line   uint32      `json:"line" yaml:"line"`
	Column uint32      `json:"column" yaml:"column"`
	Role   SymbolRole  `json:"role" yaml:"role"`
}

// SourceLocationEntries keeps event order.
type SourceLocationEntries []SourceLocationEntry

// FileIDs is the included-file set, unique and in first-inclusion order.
type FileIDs []FileID

// Contains reports whether id is in the set.
func (ids FileIDs) Contains(id FileID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// UsedDefine records that the state of macro Name was tested in File.
type UsedDefine struct {
	Name string `json:"name" yaml:"name"`
	File FileID `json:"file" yaml:"file"`
}

// Compare orders used defines by name, then file.
func (u UsedDefine) Compare(other UsedDefine) int {
	if c := strings.Compare(u.Name, other.Name); c != 0 {
		return c
	}
	switch {
	case u.File < other.File:
		return -1
	case u.File > other.File:
		return 1
	}
	return 0
}

// UsedDefines is kept sorted by Compare and free of duplicates.
type UsedDefines []UsedDefine

// Result holds the four collections of a finished run.
type Result struct {
	Symbols     SymbolEntries         `json:"symbols" yaml:"symbols"`
	Locations   SourceLocationEntries `json:"locations" yaml:"locations"`
	Files       FileIDs               `json:"files" yaml:"files"`
	UsedDefines UsedDefines           `json:"usedDefines" yaml:"usedDefines"`
}
