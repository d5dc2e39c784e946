// Package compdb reads compile_commands.json and extracts the preprocessor
// flags of each translation unit.
package compdb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"macrodex/internal/paths"
)

// DefaultFileName is the conventional compilation database name.
const DefaultFileName = "compile_commands.json"

// Command is one entry of a compilation database.
type Command struct {
	Directory string   `json:"directory"`
	File      string   `json:"file"`
	Arguments []string `json:"arguments,omitempty"`
	Command   string   `json:"command,omitempty"`
	Output    string   `json:"output,omitempty"`
}

// Args returns the argument vector, splitting Command when Arguments is empty.
func (c Command) Args() ([]string, error) {
	if len(c.Arguments) > 0 {
		return c.Arguments, nil
	}
	if c.Command == "" {
		return nil, fmt.Errorf("entry for %s has neither arguments nor command", c.File)
	}
	return SplitCommand(c.Command)
}

// AbsFile returns File resolved against Directory.
func (c Command) AbsFile() string {
	return paths.ResolveIn(c.Directory, c.File)
}

// Unit is a translation unit with its preprocessor flags.
type Unit struct {
	File  string
	Flags Flags
}

// Database is a loaded compilation database.
type Database struct {
	Path    string
	Entries []Command
}

// Load reads and decodes a compilation database.
func Load(path string) (*Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []Command
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &Database{Path: path, Entries: entries}, nil
}

// Find returns the first existing database among configured (resolved
// against repoRoot), <repoRoot>/compile_commands.json and
// <repoRoot>/build/compile_commands.json.
func Find(repoRoot, configured string) (string, bool) {
	candidates := []string{
		filepath.Join(repoRoot, DefaultFileName),
		filepath.Join(repoRoot, "build", DefaultFileName),
	}
	if configured != "" {
		candidates = append([]string{paths.ResolveIn(repoRoot, configured)}, candidates...)
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, true
		}
	}
	return "", false
}

// Units returns one Unit per distinct file. When a file appears more than
// once the first entry wins. Entries whose arguments cannot be split are
// returned in skipped.
func (db *Database) Units() (units []Unit, skipped []string) {
	seen := make(map[string]bool)
	for _, cmd := range db.Entries {
		file := cmd.AbsFile()
		if seen[file] {
			continue
		}
		args, err := cmd.Args()
		if err != nil {
			skipped = append(skipped, file)
			continue
		}
		seen[file] = true
		units = append(units, Unit{File: file, Flags: ParseArguments(cmd.Directory, args)})
	}
	return units, skipped
}
