// Package incremental answers which translation units must be collected again
// after macros or files change.
//
// A unit is affected by a macro when the macro's name is in its used-define
// set, and by a file when the file is the unit's main file or in its
// included-file set. Both sets come from the last stored run of the unit.
package incremental

import "time"

// ChangeType represents how a file changed
type ChangeType string

const (
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
)

// Changes is a set of edits to check against stored runs.
type Changes struct {
	// Defines are macro names whose command-line or header definition changed.
	Defines []string
	// Files are absolute paths of edited files.
	Files []string
}

// StaleFile is a dependency of a stored run that changed after the run.
type StaleFile struct {
	Path       string     `json:"path" yaml:"path"`
	ChangeType ChangeType `json:"changeType" yaml:"changeType"`
	ModTime    time.Time  `json:"modTime,omitempty" yaml:"modTime,omitempty"`
}

// StaleRun is a stored run with at least one changed dependency.
type StaleRun struct {
	MainFile string      `json:"mainFile" yaml:"mainFile"`
	Files    []StaleFile `json:"files" yaml:"files"`
}
