// Package errors defines the coded errors surfaced by the macrodex CLI and its
// storage and front-end layers.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable identifier for a failure mode.
type ErrorCode string

const (
	// ConfigInvalid indicates .macrodex/config.json failed validation
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	// CompDBMissing indicates no compilation database was found
	CompDBMissing ErrorCode = "COMPDB_MISSING"
	// CompDBInvalid indicates the compilation database could not be parsed
	CompDBInvalid ErrorCode = "COMPDB_INVALID"
	// SourceUnreadable indicates a main file could not be read
	SourceUnreadable ErrorCode = "SOURCE_UNREADABLE"
	// ParseFailed indicates the front-end could not parse a translation unit
	ParseFailed ErrorCode = "PARSE_FAILED"
	// StorageFailed indicates a database operation failed
	StorageFailed ErrorCode = "STORAGE_FAILED"
	// IndexMissing indicates no stored collection exists yet
	IndexMissing ErrorCode = "INDEX_MISSING"
	// IndexLocked indicates another collection holds the workspace lock
	IndexLocked ErrorCode = "INDEX_LOCKED"
	// InternalError indicates an unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixAction is a suggested command that may resolve an error.
type FixAction struct {
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
}

// MacrodexError carries a code, a message and optional suggested fixes.
type MacrodexError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error
}

// New creates a MacrodexError. When fixes is nil the default fixes for the
// code are attached.
func New(code ErrorCode, message string, cause error, fixes ...FixAction) *MacrodexError {
	if len(fixes) == 0 {
		fixes = GetSuggestedFixes(code)
	}
	return &MacrodexError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: fixes,
	}
}

func (e *MacrodexError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *MacrodexError) Unwrap() error {
	return e.cause
}

// WithDetails attaches details and returns the same error.
func (e *MacrodexError) WithDetails(details interface{}) *MacrodexError {
	e.Details = details
	return e
}

// CodeOf returns the code of the first MacrodexError in err's chain, or
// InternalError when there is none.
func CodeOf(err error) ErrorCode {
	var me *MacrodexError
	if errors.As(err, &me) {
		return me.Code
	}
	return InternalError
}

// ErrorActions maps codes to their default suggested fixes.
var ErrorActions = map[ErrorCode][]FixAction{
	ConfigInvalid: {
		{Command: "macrodex init --force", Description: "Rewrite the default configuration"},
	},
	CompDBMissing: {
		{Command: "cmake -DCMAKE_EXPORT_COMPILE_COMMANDS=ON", Description: "Generate compile_commands.json"},
		{Command: "macrodex collect <files...>", Description: "Collect explicit files instead"},
	},
	IndexMissing: {
		{Command: "macrodex collect --store", Description: "Collect and store translation units"},
	},
	IndexLocked: {
		{Command: "rm .macrodex/collect.lock", Description: "Remove a stale lock left by a crashed run"},
	},
}

// GetSuggestedFixes returns the default fixes for code.
func GetSuggestedFixes(code ErrorCode) []FixAction {
	return ErrorActions[code]
}
