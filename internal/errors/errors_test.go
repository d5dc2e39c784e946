package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestMacrodexError_Error(t *testing.T) {
	tests := []struct {
		name      string
		code      ErrorCode
		message   string
		cause     error
		wantParts []string
	}{
		{
			name:      "with cause",
			code:      CompDBInvalid,
			message:   "cannot parse compile_commands.json",
			cause:     errors.New("unexpected EOF"),
			wantParts: []string{"COMPDB_INVALID", "cannot parse", "unexpected EOF"},
		},
		{
			name:      "without cause",
			code:      IndexMissing,
			message:   "no stored runs",
			wantParts: []string{"INDEX_MISSING", "no stored runs"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.code, tt.message, tt.cause).Error()
			for _, part := range tt.wantParts {
				if !strings.Contains(got, part) {
					t.Errorf("Error() = %q, missing %q", got, part)
				}
			}
		})
	}
}

func TestUnwrapAndCodeOf(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("save run: %w", New(StorageFailed, "write failed", cause))

	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable through Unwrap")
	}
	if got := CodeOf(err); got != StorageFailed {
		t.Errorf("CodeOf() = %s, want %s", got, StorageFailed)
	}
	if got := CodeOf(errors.New("plain")); got != InternalError {
		t.Errorf("CodeOf(plain) = %s, want %s", got, InternalError)
	}
}

func TestDefaultFixes(t *testing.T) {
	err := New(CompDBMissing, "no compile_commands.json", nil)
	if len(err.SuggestedFixes) != 2 {
		t.Fatalf("expected 2 default fixes, got %d", len(err.SuggestedFixes))
	}

	custom := New(CompDBMissing, "x", nil, FixAction{Command: "make compdb"})
	if len(custom.SuggestedFixes) != 1 || custom.SuggestedFixes[0].Command != "make compdb" {
		t.Errorf("explicit fixes should replace defaults: %+v", custom.SuggestedFixes)
	}

	if fixes := GetSuggestedFixes(ParseFailed); fixes != nil {
		t.Errorf("expected no fixes for %s, got %v", ParseFailed, fixes)
	}
}
