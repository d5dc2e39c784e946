//go:build !cgo

package frontend

import (
	"context"

	"macrodex/internal/macros"
)

// IsAvailable reports whether the front-end can run in this build.
func IsAvailable() bool { return false }

// Preprocessor is unavailable without cgo.
type Preprocessor struct{}

// New returns a Preprocessor whose Run always fails with ErrNoCGO.
func New(opts Options) *Preprocessor {
	return &Preprocessor{}
}

func (p *Preprocessor) MacroInfo(name string) *macros.MacroInfo {
	return nil
}

func (p *Preprocessor) Run(ctx context.Context, mainFile string, cb macros.Callbacks) error {
	return ErrNoCGO
}
