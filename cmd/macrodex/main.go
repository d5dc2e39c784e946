package main

import (
	"errors"
	"fmt"
	"os"

	mderrors "macrodex/internal/errors"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

func printError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	var me *mderrors.MacrodexError
	if errors.As(err, &me) && len(me.SuggestedFixes) > 0 {
		fmt.Fprintln(os.Stderr, "\nSuggested fixes:")
		for _, fix := range me.SuggestedFixes {
			if fix.Description != "" {
				fmt.Fprintf(os.Stderr, "  %s  # %s\n", fix.Command, fix.Description)
			} else {
				fmt.Fprintf(os.Stderr, "  %s\n", fix.Command)
			}
		}
	}
}
