package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"macrodex/internal/config"
	"macrodex/internal/errors"
	"macrodex/internal/paths"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize macrodex configuration",
	Long:  "Creates a .macrodex/ directory with default configuration in the current directory",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing configuration")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return errors.New(errors.InternalError, "Failed to get current directory", err)
	}
	out := cmd.OutOrStdout()

	cfgPath := paths.ConfigPath(cwd)
	if _, statErr := os.Stat(cfgPath); statErr == nil && !initForce {
		// Already initialized is success so scripts can run init unconditionally.
		fmt.Fprintln(out, "macrodex already initialized.")
		fmt.Fprintf(out, "Configuration at: %s\n", cfgPath)
		fmt.Fprintln(out, "\nRun 'macrodex init --force' to overwrite it.")
		return nil
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(cwd); err != nil {
		return errors.New(errors.InternalError, "Failed to write config file", err)
	}

	fmt.Fprintln(out, "macrodex initialized successfully!")
	fmt.Fprintf(out, "Configuration written to: %s\n", cfgPath)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Generate compile_commands.json or adjust sources.include")
	fmt.Fprintln(out, "  2. Run 'macrodex collect --store'")
	return nil
}
