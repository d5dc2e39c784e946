package main

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"macrodex/internal/errors"
	"macrodex/internal/incremental"
	"macrodex/internal/index"
	"macrodex/internal/paths"
	"macrodex/internal/storage"
)

var (
	queryFormat      string
	symbolsLocations bool
	affectedDefines  []string
	affectedFiles    []string
)

var usedDefinesCmd = &cobra.Command{
	Use:   "used-defines <main-file>",
	Short: "List the macro names a stored translation unit depends on",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsedDefines,
}

var symbolsCmd = &cobra.Command{
	Use:   "symbols [name]",
	Short: "List stored macro symbols",
	Long: `Lists catalogue entries, optionally only those named NAME.

Examples:
  macrodex symbols
  macrodex symbols HAVE_CONFIG_H --locations`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSymbols,
}

var affectedCmd = &cobra.Command{
	Use:   "affected",
	Short: "List stored translation units affected by changed macros or files",
	Long: `Prints the main files that must be collected again when the given macros
change definition or the given files are edited.

Examples:
  macrodex affected --define NDEBUG
  macrodex affected --file include/config.h --define USE_SSL`,
	RunE: runAffected,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store freshness and units whose sources changed",
	RunE:  runStatus,
}

func init() {
	for _, c := range []*cobra.Command{usedDefinesCmd, symbolsCmd, affectedCmd, statusCmd} {
		c.Flags().StringVar(&queryFormat, "format", "human", "Output format (human, json, yaml)")
		rootCmd.AddCommand(c)
	}
	symbolsCmd.Flags().BoolVar(&symbolsLocations, "locations", false, "Include every stored location")
	affectedCmd.Flags().StringSliceVar(&affectedDefines, "define", nil, "Changed macro name (repeatable)")
	affectedCmd.Flags().StringSliceVar(&affectedFiles, "file", nil, "Changed file (repeatable)")
}

// withStore runs fn against an existing store.
func withStore(fn func(ctx context.Context, ws *workspace, db *storage.DB) (interface{}, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ws, err := loadWorkspace()
		if err != nil {
			return err
		}
		format, err := parseFormat(queryFormat)
		if err != nil {
			return err
		}
		db, err := ws.openStore(true)
		if err != nil {
			return err
		}
		defer db.Close()

		resp, err := fn(cmd.Context(), ws, db)
		if err != nil {
			return err
		}
		return printResponse(cmd, resp, format)
	}
}

func runUsedDefines(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, ws *workspace, db *storage.DB) (interface{}, error) {
		main, err := filepath.Abs(args[0])
		if err != nil {
			return nil, err
		}
		used, err := db.UsedDefines(ctx, main)
		if stderrors.Is(err, storage.ErrRunNotFound) {
			return nil, errors.New(errors.IndexMissing, "Translation unit has not been collected", err,
				errors.FixAction{Command: "macrodex collect --store " + args[0], Description: "Collect and store it"})
		}
		if err != nil {
			return nil, errors.New(errors.StorageFailed, "Failed to read used defines", err)
		}
		for i := range used {
			if used[i].Path != "" {
				used[i].Path = paths.DisplayPath(used[i].Path, ws.root)
			}
		}
		if used == nil {
			used = []storage.UsedDefine{}
		}
		return &UsedDefinesResponse{MainFile: paths.DisplayPath(main, ws.root), UsedDefines: used}, nil
	})(cmd, args)
}

func runSymbols(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, ws *workspace, db *storage.DB) (interface{}, error) {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		syms, err := db.Symbols(ctx, name)
		if err != nil {
			return nil, errors.New(errors.StorageFailed, "Failed to read symbols", err)
		}
		resp := &SymbolsResponse{Symbols: []SymbolWithLocations{}}
		for _, s := range syms {
			entry := SymbolWithLocations{Symbol: s}
			if symbolsLocations {
				locs, err := db.Locations(ctx, s.USR)
				if err != nil {
					return nil, errors.New(errors.StorageFailed, "Failed to read locations", err)
				}
				for i := range locs {
					locs[i].Path = paths.DisplayPath(locs[i].Path, ws.root)
					locs[i].MainFile = paths.DisplayPath(locs[i].MainFile, ws.root)
				}
				entry.Locations = locs
			}
			resp.Symbols = append(resp.Symbols, entry)
		}
		return resp, nil
	})(cmd, args)
}

func runAffected(cmd *cobra.Command, args []string) error {
	if len(affectedDefines) == 0 && len(affectedFiles) == 0 {
		return errors.New(errors.InternalError, "Nothing to check: pass --define or --file", nil)
	}
	return withStore(func(ctx context.Context, ws *workspace, db *storage.DB) (interface{}, error) {
		tracker := incremental.NewTracker(db, ws.logger)
		files, err := tracker.Affected(ctx, incremental.Changes{Defines: affectedDefines, Files: affectedFiles})
		if err != nil {
			return nil, errors.New(errors.StorageFailed, "Failed to compute affected units", err)
		}
		resp := &AffectedResponse{Defines: affectedDefines, Files: affectedFiles, MainFiles: []string{}}
		for _, f := range files {
			resp.MainFiles = append(resp.MainFiles, paths.DisplayPath(f, ws.root))
		}
		return resp, nil
	})(cmd, args)
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, ws *workspace, db *storage.DB) (interface{}, error) {
		runs, err := db.MainFiles(ctx)
		if err != nil {
			return nil, errors.New(errors.StorageFailed, "Failed to read stored runs", err)
		}
		meta, err := index.LoadMeta(paths.DataDir(ws.root))
		if err != nil {
			ws.logger.Warn("Failed to read collect metadata", "error", err)
		}
		freshness := meta.CheckFreshness(time.Now())

		stale, err := incremental.NewTracker(db, ws.logger).Stale(ctx)
		if err != nil {
			return nil, errors.New(errors.StorageFailed, "Failed to check stored runs", err)
		}
		for i := range stale {
			stale[i].MainFile = paths.DisplayPath(stale[i].MainFile, ws.root)
			for j := range stale[i].Files {
				stale[i].Files[j].Path = paths.DisplayPath(stale[i].Files[j].Path, ws.root)
			}
		}

		resp := &StatusResponse{
			Store:       paths.DisplayPath(ws.storePath(), ws.root),
			StoredUnits: len(runs),
			LastCollect: meta,
			Fresh:       freshness.Fresh && len(stale) == 0,
			Reason:      freshness.Reason,
			Stale:       stale,
		}
		if freshness.Fresh && len(stale) > 0 {
			resp.Reason = "sources changed since collection"
		}
		return resp, nil
	})(cmd, args)
}
