package main

import (
	"sort"

	"github.com/spf13/cobra"

	"macrodex/internal/errors"
	"macrodex/internal/filepaths"
	"macrodex/internal/macros"
	"macrodex/internal/paths"
)

var replayFormat string

var replayCmd = &cobra.Command{
	Use:   "replay <events.yaml>",
	Short: "Run the collector over a recorded event stream",
	Long: `Feeds a YAML event stream, as written by 'collect --dump-events', to a fresh
collector and prints its result. Useful for reproducing a collection without
the sources or compiler flags that produced it.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayFormat, "format", "human", "Output format (human, json, yaml)")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	format, err := parseFormat(replayFormat)
	if err != nil {
		return err
	}

	script, err := macros.LoadScript(args[0])
	if err != nil {
		return errors.New(errors.ParseFailed, "Failed to load event stream", err)
	}

	cache := filepaths.NewCache()
	res, err := macros.Replay(cache, script.Events,
		macros.WithStableNamer(macros.NewStableNamer(ws.root)),
		macros.WithLogger(ws.logger))
	if err != nil {
		return errors.New(errors.ParseFailed, "Invalid event stream", err)
	}

	return printResponse(cmd, replayResponse(ws.root, cache, len(script.Events), res), format)
}

func replayResponse(root string, cache *filepaths.Cache, events int, res macros.Result) *ReplayResponse {
	display := func(id macros.FileID) string {
		if p, ok := cache.FilePath(id); ok {
			return paths.DisplayPath(p, root)
		}
		return ""
	}

	resp := &ReplayResponse{
		Events:        events,
		Symbols:       []ReplaySymbol{},
		Locations:     []ReplayLocation{},
		IncludedFiles: []string{},
		UsedDefines:   []ReplayUsedDefine{},
	}
	for idx, sym := range res.Symbols {
		resp.Symbols = append(resp.Symbols, ReplaySymbol{Index: idx, USR: sym.USR, Name: sym.Name})
	}
	sort.Slice(resp.Symbols, func(i, j int) bool { return resp.Symbols[i].Index < resp.Symbols[j].Index })

	for _, loc := range res.Locations {
		resp.Locations = append(resp.Locations, ReplayLocation{
			Symbol: loc.Symbol,
			File:   display(loc.File),
			Line:   loc.Line,
			Column: loc.Column,
			Role:   loc.Role,
		})
	}
	for _, id := range res.Files {
		resp.IncludedFiles = append(resp.IncludedFiles, display(id))
	}
	for _, u := range res.UsedDefines {
		resp.UsedDefines = append(resp.UsedDefines, ReplayUsedDefine{Name: u.Name, File: display(u.File)})
	}
	return resp
}
