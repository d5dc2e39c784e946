package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"macrodex/internal/compdb"
	"macrodex/internal/discover"
	"macrodex/internal/errors"
	"macrodex/internal/filepaths"
	"macrodex/internal/frontend"
	"macrodex/internal/index"
	"macrodex/internal/indexer"
	"macrodex/internal/macros"
	"macrodex/internal/paths"
	"macrodex/internal/scip"
	"macrodex/internal/storage"
	"macrodex/internal/version"
)

var (
	collectFormat     string
	collectStore      bool
	collectSCIP       bool
	collectCompress   bool
	collectDumpEvents string
	collectWorkers    int
)

var collectCmd = &cobra.Command{
	Use:   "collect [files...]",
	Short: "Collect macro symbols, included files and used defines",
	Long: `Runs the preprocessor over translation units and reports what each one
defines, undefines, uses and includes.

Units come from the arguments, else from compile_commands.json, else from the
sources.include globs in the configuration.

Examples:
  macrodex collect src/main.c
  macrodex collect --store --scip
  macrodex collect --format json --dump-events /tmp/events`,
	RunE: runCollect,
}

func init() {
	collectCmd.Flags().StringVar(&collectFormat, "format", "human", "Output format (human, json, yaml)")
	collectCmd.Flags().BoolVar(&collectStore, "store", false, "Persist results to the store")
	collectCmd.Flags().BoolVar(&collectSCIP, "scip", false, "Export results to a SCIP index (export.scipPath)")
	collectCmd.Flags().BoolVar(&collectCompress, "compress", false, "zstd-compress the SCIP index")
	collectCmd.Flags().StringVar(&collectDumpEvents, "dump-events", "", "Write each unit's event stream as YAML into this directory")
	collectCmd.Flags().IntVar(&collectWorkers, "workers", 0, "Concurrent units (default indexer.workers or GOMAXPROCS)")
	rootCmd.AddCommand(collectCmd)
}

// UnitSummary describes the result of one translation unit.
type UnitSummary struct {
	File          string   `json:"file" yaml:"file"`
	Symbols       int      `json:"symbols" yaml:"symbols"`
	Locations     int      `json:"locations" yaml:"locations"`
	IncludedFiles []string `json:"includedFiles" yaml:"includedFiles"`
	UsedDefines   []string `json:"usedDefines" yaml:"usedDefines"`
}

// FailedUnit is a unit whose main file could not be processed.
type FailedUnit struct {
	File  string `json:"file" yaml:"file"`
	Error string `json:"error" yaml:"error"`
}

// CollectSummary is the output of the collect command.
type CollectSummary struct {
	Units    []UnitSummary `json:"units" yaml:"units"`
	Failed   []FailedUnit  `json:"failed,omitempty" yaml:"failed,omitempty"`
	Stored   bool          `json:"stored" yaml:"stored"`
	SCIPPath string        `json:"scipPath,omitempty" yaml:"scipPath,omitempty"`
	Duration string        `json:"duration" yaml:"duration"`
}

func runCollect(cmd *cobra.Command, args []string) error {
	if !frontend.IsAvailable() {
		return errors.New(errors.InternalError, "This build cannot preprocess sources", frontend.ErrNoCGO)
	}
	ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	format, err := parseFormat(collectFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	start := time.Now()

	units, dbPath, err := buildUnits(ws, args)
	if err != nil {
		return err
	}
	if len(units) == 0 {
		return errors.New(errors.CompDBMissing, "No translation units found", nil)
	}
	ws.logger.Info("Collecting", "units", len(units), "compileCommands", dbPath)

	cache := filepaths.NewCache()
	var db *storage.DB
	if collectStore {
		lock, err := index.AcquireLock(paths.DataDir(ws.root))
		if err != nil {
			return err
		}
		defer lock.Release()

		if db, err = ws.openStore(false); err != nil {
			return err
		}
		defer db.Close()
		entries, err := db.FilePaths(ctx)
		if err != nil {
			return errors.New(errors.StorageFailed, "Failed to read stored file paths", err)
		}
		if err := cache.Preload(entries); err != nil {
			return errors.New(errors.StorageFailed, "Stored file paths are inconsistent", err)
		}
	}

	workers := collectWorkers
	if workers == 0 {
		workers = ws.cfg.Indexer.Workers
	}
	runner := indexer.New(indexer.Options{
		Workers:         workers,
		Flags:           baseFlags(ws),
		MaxIncludeDepth: ws.cfg.Preprocessor.MaxIncludeDepth,
		Resolver:        cache,
		Namer:           macros.NewStableNamer(ws.root),
		RecordEvents:    collectDumpEvents != "",
		Logger:          ws.logger,
	})
	report, err := runner.Run(ctx, units)
	if err != nil {
		return err
	}
	if len(report.Outputs) == 0 && len(report.Failed) > 0 {
		return errors.New(errors.SourceUnreadable, "Every translation unit failed", report.Failed[0])
	}

	summary := &CollectSummary{}
	for _, out := range report.Outputs {
		summary.Units = append(summary.Units, summarizeUnit(ws.root, cache, out))
	}
	for _, f := range report.Failed {
		summary.Failed = append(summary.Failed, FailedUnit{File: paths.DisplayPath(f.File, ws.root), Error: f.Err.Error()})
	}

	if collectDumpEvents != "" {
		if err := dumpEvents(collectDumpEvents, ws.root, report.Outputs); err != nil {
			return errors.New(errors.InternalError, "Failed to write event streams", err)
		}
	}

	if db != nil {
		for _, out := range report.Outputs {
			rec := storage.RunRecord{
				MainFile:   out.Unit.File,
				StartedAt:  out.StartedAt,
				FinishedAt: out.FinishedAt,
				Result:     out.Result,
			}
			if _, err := db.SaveRun(ctx, rec, cache); err != nil {
				return errors.New(errors.StorageFailed, fmt.Sprintf("Failed to store %s", out.Unit.File), err)
			}
		}
		summary.Stored = true
	}

	if collectSCIP {
		scipUnits := make([]scip.Unit, 0, len(report.Outputs))
		for _, out := range report.Outputs {
			scipUnits = append(scipUnits, scip.Unit{MainFile: out.Unit.File, Result: out.Result})
		}
		idx := scip.Export(scipUnits, cache, scip.Options{ProjectRoot: ws.root, Arguments: os.Args[1:], Logger: ws.logger})
		out := ws.cfg.ResolvePath(ws.root, ws.cfg.Export.SCIPPath)
		compress := collectCompress || ws.cfg.Export.Compress
		if compress && !strings.HasSuffix(out, ".zst") {
			out += ".zst"
		}
		if err := scip.Write(out, idx, compress); err != nil {
			return errors.New(errors.InternalError, "Failed to write SCIP index", err)
		}
		summary.SCIPPath = paths.DisplayPath(out, ws.root)
	}

	summary.Duration = time.Since(start).Round(time.Millisecond).String()

	if collectStore {
		meta := &index.CollectMeta{
			CreatedAt:       time.Now(),
			Duration:        summary.Duration,
			Units:           len(report.Outputs),
			CompileCommands: dbPath,
			Tool:            "macrodex",
			ToolVersion:     version.Version,
			Args:            os.Args[1:],
		}
		for _, f := range summary.Failed {
			meta.FailedUnits = append(meta.FailedUnits, f.File)
		}
		for _, u := range summary.Units {
			meta.Symbols += u.Symbols
			meta.Locations += u.Locations
		}
		if err := meta.Save(paths.DataDir(ws.root)); err != nil {
			ws.logger.Warn("Failed to save collect metadata", "error", err)
		}
	}

	return printResponse(cmd, summary, format)
}

// baseFlags turns the preprocessor section of the config into flags applied
// before each unit's own flags.
func baseFlags(ws *workspace) compdb.Flags {
	p := ws.cfg.Preprocessor
	resolve := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			out = append(out, ws.cfg.ResolvePath(ws.root, s))
		}
		return out
	}
	flags := compdb.Flags{
		IncludePaths:   resolve(p.IncludePaths),
		QuotePaths:     resolve(p.QuotePaths),
		SystemPaths:    resolve(p.SystemPaths),
		ForcedIncludes: resolve(p.ForcedIncludes),
	}
	for _, d := range p.Defines {
		flags.Defines = append(flags.Defines, compdb.ParseDefine(d))
	}
	for _, u := range p.Undefines {
		flags.Defines = append(flags.Defines, compdb.Define{Name: u, Undef: true})
	}
	return flags
}

// buildUnits picks translation units: explicit files (with their flags from
// the compilation database when it lists them), else the whole compilation
// database, else discovery.
func buildUnits(ws *workspace, args []string) ([]compdb.Unit, string, error) {
	var fromDB []compdb.Unit
	dbPath, found := compdb.Find(ws.root, ws.cfg.Sources.CompileCommands)
	if found {
		db, err := compdb.Load(dbPath)
		if err != nil {
			return nil, "", errors.New(errors.CompDBInvalid, fmt.Sprintf("Failed to load %s", dbPath), err)
		}
		var skipped []string
		fromDB, skipped = db.Units()
		for _, s := range skipped {
			ws.logger.Warn("Skipping compile command", "file", s)
		}
	} else {
		dbPath = ""
	}

	if len(args) > 0 {
		byFile := make(map[string]compdb.Unit, len(fromDB))
		for _, u := range fromDB {
			byFile[u.File] = u
		}
		units := make([]compdb.Unit, 0, len(args))
		for _, a := range args {
			abs, err := filepath.Abs(a)
			if err != nil {
				return nil, "", err
			}
			if u, ok := byFile[abs]; ok {
				units = append(units, u)
			} else {
				units = append(units, compdb.Unit{File: abs})
			}
		}
		return units, dbPath, nil
	}

	if found {
		return fromDB, dbPath, nil
	}

	finder, err := discover.New(ws.root, ws.cfg.Sources.Include, ws.cfg.Sources.Exclude)
	if err != nil {
		return nil, "", errors.New(errors.ConfigInvalid, "Invalid source patterns", err)
	}
	files, err := finder.Files()
	if err != nil {
		return nil, "", errors.New(errors.InternalError, "Failed to discover sources", err)
	}
	units := make([]compdb.Unit, 0, len(files))
	for _, f := range files {
		units = append(units, compdb.Unit{File: f})
	}
	return units, "", nil
}

func summarizeUnit(root string, cache *filepaths.Cache, out indexer.Output) UnitSummary {
	s := UnitSummary{
		File:          paths.DisplayPath(out.Unit.File, root),
		Symbols:       len(out.Result.Symbols),
		Locations:     len(out.Result.Locations),
		IncludedFiles: []string{},
		UsedDefines:   []string{},
	}
	for _, id := range out.Result.Files {
		if p, ok := cache.FilePath(id); ok {
			s.IncludedFiles = append(s.IncludedFiles, paths.DisplayPath(p, root))
		}
	}
	// Used defines are sorted by name, so equal names are adjacent.
	for _, u := range out.Result.UsedDefines {
		if n := len(s.UsedDefines); n == 0 || s.UsedDefines[n-1] != u.Name {
			s.UsedDefines = append(s.UsedDefines, u.Name)
		}
	}
	return s
}

// eventFileName flattens a repo-relative source path into one file name.
func eventFileName(root, mainFile string) string {
	rel := paths.DisplayPath(mainFile, root)
	rel = strings.TrimLeft(filepath.ToSlash(rel), "/")
	return strings.ReplaceAll(rel, "/", "__") + ".events.yaml"
}

func dumpEvents(dir, root string, outputs []indexer.Output) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, out := range outputs {
		if out.Events == nil {
			continue
		}
		f, err := os.Create(filepath.Join(dir, eventFileName(root, out.Unit.File)))
		if err != nil {
			return err
		}
		if err := macros.WriteScript(f, out.Events); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
