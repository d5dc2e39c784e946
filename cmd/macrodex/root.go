package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"macrodex/internal/config"
	"macrodex/internal/errors"
	"macrodex/internal/slogutil"
	"macrodex/internal/storage"
	"macrodex/internal/version"
)

var (
	verbosity  int
	quiet      bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "macrodex",
	Short: "macrodex - preprocessor macro indexer for C and C++",
	Long: `macrodex runs a preprocessor over C and C++ translation units and records
every macro definition, #undef and use, the files each unit includes, and the
macro names whose state each unit depends on.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("macrodex version {{.Version}}\n")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress all log output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default .macrodex/config.json)")
}

// workspace is the state shared by commands: where the repo is, its config
// and a logger honouring the global flags.
type workspace struct {
	root   string
	cfg    *config.Config
	logger *slog.Logger
}

func loadWorkspace() (*workspace, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.New(errors.InternalError, "Failed to get current directory", err)
	}

	var cfg *config.Config
	if configPath != "" {
		cfg, err = config.LoadConfigFile(configPath)
	} else {
		cfg, err = config.LoadConfig(cwd)
	}
	if err != nil {
		return nil, errors.New(errors.ConfigInvalid, "Failed to load configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.New(errors.ConfigInvalid, "Invalid configuration", err)
	}

	return &workspace{
		root:   cfg.ResolvePath(cwd, "."),
		cfg:    cfg,
		logger: newLogger(cfg),
	}, nil
}

// newLogger writes to stderr. -v and -q take precedence over logging.level.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slogutil.LevelFromString(cfg.Logging.Level)
	if verbosity > 0 || quiet {
		level = slogutil.LevelFromVerbosity(verbosity, quiet)
	}
	return slogutil.NewLoggerWithFormat(os.Stderr, cfg.Logging.Format, level)
}

func (w *workspace) storePath() string {
	return w.cfg.ResolvePath(w.root, w.cfg.Storage.Path)
}

// openStore opens the store. With mustExist it fails with INDEX_MISSING when
// nothing has been stored yet.
func (w *workspace) openStore(mustExist bool) (*storage.DB, error) {
	path := w.storePath()
	if mustExist {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, errors.New(errors.IndexMissing, fmt.Sprintf("No store found at %s", path), err)
		}
	}
	db, err := storage.Open(path, w.logger)
	if err != nil {
		return nil, errors.New(errors.StorageFailed, "Failed to open store", err)
	}
	return db, nil
}
