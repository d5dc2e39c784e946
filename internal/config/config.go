// Package config loads .macrodex/config.json.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"macrodex/internal/paths"
)

// CurrentVersion is the only supported config schema version.
const CurrentVersion = 1

// Config is the complete macrodex configuration.
type Config struct {
	Version  int    `json:"version" mapstructure:"version"`
	RepoRoot string `json:"repoRoot" mapstructure:"repoRoot"`

	Sources      SourcesConfig      `json:"sources" mapstructure:"sources"`
	Preprocessor PreprocessorConfig `json:"preprocessor" mapstructure:"preprocessor"`
	Indexer      IndexerConfig      `json:"indexer" mapstructure:"indexer"`
	Storage      StorageConfig      `json:"storage" mapstructure:"storage"`
	Export       ExportConfig       `json:"export" mapstructure:"export"`
	Logging      LoggingConfig      `json:"logging" mapstructure:"logging"`
}

// SourcesConfig selects translation units.
type SourcesConfig struct {
	CompileCommands string   `json:"compileCommands" mapstructure:"compileCommands"`
	Include         []string `json:"include" mapstructure:"include"`
	Exclude         []string `json:"exclude" mapstructure:"exclude"`
}

// PreprocessorConfig holds options applied to every translation unit in
// addition to those found in the compilation database.
type PreprocessorConfig struct {
	IncludePaths    []string `json:"includePaths" mapstructure:"includePaths"`
	QuotePaths      []string `json:"quotePaths" mapstructure:"quotePaths"`
	SystemPaths     []string `json:"systemPaths" mapstructure:"systemPaths"`
	Defines         []string `json:"defines" mapstructure:"defines"`
	Undefines       []string `json:"undefines" mapstructure:"undefines"`
	ForcedIncludes  []string `json:"forcedIncludes" mapstructure:"forcedIncludes"`
	MaxIncludeDepth int      `json:"maxIncludeDepth" mapstructure:"maxIncludeDepth"`
}

// IndexerConfig controls the worker pool. Zero workers means GOMAXPROCS.
type IndexerConfig struct {
	Workers int `json:"workers" mapstructure:"workers"`
}

// StorageConfig locates the SQLite store.
type StorageConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// ExportConfig controls SCIP export.
type ExportConfig struct {
	SCIPPath string `json:"scipPath" mapstructure:"scipPath"`
	Compress bool   `json:"compress" mapstructure:"compress"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:  CurrentVersion,
		RepoRoot: ".",
		Sources: SourcesConfig{
			CompileCommands: "compile_commands.json",
			Include:         []string{"**/*.c", "**/*.cc", "**/*.cpp", "**/*.cxx"},
			Exclude:         []string{"build/**", "third_party/**"},
		},
		Preprocessor: PreprocessorConfig{
			IncludePaths:    []string{},
			QuotePaths:      []string{},
			SystemPaths:     []string{},
			Defines:         []string{},
			Undefines:       []string{},
			ForcedIncludes:  []string{},
			MaxIncludeDepth: 200,
		},
		Storage: StorageConfig{
			Path: filepath.Join(paths.DataDirName, paths.DatabaseFileName),
		},
		Export: ExportConfig{
			SCIPPath: filepath.Join(paths.DataDirName, paths.SCIPFileName),
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("version", d.Version)
	v.SetDefault("repoRoot", d.RepoRoot)
	v.SetDefault("sources.compileCommands", d.Sources.CompileCommands)
	v.SetDefault("sources.include", d.Sources.Include)
	v.SetDefault("sources.exclude", d.Sources.Exclude)
	v.SetDefault("preprocessor.maxIncludeDepth", d.Preprocessor.MaxIncludeDepth)
	v.SetDefault("indexer.workers", d.Indexer.Workers)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("export.scipPath", d.Export.SCIPPath)
	v.SetDefault("export.compress", d.Export.Compress)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.level", d.Logging.Level)
}

// LoadConfig loads configuration from <repoRoot>/.macrodex/config.json,
// returning defaults when the file does not exist. MACRODEX_* environment
// variables override file values (MACRODEX_LOGGING_LEVEL=debug).
func LoadConfig(repoRoot string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(paths.DataDir(repoRoot))
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	return unmarshal(v)
}

// LoadConfigFile loads configuration from an explicit file.
func LoadConfigFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("json")
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return unmarshal(v)
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("MACRODEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the configuration to <repoRoot>/.macrodex/config.json.
func (c *Config) Save(repoRoot string) error {
	if _, err := paths.EnsureDataDir(repoRoot); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(paths.ConfigPath(repoRoot), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if c.Preprocessor.MaxIncludeDepth <= 0 {
		return &ConfigError{Field: "preprocessor.maxIncludeDepth", Message: "must be positive"}
	}
	if c.Indexer.Workers < 0 {
		return &ConfigError{Field: "indexer.workers", Message: "must not be negative"}
	}
	for _, d := range c.Preprocessor.Defines {
		if name, _, _ := strings.Cut(d, "="); name == "" {
			return &ConfigError{Field: "preprocessor.defines", Message: "empty macro name in " + d}
		}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "human", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: "must be human or json"}
	}
	if c.Storage.Path == "" {
		return &ConfigError{Field: "storage.path", Message: "must not be empty"}
	}
	return nil
}

// ResolvePath makes a config-relative path absolute against the repo root.
func (c *Config) ResolvePath(repoRoot, p string) string {
	root := paths.ResolveIn(repoRoot, c.RepoRoot)
	return paths.ResolveIn(root, p)
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
