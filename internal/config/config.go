// Package config loads CLI-level settings for the formulang command:
// the default search path for imports, output format, and solver
// tolerances. It is deliberately thin - the compiler core in
// internal/formulang never depends on it, per spec ยง5's "no I/O inside
// the core" rule.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// Config is the resolved set of CLI options, merged from (in increasing
// priority) defaults, a formulang.toml file, and environment variables
// prefixed FORMULANG_. No command-line flag is merged into it.
//
// The same struct backs two distinct decode paths: Load's layered viper
// lookup (mapstructure tags) and an explicit --config file handed
// straight to BurntSushi/toml (toml tags). Both name the same keys so a
// formulang.toml written for one reads the same under the other.
type Config struct {
	// SearchPaths is where bare import paths are resolved against, in
	// order, when the CLI (rather than an embedding host) loads sources
	// from disk.
	SearchPaths []string `mapstructure:"search_paths" toml:"search_paths"`

	// OutputFormat is "text" or "json".
	OutputFormat string `mapstructure:"output_format" toml:"output_format"`

	// SimplexTolerance is passed to the LP solver as its numerical
	// feasibility tolerance.
	SimplexTolerance float64 `mapstructure:"simplex_tolerance" toml:"simplex_tolerance"`
}

// Defaults returns the configuration used when neither a formulang.toml
// nor an explicit --config file supplies a value.
func Defaults() Config {
	return Config{
		SearchPaths:      []string{"."},
		OutputFormat:     "text",
		SimplexTolerance: 1e-9,
	}
}

// Load reads formulang.toml from dir (if present), overlays
// FORMULANG_-prefixed environment variables, and returns the merged
// Config. A missing config file is not an error - defaults apply.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("formulang")
	v.SetConfigType("toml")
	v.AddConfigPath(dir)
	v.SetEnvPrefix("FORMULANG")
	v.AutomaticEnv()

	d := Defaults()
	v.SetDefault("search_paths", d.SearchPaths)
	v.SetDefault("output_format", d.OutputFormat)
	v.SetDefault("simplex_tolerance", d.SimplexTolerance)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("reading %s: %w", filepath.Join(dir, "formulang.toml"), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// LoadFile decodes path directly with BurntSushi/toml, independent of
// Load's viper-based lookup - this is the --config flag's code path,
// for a caller naming one specific file rather than asking the CLI to
// discover formulang.toml on a search path. Fields absent from path
// keep their Defaults() value.
func LoadFile(path string) (*Config, error) {
	cfg := Defaults()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &cfg, nil
}

// ResolveImport searches cfg.SearchPaths in order for the first
// existing file at path, falling back to path itself so the caller's
// own error message names what was actually looked up.
func (c *Config) ResolveImport(path string) string {
	for _, dir := range c.SearchPaths {
		candidate := filepath.Join(dir, path)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return path
}
