package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNoFilePresent(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"."}, cfg.SearchPaths)
	assert.Equal(t, "text", cfg.OutputFormat)
	assert.Equal(t, 1e-9, cfg.SimplexTolerance)
}

func TestLoad_TOMLFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	toml := `output_format = "json"
simplex_tolerance = 1e-6
search_paths = ["./ingredients", "./nutrients"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "formulang.toml"), []byte(toml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.OutputFormat)
	assert.Equal(t, 1e-6, cfg.SimplexTolerance)
	assert.Equal(t, []string{"./ingredients", "./nutrients"}, cfg.SearchPaths)
}

func TestLoad_EnvVarOverridesFileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	toml := `output_format = "json"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "formulang.toml"), []byte(toml), 0o644))
	t.Setenv("FORMULANG_OUTPUT_FORMAT", "text")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "text", cfg.OutputFormat, "environment variables take priority over the config file")
}

func TestLoadFile_DecodesExplicitPathIndependentOfViper(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	toml := `output_format = "json"
simplex_tolerance = 1e-4
`
	require.NoError(t, os.WriteFile(path, []byte(toml), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.OutputFormat)
	assert.Equal(t, 1e-4, cfg.SimplexTolerance)
	assert.Equal(t, []string{"."}, cfg.SearchPaths, "fields absent from the file keep their default")
}

func TestLoadFile_MissingFileIsAnError(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestResolveImport_SearchesPathsInOrder(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(second, "corn.fm"), []byte(""), 0o644))

	cfg := &Config{SearchPaths: []string{first, second}}
	got := cfg.ResolveImport("corn.fm")
	assert.Equal(t, filepath.Join(second, "corn.fm"), got)
}

func TestResolveImport_FallsBackToPathWhenNotFound(t *testing.T) {
	cfg := &Config{SearchPaths: []string{t.TempDir()}}
	got := cfg.ResolveImport("nonexistent.fm")
	assert.Equal(t, "nonexistent.fm", got)
}
