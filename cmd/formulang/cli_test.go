package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bherbruck/formulang/internal/config"
	"github.com/bherbruck/formulang/internal/solve"
)

const sampleSrc = `nutrient protein { desc "Crude protein" }
ingredient corn { cost 150, protein 8.5 }
formula starter {
	batch_size 1000
	nutrients { protein min 8 }
	ingredients { corn }
}
template formula base {
	nutrients { protein min 10 }
}`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.fm")
	require.NoError(t, os.WriteFile(path, []byte(sampleSrc), 0o644))
	return path
}

// captureStdout runs fn with os.Stdout redirected to a pipe, and
// returns whatever fn wrote.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old
	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

func TestFormulasCmd_ListsFormulasAndTagsTemplates(t *testing.T) {
	path := writeSample(t)
	jsonOutput = false
	out := captureStdout(t, func() {
		require.NoError(t, formulasCmd.RunE(formulasCmd, []string{path}))
	})
	assert.Contains(t, out, "starter\n")
	assert.Contains(t, out, "base (template)\n")
}

func TestFormulasCmd_JSONOutput(t *testing.T) {
	path := writeSample(t)
	jsonOutput = true
	defer func() { jsonOutput = false }()
	out := captureStdout(t, func() {
		require.NoError(t, formulasCmd.RunE(formulasCmd, []string{path}))
	})
	assert.Contains(t, out, `"Name":"starter"`)
}

func TestFormulasCmd_MissingFileReturnsError(t *testing.T) {
	jsonOutput = false
	err := formulasCmd.RunE(formulasCmd, []string{filepath.Join(t.TempDir(), "missing.fm")})
	assert.Error(t, err)
}

func TestHoverCmd_PrintsDocumentationAtOffset(t *testing.T) {
	path := writeSample(t)
	jsonOutput = false
	out := captureStdout(t, func() {
		require.NoError(t, hoverCmd.RunE(hoverCmd, []string{path, "9"}))
	})
	assert.Contains(t, out, "protein")
}

func TestHoverCmd_InvalidOffsetReturnsError(t *testing.T) {
	path := writeSample(t)
	err := hoverCmd.RunE(hoverCmd, []string{path, "not-a-number"})
	assert.Error(t, err)
}

func TestSolveCmd_UsesConfiguredSearchPathsAndTolerance(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.fm")
	require.NoError(t, os.WriteFile(path, []byte(sampleSrc), 0o644))

	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg = &config.Config{SearchPaths: []string{dir}, SimplexTolerance: solve.DefaultTolerance}
	jsonOutput = false

	out := captureStdout(t, func() {
		require.NoError(t, solveCmd.RunE(solveCmd, []string{path, "starter"}))
	})
	assert.Contains(t, out, "status: optimal")
}

func TestValidateCmd_ResolvesImportsThroughConfiguredSearchPaths(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "root.fm")
	require.NoError(t, os.WriteFile(root, []byte(`import "grains.fm"`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "grains.fm"), []byte(`ingredient corn { cost 150 }`), 0o644))

	cfg = &config.Config{SearchPaths: []string{dir}, SimplexTolerance: solve.DefaultTolerance}
	jsonOutput = false

	out := captureStdout(t, func() {
		require.NoError(t, validateCmd.RunE(validateCmd, []string{root}))
	})
	assert.Empty(t, out, "a clean validate prints nothing")
}

func TestCompletionsCmd_ListsTopLevelKeywords(t *testing.T) {
	path := writeSample(t)
	jsonOutput = false
	out := captureStdout(t, func() {
		require.NoError(t, completionsCmd.RunE(completionsCmd, []string{path, "0"}))
	})
	assert.Contains(t, out, "keyword")
}
