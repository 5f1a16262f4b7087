package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_ImpliesExtension(t *testing.T) {
	assert.Equal(t, "lib/grains.fm", Resolve("lib", "grains"))
	assert.Equal(t, "lib/grains.fm", Resolve("lib", "grains.fm"))
}

func TestResolve_RelativeToImportingDir(t *testing.T) {
	assert.Equal(t, "a/b/grains.fm", Resolve("a/b", "grains"))
	assert.Equal(t, "a/grains.fm", Resolve("a/b", "../grains"))
	assert.Equal(t, "grains.fm", Resolve("", "grains"))
}

func TestDir(t *testing.T) {
	assert.Equal(t, "a/b", Dir("a/b/root.fm"))
	assert.Equal(t, "", Dir("root.fm"))
}

func TestMapProvider(t *testing.T) {
	m := MapProvider{"root.fm": "nutrient x {}"}
	text, err := m.Read("root.fm")
	require.NoError(t, err)
	assert.Equal(t, "nutrient x {}", text)

	_, err = m.Read("missing.fm")
	assert.Error(t, err)
}

func TestFSProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "root.fm")
	require.NoError(t, os.WriteFile(path, []byte("group g { a }"), 0o644))

	text, err := FSProvider{}.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "group g { a }", text)

	_, err = FSProvider{}.Read(filepath.Join(dir, "missing.fm"))
	assert.Error(t, err)
}
