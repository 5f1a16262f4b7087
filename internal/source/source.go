// Package source defines the immutable source-unit type, the Provider
// interface, and the path helpers the linker uses to resolve `import`
// paths; the module-graph loader itself lives in package linker.
//
// Per the concurrency model (spec ยง5), the core never touches the
// filesystem itself: a Provider supplies source text for a canonical
// path, and the host decides whether that means reading files, looking
// up a pre-bundled map, or serving an embedded single-file variant with
// imports already stripped.
package source

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Unit is a named text buffer plus its resolved canonical path. Immutable
// once loaded.
type Unit struct {
	Path string
	Text string
}

// Provider resolves a canonical path to source text. Implementations must
// be side-effect-free from the core's perspective: no caching surprises,
// no partial reads.
type Provider interface {
	// Read returns the source text for path, or an error if it cannot be
	// found. path is always a forward-slash path produced by Resolve.
	Read(path string) (string, error)
}

// MapProvider is a Provider backed by an in-memory map, used for embedded
// or pre-bundled deployments and for tests.
type MapProvider map[string]string

func (m MapProvider) Read(path string) (string, error) {
	if text, ok := m[path]; ok {
		return text, nil
	}
	return "", fmt.Errorf("source %q not found", path)
}

// Resolve normalizes an import path relative to the importing file's
// directory. ".fm" is implied if the path has no extension.
func Resolve(fromDir, importPath string) string {
	p := importPath
	if !strings.HasSuffix(p, ".fm") {
		p += ".fm"
	}
	if filepath.IsAbs(p) {
		return filepath.ToSlash(filepath.Clean(p))
	}
	return filepath.ToSlash(filepath.Clean(filepath.Join(fromDir, p)))
}

// Dir returns the directory portion of a canonical path, using forward
// slashes throughout so behavior is identical on every host OS.
func Dir(path string) string {
	d := filepath.ToSlash(filepath.Dir(path))
	if d == "." {
		return ""
	}
	return d
}
