package main

import (
	"github.com/bherbruck/formulang/internal/config"
	"github.com/bherbruck/formulang/internal/source"
)

// searchPathProvider reads each import path from the filesystem after
// resolving it against cfg.SearchPaths, so `import "corn"` can be
// satisfied from a configured ingredients/nutrients directory instead of
// only the importing file's own directory.
type searchPathProvider struct {
	cfg *config.Config
}

func (p searchPathProvider) Read(path string) (string, error) {
	return source.FSProvider{}.Read(p.cfg.ResolveImport(path))
}
