// Package linker loads a root source and its transitive imports into a
// module graph, detecting import cycles and recording each module's
// namespace bindings. It does not bind individual references - that is
// the resolver's job - but it does resolve which modules back which
// namespaces, since that's purely a function of the import statements.
package linker

import (
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bherbruck/formulang/internal/ast"
	"github.com/bherbruck/formulang/internal/diag"
	"github.com/bherbruck/formulang/internal/parser"
	"github.com/bherbruck/formulang/internal/source"
)

// Origin identifies a declaration by where it was defined, used to
// de-duplicate declarations that reach an importer via more than one
// chained re-export path.
type Origin struct {
	SourcePath string
	DeclName   string
}

// ModuleLink carries a parsed Module plus its resolved import namespaces.
type ModuleLink struct {
	Module *ast.Module

	// Namespaces maps a namespace alias (import stem or `as` alias) to the
	// module path it refers to.
	Namespaces map[string]string

	// Directs maps a directly-imported local name to its origin.
	Directs map[string]Origin

	// Wildcards lists the module paths this module wildcard-imports.
	Wildcards []string
}

// Graph is the full set of modules reachable from a root source.
type Graph struct {
	Root    string
	Modules map[string]*ModuleLink
}

// Load parses the root source and every module it transitively imports,
// detecting import cycles. A non-nil Graph is always returned, containing
// whatever modules were successfully loaded before any fatal error.
func Load(rootPath, rootSrc string, prov source.Provider) (*Graph, *diag.Bag) {
	bag := &diag.Bag{}
	g := &Graph{Root: rootPath, Modules: map[string]*ModuleLink{}}

	l := &loader{prov: prov, graph: g, bag: bag, loading: map[string]chan struct{}{}}
	l.load(rootPath, rootSrc, nil)

	return g, bag
}

// loader walks the import graph depth-first from the root, fanning the
// independent subtrees of each module's import list out across goroutines.
// Every field below is shared across those goroutines and must only be
// touched while holding mu.
type loader struct {
	prov    source.Provider
	graph   *Graph
	bag     *diag.Bag
	mu      sync.Mutex
	loading map[string]chan struct{} // path -> closed when that path's load() returns
}

// load parses path and every module it imports. chain is this goroutine's
// own copy of the DFS path taken to reach path; it is value-copied down
// each call and never shared with sibling goroutines, so a cycle check
// against it is race-free by construction - unlike a shared "currently
// loading" set, which would flag two independent goroutines converging on
// the same diamond-shared import (neither an ancestor of the other) as a
// cycle.
func (l *loader) load(path, text string, chain []string) {
	for _, ancestor := range chain {
		if ancestor == path {
			full := append(append([]string{}, chain...), path)
			l.mu.Lock()
			l.bag.Errorf(diag.Span{}, diag.CodeImportCycle, "import cycle: %s", strings.Join(full, " -> "))
			l.mu.Unlock()
			return
		}
	}

	l.mu.Lock()
	if _, ok := l.graph.Modules[path]; ok {
		l.mu.Unlock()
		return // already loaded
	}
	if ch, ok := l.loading[path]; ok {
		// Some other goroutine - a sibling or cousin reaching the same
		// diamond-shared import, not an ancestor of us - is already
		// loading path. Wait for it instead of loading (and racing on
		// graph.Modules) a second time.
		l.mu.Unlock()
		<-ch
		return
	}
	ch := make(chan struct{})
	l.loading[path] = ch
	l.mu.Unlock()
	defer close(ch)

	mod, parseDiags := parser.Parse(path, text)
	l.mu.Lock()
	for _, d := range parseDiags.All() {
		d.Source = path
		l.bag.Add(d)
	}
	l.mu.Unlock()

	link := &ModuleLink{
		Module:     mod,
		Namespaces: map[string]string{},
		Directs:    map[string]Origin{},
	}
	l.mu.Lock()
	l.graph.Modules[path] = link
	l.mu.Unlock()

	childChain := append(append([]string{}, chain...), path)
	dir := source.Dir(path)

	var g errgroup.Group
	var bindMu sync.Mutex
	for _, imp := range mod.Imports {
		imp := imp
		g.Go(func() error {
			importedPath := source.Resolve(dir, imp.Path)

			childText, err := l.prov.Read(importedPath)
			if err != nil {
				l.mu.Lock()
				l.bag.Errorf(diag.Span(imp.Span), diag.CodeImportNotFound, "import %q: %v", imp.Path, err)
				l.mu.Unlock()
				return nil
			}
			l.load(importedPath, childText, childChain)

			bindMu.Lock()
			defer bindMu.Unlock()
			switch imp.Binding {
			case ast.BindNamespaced, ast.BindAliased:
				link.Namespaces[imp.Alias] = importedPath
			case ast.BindDirectList:
				for _, name := range imp.Names {
					link.Directs[name] = Origin{SourcePath: importedPath, DeclName: name}
				}
			case ast.BindWildcard:
				link.Wildcards = append(link.Wildcards, importedPath)
			}
			return nil
		})
	}
	g.Wait()
}

// WildcardNames returns every name reachable through path's wildcard
// imports, transitively following chained re-exports. Identity is
// preserved by (source path, decl name), so a name reachable through two
// different wildcard chains is reported once.
func WildcardNames(g *Graph, path string) map[string]Origin {
	seen := map[string]bool{}
	return wildcardNames(g, path, seen)
}

func wildcardNames(g *Graph, path string, seen map[string]bool) map[string]Origin {
	if seen[path] {
		return nil
	}
	seen[path] = true

	link, ok := g.Modules[path]
	if !ok {
		return nil
	}

	out := map[string]Origin{}
	for _, d := range link.Module.Decls {
		out[d.Name()] = Origin{SourcePath: path, DeclName: d.Name()}
	}
	for _, wpath := range link.Wildcards {
		for name, origin := range wildcardNames(g, wpath, seen) {
			out[name] = origin
		}
	}
	return out
}

// ModulePaths returns every module path in the graph, with the root first.
func (g *Graph) ModulePaths() []string {
	paths := make([]string, 0, len(g.Modules))
	paths = append(paths, g.Root)
	for p := range g.Modules {
		if p != g.Root {
			paths = append(paths, p)
		}
	}
	return paths
}
