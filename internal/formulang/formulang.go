// Package formulang is the public entry point described in spec ยง6: a
// small set of pure functions - solve, get_formulas, validate, get_hover,
// get_completions - each taking source text (plus, for solve/validate, a
// Provider for resolving imports) and returning a value or diagnostics.
//
// Per the concurrency model in spec ยง5, none of these functions touch
// the filesystem themselves, hold state between calls, or share data
// across goroutines; a host that wants "solve every formula" concurrency
// calls Solve once per formula from as many goroutines as it likes.
package formulang

import (
	"github.com/bherbruck/formulang/internal/ast"
	"github.com/bherbruck/formulang/internal/diag"
	"github.com/bherbruck/formulang/internal/lexer"
	"github.com/bherbruck/formulang/internal/linker"
	"github.com/bherbruck/formulang/internal/parser"
	"github.com/bherbruck/formulang/internal/resolver"
	"github.com/bherbruck/formulang/internal/solve"
	"github.com/bherbruck/formulang/internal/source"
)

// RootPath is the canonical path given to a root source passed as a bare
// string, for diagnostics and import resolution purposes.
const RootPath = "root.fm"

// FormulaInfo is one entry of GetFormulas' result.
type FormulaInfo struct {
	Name       string
	IsTemplate bool
}

// Solve compiles src (resolving any imports through prov, which may be
// nil for a single-file program) and solves the named formula. tolerance
// is passed straight through to the LP solver as its numerical
// feasibility tolerance; callers without a configured value should pass
// solve.DefaultTolerance.
func Solve(src, formulaName string, prov source.Provider, tolerance float64) (*solve.Result, *diag.Bag) {
	g, bag := compile(src, prov)
	if bag.HasErrors() {
		return &solve.Result{Status: solve.StatusError, FormulaName: formulaName, Message: "source has unresolved diagnostics"}, bag
	}

	f := findFormula(g, formulaName)
	if f == nil {
		bag.Errorf(diag.Span{}, diag.CodeUnknownIdent, "no formula named %q", formulaName)
		return &solve.Result{Status: solve.StatusError, FormulaName: formulaName, Message: "formula not found"}, bag
	}

	res, sbag := solve.Solve(g, g.Root, f, tolerance)
	bag.Merge(sbag)
	return res, bag
}

// Validate runs lex -> parse -> link -> resolve over src and returns
// every diagnostic produced. Later stages still run even when earlier
// ones produced errors, per spec ยง4.8: "each stage contributes".
func Validate(src string, prov source.Provider) []diag.Diagnostic {
	_, bag := compile(src, prov)
	return bag.All()
}

// GetFormulas performs a cheap top-level scan of src's own declarations
// (imported formulas are not listed), tolerating parse errors elsewhere
// in the file.
func GetFormulas(src string) []FormulaInfo {
	mod, _ := parser.Parse(RootPath, src)
	var out []FormulaInfo
	for _, d := range mod.Decls {
		if d.Formula != nil {
			out = append(out, FormulaInfo{Name: d.Formula.Name, IsTemplate: d.Formula.IsTemplate})
		}
	}
	return out
}

func compile(src string, prov source.Provider) (*linker.Graph, *diag.Bag) {
	if prov == nil {
		prov = source.MapProvider{}
	}
	g, bag := linker.Load(RootPath, src, prov)
	bag.Merge(resolver.Validate(g))
	return g, bag
}

func findFormula(g *linker.Graph, name string) *ast.FormulaDecl {
	root, ok := g.Modules[g.Root]
	if !ok {
		return nil
	}
	for _, d := range root.Module.Decls {
		if d.Formula != nil && d.Formula.Name == name {
			return d.Formula
		}
	}
	return nil
}

// reparse is a small helper shared by the hover/completion queries,
// which operate on a best-effort partial parse of the root source alone
// - they must work even when downstream linking would fail.
func reparse(src string) (*ast.Module, []lexer.Token) {
	mod, _ := parser.Parse(RootPath, src)
	return mod, lexer.New(src).Tokenize()
}
