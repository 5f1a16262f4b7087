// Package resolver binds identifiers against a linked module graph,
// enforces block-context typing (a nutrients block may only reference
// nutrients, an ingredients block only ingredients or groups), and
// computes the symbol tables the composition engine and LP builder
// query on demand.
//
// There is no persistent bound tree: Resolve is a pure function callable
// again by later stages instead of threading a side-table through the
// pipeline, matching the "no shared mutable state" rule in the
// concurrency model.
package resolver

import (
	"fmt"

	"github.com/bherbruck/formulang/internal/ast"
	"github.com/bherbruck/formulang/internal/diag"
	"github.com/bherbruck/formulang/internal/linker"
)

// Kind classifies what a resolved Symbol names.
type Kind int

const (
	KindNutrient Kind = iota
	KindIngredient
	KindGroup
	KindFormula
)

func (k Kind) String() string {
	switch k {
	case KindNutrient:
		return "nutrient"
	case KindIngredient:
		return "ingredient"
	case KindGroup:
		return "group"
	case KindFormula:
		return "formula"
	default:
		return "unknown"
	}
}

// Symbol is a resolved declaration plus the module it lives in.
type Symbol struct {
	Kind       Kind
	ModulePath string
	Nutrient   *ast.NutrientDecl
	Ingredient *ast.IngredientDecl
	Group      *ast.GroupDecl
	Formula    *ast.FormulaDecl
}

func symbolFor(modulePath string, d ast.Decl) *Symbol {
	switch {
	case d.Nutrient != nil:
		return &Symbol{Kind: KindNutrient, ModulePath: modulePath, Nutrient: d.Nutrient}
	case d.Ingredient != nil:
		return &Symbol{Kind: KindIngredient, ModulePath: modulePath, Ingredient: d.Ingredient}
	case d.Group != nil:
		return &Symbol{Kind: KindGroup, ModulePath: modulePath, Group: d.Group}
	case d.Formula != nil:
		return &Symbol{Kind: KindFormula, ModulePath: modulePath, Formula: d.Formula}
	default:
		return nil
	}
}

// localDecl looks up a bare name among a module's own declarations.
func localDecl(g *linker.Graph, modulePath, name string) *Symbol {
	link, ok := g.Modules[modulePath]
	if !ok {
		return nil
	}
	for _, d := range link.Module.Decls {
		if d.Name() == name {
			return symbolFor(modulePath, d)
		}
	}
	return nil
}

// Resolve binds a (possibly dotted) reference path seen inside
// fromModule, following the three rules in spec 4.4:
//  1. a dotted path whose head is a known namespace resolves within it
//  2. a bare identifier resolves to a local decl or a directly-imported name
//  3. otherwise fall back through wildcard imports, erroring on ambiguity
func Resolve(g *linker.Graph, fromModule, path string) (*Symbol, error) {
	link, ok := g.Modules[fromModule]
	if !ok {
		return nil, fmt.Errorf("internal error: unknown module %q", fromModule)
	}

	if i := dotIndex(path); i >= 0 {
		ns, rest := path[:i], path[i+1:]
		if targetPath, isNamespace := link.Namespaces[ns]; isNamespace {
			if dotIndex(rest) >= 0 {
				return nil, fmt.Errorf("unknown identifier %q", path)
			}
			sym := localDecl(g, targetPath, rest)
			if sym == nil {
				return nil, fmt.Errorf("%q has no member named %q", ns, rest)
			}
			return sym, nil
		}
		return nil, fmt.Errorf("unknown namespace %q", ns)
	}

	if sym := localDecl(g, fromModule, path); sym != nil {
		return sym, nil
	}
	if origin, ok := link.Directs[path]; ok {
		sym := localDecl(g, origin.SourcePath, origin.DeclName)
		if sym == nil {
			return nil, fmt.Errorf("unknown identifier %q", path)
		}
		return sym, nil
	}

	candidates := map[string]*Symbol{} // keyed by origin source path, for ambiguity reporting
	// Each wildcard import is looked up on its own: a single merged name
	// table would keep only one origin per name and hide the ambiguity.
	for _, wpath := range link.Wildcards {
		origin, ok := linker.WildcardNames(g, wpath)[path]
		if !ok {
			continue
		}
		if sym := localDecl(g, origin.SourcePath, origin.DeclName); sym != nil {
			candidates[origin.SourcePath] = sym
		}
	}
	if len(candidates) == 1 {
		for _, sym := range candidates {
			return sym, nil
		}
	}
	if len(candidates) > 1 {
		return nil, fmt.Errorf("%q is ambiguous: present in multiple wildcard-imported modules", path)
	}

	return nil, fmt.Errorf("unknown identifier %q", path)
}

func dotIndex(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}

// Validate walks every module's declarations and every formula's
// constraint blocks, binding references and checking block-context
// typing. It returns the diagnostics produced; the absence of any
// error-severity diagnostic is the "resolver-clean" precondition later
// stages require.
func Validate(g *linker.Graph) *diag.Bag {
	bag := &diag.Bag{}

	for _, path := range g.ModulePaths() {
		link := g.Modules[path]
		if link == nil || link.Module == nil {
			continue
		}
		checkRedeclarations(link.Module, path, bag)

		for _, d := range link.Module.Decls {
			if d.Formula == nil {
				continue
			}
			validateFormula(g, path, d.Formula, bag)
		}
	}

	return bag
}

func checkRedeclarations(mod *ast.Module, path string, bag *diag.Bag) {
	seen := map[string]ast.Span{}
	for _, d := range mod.Decls {
		name := d.Name()
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			bag.Add(diag.Diagnostic{
				Span: diag.Span(d.Span()), Severity: diag.Error, Code: diag.CodeRedeclaration,
				Message: fmt.Sprintf("%q is declared more than once in this module", name), Source: path,
			})
			continue
		}
		seen[name] = d.Span()
	}
}

func validateFormula(g *linker.Graph, path string, f *ast.FormulaDecl, bag *diag.Bag) {
	for _, item := range f.NutrientItems {
		validateItem(g, path, item, ast.NutrientsBlock, bag)
	}
	for _, item := range f.IngredientItems {
		validateItem(g, path, item, ast.IngredientsBlock, bag)
	}
}

func validateItem(g *linker.Graph, path string, item ast.Item, bk ast.BlockKind, bag *diag.Bag) {
	if item.Constraint != nil {
		validateExpr(g, path, item.Constraint.LHS, bk, bag)
		if bk != ast.IngredientsBlock {
			for _, l := range []*ast.Limit{item.Constraint.Min, item.Constraint.Max} {
				if l != nil && l.IsPercent {
					bag.Errorf(diag.Span(item.Constraint.Span), diag.CodePercentOutOfPlace, "percent bounds are only allowed inside an ingredients block")
				}
			}
		}
		return
	}
	validateCompositionRef(g, path, item.Comp, bag)
}

func validateCompositionRef(g *linker.Graph, path string, ref ast.CompositionRef, bag *diag.Bag) {
	sym, err := Resolve(g, path, ref.Path)
	if err != nil {
		bag.Errorf(diag.Span(ref.Span), diag.CodeUnknownIdent, "%v", err)
		return
	}
	switch ref.Kind {
	case ast.RefGroupSelect:
		if sym.Kind != KindGroup {
			bag.Errorf(diag.Span(ref.Span), diag.CodeWrongKindRef, "%q is a %s, expected a group", ref.Path, sym.Kind)
		}
	default: // AllOf, Subset, SingleBound all reference a formula
		if sym.Kind != KindFormula {
			bag.Errorf(diag.Span(ref.Span), diag.CodeWrongKindRef, "%q is a %s, expected a formula", ref.Path, sym.Kind)
		}
	}
}

func validateExpr(g *linker.Graph, path string, e ast.Expr, bk ast.BlockKind, bag *diag.Bag) {
	switch e.Kind {
	case ast.ExprNum:
		return
	case ast.ExprPercent:
		if bk != ast.IngredientsBlock {
			bag.Errorf(diag.Span(e.Span), diag.CodePercentOutOfPlace, "percent literals are only allowed inside an ingredients block")
		}
	case ast.ExprParen:
		validateExpr(g, path, *e.Inner, bk, bag)
	case ast.ExprBinary:
		validateExpr(g, path, *e.Left, bk, bag)
		validateExpr(g, path, *e.Right, bk, bag)
	case ast.ExprRef:
		sym, err := Resolve(g, path, e.Ref)
		if err != nil {
			bag.Errorf(diag.Span(e.Span), diag.CodeUnknownIdent, "%v", err)
			return
		}
		switch bk {
		case ast.NutrientsBlock:
			if sym.Kind != KindNutrient {
				bag.Errorf(diag.Span(e.Span), diag.CodeWrongKindRef, "%q is a %s, expected a nutrient", e.Ref, sym.Kind)
			}
		case ast.IngredientsBlock:
			if sym.Kind != KindIngredient && sym.Kind != KindGroup {
				bag.Errorf(diag.Span(e.Span), diag.CodeWrongKindRef, "%q is a %s, expected an ingredient or group", e.Ref, sym.Kind)
			}
		}
	}
}
