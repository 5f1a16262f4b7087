// Package compose implements the composition engine: it expands a
// formula's AllOf/Subset/SingleBound/GroupSelect references into a flat,
// ordered sequence of constraints, following last-definition-wins
// override semantics keyed by canonical LHS identity.
//
// A composition reference is a textual device, not a runtime value: two
// formulas that both pull in the same base formula get independent
// copies of its constraints, not a shared pointer, so downstream stages
// can treat the result as if the author had written it out by hand.
package compose

import (
	"fmt"
	"strconv"

	"github.com/bherbruck/formulang/internal/ast"
	"github.com/bherbruck/formulang/internal/diag"
	"github.com/bherbruck/formulang/internal/linker"
	"github.com/bherbruck/formulang/internal/resolver"
)

// Flat is one fully expanded constraint, annotated with the module it
// ultimately came from so diagnostics can point at a sensible location
// even after several layers of composition.
type Flat struct {
	LHS    ast.Expr
	Min    *ast.Limit
	Max    *ast.Limit
	Span   ast.Span
	Origin string // module path of the formula that last defined this entry
}

// Result is a formula's fully composed constraint set.
type Result struct {
	Nutrients   []Flat
	Ingredients []Flat
}

// Expand composes modulePath's formula f into a flat Result, recursively
// expanding every composition reference it contains.
func Expand(g *linker.Graph, modulePath string, f *ast.FormulaDecl) (Result, *diag.Bag) {
	e := &expander{
		g:          g,
		bag:        &diag.Bag{},
		inProgress: map[string]bool{},
		memo:       map[string][]Flat{},
	}
	return Result{
		Nutrients:   e.expand(modulePath, f, ast.NutrientsBlock),
		Ingredients: e.expand(modulePath, f, ast.IngredientsBlock),
	}, e.bag
}

type expander struct {
	g          *linker.Graph
	bag        *diag.Bag
	inProgress map[string]bool
	chain      []string
	memo       map[string][]Flat
}

func formulaKey(modulePath, name string, bk ast.BlockKind) string {
	return modulePath + "#" + name + "#" + bk.String()
}

func (e *expander) expand(modulePath string, f *ast.FormulaDecl, bk ast.BlockKind) []Flat {
	key := formulaKey(modulePath, f.Name, bk)
	if cached, ok := e.memo[key]; ok {
		return cached
	}
	if e.inProgress[key] {
		chain := append(append([]string{}, e.chain...), key)
		e.bag.Errorf(diag.Span(f.Span), diag.CodeCompositionCycle, "composition cycle: %v", chain)
		return nil
	}
	e.inProgress[key] = true
	e.chain = append(e.chain, key)
	defer func() {
		delete(e.inProgress, key)
		e.chain = e.chain[:len(e.chain)-1]
	}()

	items := f.NutrientItems
	if bk == ast.IngredientsBlock {
		items = f.IngredientItems
	}

	out := []Flat{}
	index := map[string]int{}
	add := func(fl Flat) {
		k := flatKey(e.g, modulePath, fl.LHS)
		if i, ok := index[k]; ok {
			out[i] = fl
			return
		}
		index[k] = len(out)
		out = append(out, fl)
	}

	for _, item := range items {
		if item.Constraint != nil {
			for _, fl := range e.constraintToFlats(modulePath, *item.Constraint, bk) {
				add(fl)
			}
			continue
		}
		for _, fl := range e.expandCompRef(modulePath, item.Comp, bk) {
			add(fl)
		}
	}

	e.memo[key] = out
	return out
}

// constraintToFlats lowers a single ConstraintItem into one entry. A bare
// group reference stays a single entry whose bounds apply to the sum of
// the group's members (the LP builder expands that sum).
func (e *expander) constraintToFlats(modulePath string, c ast.ConstraintItem, bk ast.BlockKind) []Flat {
	return []Flat{{LHS: c.LHS, Min: c.Min, Max: c.Max, Span: c.Span, Origin: modulePath}}
}

func (e *expander) expandCompRef(modulePath string, ref ast.CompositionRef, bk ast.BlockKind) []Flat {
	sym, err := resolver.Resolve(e.g, modulePath, ref.Path)
	if err != nil {
		e.bag.Errorf(diag.Span(ref.Span), diag.CodeUnknownIdent, "%v", err)
		return nil
	}

	switch ref.Kind {
	case ast.RefGroupSelect:
		if sym.Kind != resolver.KindGroup {
			e.bag.Errorf(diag.Span(ref.Span), diag.CodeWrongKindRef, "%q is not a group", ref.Path)
			return nil
		}
		members := map[string]bool{}
		for _, m := range sym.Group.Members {
			members[m] = true
		}
		out := make([]Flat, 0, len(ref.Names))
		for _, name := range ref.Names {
			if !members[name] {
				e.bag.Errorf(diag.Span(ref.Span), diag.CodeUnknownIdent, "group %q has no member %q", ref.Path, name)
				continue
			}
			out = append(out, Flat{LHS: ast.Expr{Kind: ast.ExprRef, Ref: name, Span: ref.Span}, Span: ref.Span, Origin: modulePath})
		}
		return out

	case ast.RefAllOf:
		if sym.Kind != resolver.KindFormula {
			e.bag.Errorf(diag.Span(ref.Span), diag.CodeWrongKindRef, "%q is not a formula", ref.Path)
			return nil
		}
		return e.expand(sym.ModulePath, sym.Formula, ref.BlockKind)

	case ast.RefSubset:
		if sym.Kind != resolver.KindFormula {
			e.bag.Errorf(diag.Span(ref.Span), diag.CodeWrongKindRef, "%q is not a formula", ref.Path)
			return nil
		}
		all := e.expand(sym.ModulePath, sym.Formula, ref.BlockKind)
		wanted := map[string]bool{}
		for _, n := range ref.Names {
			wanted[n] = true
		}
		out := []Flat{}
		for _, fl := range all {
			if name, ok := exprRefName(fl.LHS); ok && wanted[name] {
				delete(wanted, name)
				out = append(out, fl)
			}
		}
		for missing := range wanted {
			e.bag.Errorf(diag.Span(ref.Span), diag.CodeUnknownIdent, "%q.%s has no entry named %q", ref.Path, ref.BlockKind, missing)
		}
		return out

	case ast.RefSingleBound:
		if sym.Kind != resolver.KindFormula {
			e.bag.Errorf(diag.Span(ref.Span), diag.CodeWrongKindRef, "%q is not a formula", ref.Path)
			return nil
		}
		all := e.expand(sym.ModulePath, sym.Formula, ref.BlockKind)
		for _, fl := range all {
			name, ok := exprRefName(fl.LHS)
			if !ok || name != ref.Name {
				continue
			}
			bound := fl.Min
			if ref.Which == ast.BoundMax {
				bound = fl.Max
			}
			if bound == nil {
				e.bag.Warnf(diag.Span(ref.Span), diag.CodeMissingBound, "%q.%s has no %s bound to pull in", ref.Path, ref.Name, boundName(ref.Which))
				return nil
			}
			out := Flat{LHS: fl.LHS, Span: ref.Span, Origin: modulePath}
			if ref.Which == ast.BoundMin {
				out.Min = bound
			} else {
				out.Max = bound
			}
			return []Flat{out}
		}
		e.bag.Errorf(diag.Span(ref.Span), diag.CodeUnknownIdent, "%q.%s not found in %q", ref.Name, ref.BlockKind, ref.Path)
		return nil

	default:
		return nil
	}
}

func boundName(b ast.Bound) string {
	if b == ast.BoundMin {
		return "min"
	}
	return "max"
}

func exprRefName(e ast.Expr) (string, bool) {
	if e.Kind == ast.ExprRef {
		return e.Ref, true
	}
	return "", false
}

// flatKey computes the identity an override replaces. A bare reference is
// keyed by the symbol it resolves to, so the same nutrient/ingredient
// reaching a formula under two different import aliases still collides
// correctly; anything else (a compound expression) is keyed by its
// rendered form, so rewriting a ratio constraint verbatim overrides the
// earlier one while a differently-shaped expression does not.
func flatKey(g *linker.Graph, modulePath string, e ast.Expr) string {
	if name, ok := exprRefName(e); ok {
		if sym, err := resolver.Resolve(g, modulePath, name); err == nil {
			return "ref:" + sym.ModulePath + "#" + declName(sym)
		}
		return "ref:" + name
	}
	return "expr:" + render(e)
}

func declName(sym *resolver.Symbol) string {
	switch sym.Kind {
	case resolver.KindNutrient:
		return sym.Nutrient.Name
	case resolver.KindIngredient:
		return sym.Ingredient.Name
	case resolver.KindGroup:
		return sym.Group.Name
	case resolver.KindFormula:
		return sym.Formula.Name
	default:
		return ""
	}
}

func render(e ast.Expr) string {
	switch e.Kind {
	case ast.ExprNum:
		return strconv.FormatFloat(e.Num, 'g', -1, 64)
	case ast.ExprPercent:
		return strconv.FormatFloat(e.Num, 'g', -1, 64) + "%"
	case ast.ExprRef:
		return e.Ref
	case ast.ExprParen:
		return "(" + render(*e.Inner) + ")"
	case ast.ExprBinary:
		return fmt.Sprintf("%s%s%s", render(*e.Left), e.Op, render(*e.Right))
	default:
		return "?"
	}
}
