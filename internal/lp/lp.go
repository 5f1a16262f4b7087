// Package lp lowers a fully-composed formula into a linear program:
// variables, bounded rows, and an objective, including the
// percentage-to-absolute rewrite driven by batch_size and the
// ratio-constraint linearization described in spec ยง4.6.
//
// Problem is solver-agnostic on purpose - it names ingredients and
// constraints by label rather than index where it matters for
// reporting, so the adapter in internal/solve can hand the raw
// matrices to whichever backend it wants without lp knowing about it.
package lp

import (
	"fmt"
	"strconv"

	"github.com/bherbruck/formulang/internal/ast"
	"github.com/bherbruck/formulang/internal/compose"
	"github.com/bherbruck/formulang/internal/diag"
	"github.com/bherbruck/formulang/internal/linker"
	"github.com/bherbruck/formulang/internal/resolver"
)

// Constraint is one row Lo <= Coeffs.x <= Hi. A nil bound on either side
// means that side is unconstrained; Lo == Hi (both set, equal) encodes
// an equality row.
type Constraint struct {
	Label  string
	Coeffs []float64
	Lo     *float64
	Hi     *float64
}

// Problem is a fully lowered LP ready for a solver backend.
type Problem struct {
	FormulaName string
	ModulePath  string
	BatchSize   float64

	// Ingredients is the variable order: first-seen order in the
	// formula's composed ingredient block, per spec ยง4.6 determinism.
	// When that block names no ingredient, every ingredient declared in
	// the formula's own module is a variable, in declaration order.
	Ingredients []string
	Index       map[string]int

	Cost  []float64 // objective coefficients, parallel to Ingredients
	Lower []float64 // per-variable lower bound, always 0
	Upper []float64 // per-variable upper bound, default BatchSize

	NutrientRows   []Constraint
	IngredientRows []Constraint
	BatchRow       Constraint

	// NutrientNames and NutrientCoeffs report every nutrient mentioned
	// anywhere in the formula's nutrients block (not only ones with an
	// explicit bound), for the solver adapter's realized-concentration
	// report. NutrientCoeffs[i] has one entry per Ingredients[i].
	NutrientNames  []string
	NutrientCoeffs [][]float64
}

func f64(v float64) *float64 { return &v }

// Build composes modulePath's formula f and lowers it into a Problem.
// A non-nil bag with HasErrors()==true means the Problem should not be
// handed to a solver; whatever rows were built anyway are still
// returned in case a caller wants to display a partial picture.
func Build(g *linker.Graph, modulePath string, f *ast.FormulaDecl) (*Problem, *diag.Bag) {
	bag := &diag.Bag{}

	if f.IsTemplate {
		bag.Errorf(diag.Span(f.Span), diag.CodeMissingBatchSize, "%q is a template formula and cannot be solved", f.Name)
		return nil, bag
	}

	batchSize, ok := propFloat(f.Props, "batch_size", "batch")
	if !ok {
		bag.Errorf(diag.Span(f.Span), diag.CodeMissingBatchSize, "formula %q has no batch_size", f.Name)
		return nil, bag
	}

	comp, compBag := compose.Expand(g, modulePath, f)
	bag.Merge(compBag)

	b := &builder{
		g: g, modulePath: modulePath, batchSize: batchSize, bag: bag,
		index: map[string]int{}, content: map[string]map[string]float64{},
	}
	b.collectVariables(comp.Ingredients)
	b.loadCosts()

	prob := &Problem{
		FormulaName: f.Name, ModulePath: modulePath, BatchSize: batchSize,
		Ingredients: b.order, Index: b.index, Cost: b.cost, Lower: b.lower, Upper: b.upper,
	}

	for i, item := range comp.Nutrients {
		if rows, ok := b.nutrientRows(item, i); ok {
			prob.NutrientRows = append(prob.NutrientRows, rows...)
		}
	}
	prob.NutrientNames, prob.NutrientCoeffs = b.reportedNutrients(comp.Nutrients)
	for i, item := range comp.Ingredients {
		if rows, ok := b.ingredientRows(item, i); ok {
			prob.IngredientRows = append(prob.IngredientRows, rows...)
		}
	}

	batchCoeffs := make([]float64, len(b.order))
	for i := range batchCoeffs {
		batchCoeffs[i] = 1
	}
	prob.BatchRow = Constraint{Label: "batch_size", Coeffs: batchCoeffs, Lo: f64(batchSize), Hi: f64(batchSize)}

	return prob, bag
}

type builder struct {
	g          *linker.Graph
	modulePath string
	batchSize  float64
	bag        *diag.Bag

	order []string
	index map[string]int
	cost  []float64
	lower []float64
	upper []float64

	// content[ingredientName][nutrientKey] = declared concentration as a
	// fraction of the ingredient's weight (the declared percent / 100).
	content map[string]map[string]float64
}

// collectVariables walks the composed ingredient block in order,
// registering every ingredient variable in first-seen order. A bare
// group reference registers each of its members, in the group's
// declared order. If the block yields no variable at all, every
// ingredient declared in the formula's own module is registered, in
// declaration order.
func (b *builder) collectVariables(items []compose.Flat) {
	for _, item := range items {
		b.walkForVariables(item.LHS)
	}
	if len(b.order) > 0 {
		return
	}
	if link := b.g.Modules[b.modulePath]; link != nil && link.Module != nil {
		for _, d := range link.Module.Decls {
			if d.Ingredient != nil {
				b.addVariable(d.Ingredient.Name)
			}
		}
	}
}

func (b *builder) walkForVariables(e ast.Expr) {
	switch e.Kind {
	case ast.ExprRef:
		sym, err := resolver.Resolve(b.g, b.modulePath, e.Ref)
		if err != nil {
			return // already diagnosed by the resolver stage
		}
		switch sym.Kind {
		case resolver.KindIngredient:
			b.addVariable(sym.Ingredient.Name)
		case resolver.KindGroup:
			for _, m := range sym.Group.Members {
				b.addVariable(m)
			}
		}
	case ast.ExprBinary:
		b.walkForVariables(*e.Left)
		b.walkForVariables(*e.Right)
	case ast.ExprParen:
		b.walkForVariables(*e.Inner)
	}
}

func (b *builder) addVariable(name string) {
	if _, ok := b.index[name]; ok {
		return
	}
	b.index[name] = len(b.order)
	b.order = append(b.order, name)
}

func (b *builder) loadCosts() {
	b.cost = make([]float64, len(b.order))
	b.lower = make([]float64, len(b.order))
	b.upper = make([]float64, len(b.order))
	for i, name := range b.order {
		b.upper[i] = b.batchSize

		sym, err := resolver.Resolve(b.g, b.modulePath, name)
		if err != nil || sym.Kind != resolver.KindIngredient {
			continue
		}
		cost, ok := propFloat(sym.Ingredient.Props, "cost")
		if !ok {
			b.bag.Errorf(diag.Span(sym.Ingredient.Span), diag.CodeMissingCost, "ingredient %q has no cost but is used in formula", name)
			continue
		}
		b.cost[i] = cost

		contents := map[string]float64{}
		for _, nv := range sym.Ingredient.NutrientValues {
			nsym, err := resolver.Resolve(b.g, sym.ModulePath, nv.Ref)
			if err != nil || nsym.Kind != resolver.KindNutrient {
				continue
			}
			contents[nutrientKey(nsym)] += nv.Value / 100
		}
		b.content[name] = contents
	}
}

func nutrientKey(sym *resolver.Symbol) string {
	return sym.ModulePath + "#" + sym.Nutrient.Name
}

// reportedNutrients collects every bare nutrient reference mentioned in
// the composed nutrients block, in first-seen order, with its realized
// content coefficient vector over the ingredient variable set.
func (b *builder) reportedNutrients(items []compose.Flat) ([]string, [][]float64) {
	var names []string
	var coeffs [][]float64
	seen := map[string]bool{}

	var walk func(e ast.Expr)
	walk = func(e ast.Expr) {
		switch e.Kind {
		case ast.ExprRef:
			sym, err := resolver.Resolve(b.g, b.modulePath, e.Ref)
			if err != nil || sym.Kind != resolver.KindNutrient {
				return
			}
			key := nutrientKey(sym)
			if seen[key] {
				return
			}
			seen[key] = true
			vec := make([]float64, len(b.order))
			for i, ing := range b.order {
				vec[i] = b.content[ing][key]
			}
			names = append(names, sym.Nutrient.Name)
			coeffs = append(coeffs, vec)
		case ast.ExprBinary:
			walk(*e.Left)
			walk(*e.Right)
		case ast.ExprParen:
			walk(*e.Inner)
		}
	}

	for _, item := range items {
		walk(item.LHS)
	}
	return names, coeffs
}

// nutrientRows lowers one composed nutrients-block entry. A top-level
// ratio (A / C min|max V) produces the linearized "A - V*C (op) 0" rows
// instead of the ordinary percent-of-batch comparison.
func (b *builder) nutrientRows(item compose.Flat, ord int) ([]Constraint, bool) {
	label := fmt.Sprintf("nutrient#%d", ord)

	if item.LHS.Kind == ast.ExprBinary && item.LHS.Op == ast.OpDiv {
		a, ac, ok1 := b.linearize(*item.LHS.Left, modeNutrient)
		c, cc, ok2 := b.linearize(*item.LHS.Right, modeNutrient)
		if !ok1 || !ok2 {
			return nil, false
		}
		var rows []Constraint
		if item.Min != nil {
			row := combine(a, 1, c, -item.Min.Value)
			rows = append(rows, Constraint{Label: label + ":ratio-min", Coeffs: row, Lo: f64(item.Min.Value*cc - ac)})
		}
		if item.Max != nil {
			row := combine(a, 1, c, -item.Max.Value)
			rows = append(rows, Constraint{Label: label + ":ratio-max", Coeffs: row, Hi: f64(item.Max.Value*cc - ac)})
		}
		return rows, true
	}

	coeffs, constant, ok := b.linearize(item.LHS, modeNutrient)
	if !ok {
		return nil, false
	}
	var rows []Constraint
	if item.Min != nil {
		rows = append(rows, Constraint{Label: label + ":min", Coeffs: coeffs, Lo: f64(item.Min.Value*b.batchSize/100 - constant)})
	}
	if item.Max != nil {
		rows = append(rows, Constraint{Label: label + ":max", Coeffs: coeffs, Hi: f64(item.Max.Value*b.batchSize/100 - constant)})
	}
	return rows, true
}

func (b *builder) ingredientRows(item compose.Flat, ord int) ([]Constraint, bool) {
	label := fmt.Sprintf("ingredient#%d", ord)
	coeffs, constant, ok := b.linearize(item.LHS, modeIngredient)
	if !ok {
		return nil, false
	}
	var rows []Constraint
	if item.Min != nil {
		rows = append(rows, Constraint{Label: label + ":min", Coeffs: coeffs, Lo: f64(absolute(*item.Min, b.batchSize) - constant)})
	}
	if item.Max != nil {
		rows = append(rows, Constraint{Label: label + ":max", Coeffs: coeffs, Hi: f64(absolute(*item.Max, b.batchSize) - constant)})
	}
	return rows, true
}

func absolute(l ast.Limit, batchSize float64) float64 {
	if l.IsPercent {
		return l.Value * batchSize / 100
	}
	return l.Value
}

type linMode int

const (
	modeNutrient linMode = iota
	modeIngredient
)

// linearize reduces an Expr to a coefficient vector over the problem's
// ingredient variables plus a scalar constant, or reports a non-linear
// expression (a product or quotient of two non-constant terms).
func (b *builder) linearize(e ast.Expr, mode linMode) ([]float64, float64, bool) {
	n := len(b.order)
	switch e.Kind {
	case ast.ExprNum:
		return make([]float64, n), e.Num, true
	case ast.ExprPercent:
		return make([]float64, n), e.Num * b.batchSize / 100, true
	case ast.ExprParen:
		return b.linearize(*e.Inner, mode)
	case ast.ExprRef:
		return b.linearizeRef(e, mode)
	case ast.ExprBinary:
		l, lc, ok1 := b.linearize(*e.Left, mode)
		r, rc, ok2 := b.linearize(*e.Right, mode)
		if !ok1 || !ok2 {
			return nil, 0, false
		}
		switch e.Op {
		case ast.OpAdd:
			return combine(l, 1, r, 1), lc + rc, true
		case ast.OpSub:
			return combine(l, 1, r, -1), lc - rc, true
		case ast.OpMul:
			if isZero(l) {
				return scale(r, lc), lc * rc, true
			}
			if isZero(r) {
				return scale(l, rc), lc * rc, true
			}
			b.bag.Errorf(diag.Span(e.Span), diag.CodeNonLinearExpr, "product of two non-constant terms is not linear")
			return nil, 0, false
		case ast.OpDiv:
			if isZero(r) && rc != 0 {
				return scale(l, 1/rc), lc / rc, true
			}
			b.bag.Errorf(diag.Span(e.Span), diag.CodeNonLinearExpr, "division by a non-constant term is not linear outside a top-level ratio constraint")
			return nil, 0, false
		}
	}
	return nil, 0, false
}

func (b *builder) linearizeRef(e ast.Expr, mode linMode) ([]float64, float64, bool) {
	n := len(b.order)
	coeffs := make([]float64, n)

	sym, err := resolver.Resolve(b.g, b.modulePath, e.Ref)
	if err != nil {
		return coeffs, 0, true // already diagnosed by the resolver stage
	}

	switch mode {
	case modeNutrient:
		if sym.Kind != resolver.KindNutrient {
			return coeffs, 0, true
		}
		key := nutrientKey(sym)
		for i, ing := range b.order {
			coeffs[i] = b.content[ing][key]
		}
	case modeIngredient:
		switch sym.Kind {
		case resolver.KindIngredient:
			if idx, ok := b.index[sym.Ingredient.Name]; ok {
				coeffs[idx] = 1
			}
		case resolver.KindGroup:
			for _, m := range sym.Group.Members {
				if idx, ok := b.index[m]; ok {
					coeffs[idx] = 1
				}
			}
		}
	}
	return coeffs, 0, true
}

func combine(a []float64, aw float64, c []float64, cw float64) []float64 {
	out := make([]float64, len(a))
	for i := range out {
		out[i] = a[i]*aw + c[i]*cw
	}
	return out
}

func scale(a []float64, w float64) []float64 {
	out := make([]float64, len(a))
	for i := range out {
		out[i] = a[i] * w
	}
	return out
}

func isZero(a []float64) bool {
	for _, v := range a {
		if v != 0 {
			return false
		}
	}
	return true
}

func propFloat(props []ast.Prop, names ...string) (float64, bool) {
	for _, p := range props {
		for _, name := range names {
			if p.Name == name {
				v, err := strconv.ParseFloat(trimPercent(p.Value), 64)
				if err != nil {
					return 0, false
				}
				return v, true
			}
		}
	}
	return 0, false
}

func trimPercent(s string) string {
	if len(s) > 0 && s[len(s)-1] == '%' {
		return s[:len(s)-1]
	}
	return s
}
