// Package solve adapts an lp.Problem to gonum's simplex solver,
// classifies the result, and computes the derived report fields spec
// ยง4.7 describes: per-ingredient percentages and costs, per-nutrient
// realized concentrations, and - in the infeasible case - a best-effort
// relaxed blend with per-constraint violations.
package solve

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	gonumlp "gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/bherbruck/formulang/internal/ast"
	"github.com/bherbruck/formulang/internal/diag"
	"github.com/bherbruck/formulang/internal/linker"
	"github.com/bherbruck/formulang/internal/lp"
)

// Status is the outcome classification from spec ยง4.7/ยง7.
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusError
)

// DefaultTolerance is the simplex feasibility tolerance used by callers
// that don't have a configured override (tests, library embedders).
const DefaultTolerance = 1e-9

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// IngredientLine is one row of the per-ingredient report.
type IngredientLine struct {
	Name           string
	Amount         float64
	Percentage     float64
	UnitCost       float64
	Cost           float64
	CostPercentage float64
}

// NutrientLine is one row of the per-nutrient report.
type NutrientLine struct {
	Name  string
	Value float64
}

// Violation reports a non-zero slack on a relaxed lower bound, per
// spec's infeasible best-effort mode.
type Violation struct {
	ConstraintLabel string
	Required        float64
	Actual          float64
	Gap             float64
}

// ShadowPrice attaches a dual value to the constraint it came from, with
// a short templated interpretation string.
type ShadowPrice struct {
	ConstraintLabel string
	Value           float64
	Interpretation  string
}

// Analysis holds the optional binding-constraint/shadow-price block,
// populated only for optimal solves.
type Analysis struct {
	BindingConstraints []string
	ShadowPrices       []ShadowPrice
}

// Result is the public SolveResult shape from spec ยง6.
type Result struct {
	Status      Status
	FormulaName string
	Description string
	BatchSize   float64
	TotalCost   float64
	Ingredients []IngredientLine
	Nutrients   []NutrientLine
	Analysis    *Analysis
	Violations  []Violation
	Message     string // set when Status == StatusError
}

// Solve builds and solves modulePath's formula f. tolerance is the
// numerical feasibility tolerance passed straight to gonum's Simplex;
// callers without a configured value should pass DefaultTolerance.
func Solve(g *linker.Graph, modulePath string, f *ast.FormulaDecl, tolerance float64) (*Result, *diag.Bag) {
	prob, bag := lp.Build(g, modulePath, f)
	if bag.HasErrors() || prob == nil {
		return &Result{Status: StatusError, FormulaName: f.Name, Message: "formula could not be built into an LP"}, bag
	}

	desc, _ := stringProp(f.Props, "description", "desc")

	res, solveBag := runSimplex(prob, tolerance)
	bag.Merge(solveBag)
	res.FormulaName = f.Name
	res.Description = desc
	res.BatchSize = prob.BatchSize
	return res, bag
}

func stringProp(props []ast.Prop, names ...string) (string, bool) {
	for _, p := range props {
		for _, n := range names {
			if p.Name == n {
				return p.Value, true
			}
		}
	}
	return "", false
}

// rows returns every constraint row in the problem's canonical order:
// nutrient rows, ingredient rows, the batch-closure row, then one
// implicit [0, Upper_i] box row per ingredient.
func rows(prob *lp.Problem) []lp.Constraint {
	all := make([]lp.Constraint, 0, len(prob.NutrientRows)+len(prob.IngredientRows)+1+len(prob.Ingredients))
	all = append(all, prob.NutrientRows...)
	all = append(all, prob.IngredientRows...)
	all = append(all, prob.BatchRow)
	for i, name := range prob.Ingredients {
		coeffs := make([]float64, len(prob.Ingredients))
		coeffs[i] = 1
		hi := prob.Upper[i]
		all = append(all, lp.Constraint{Label: "box:" + name, Coeffs: coeffs, Lo: ptr(0), Hi: &hi})
	}
	return all
}

func ptr(v float64) *float64 { return &v }

// standardForm rewrites every Lo<=row<=Hi constraint into an equality
// with non-negative slacks, as gonum's Simplex requires: Ax = b, x >= 0.
// A range row (both bounds set and distinct) gets two slacks so the
// slack itself stays box-bounded without needing native upper bounds.
func standardForm(prob *lp.Problem, rs []lp.Constraint, extraCost float64) (*mat.Dense, []float64, []float64, []string) {
	nVars := len(prob.Ingredients)
	var slackNames []string
	var bVals []float64
	var rowData [][]float64

	for _, r := range rs {
		row := append([]float64{}, r.Coeffs...)
		switch {
		case r.Lo != nil && r.Hi != nil && *r.Lo == *r.Hi:
			bVals = append(bVals, *r.Lo)
		case r.Lo != nil && r.Hi == nil:
			row = appendSlack(row, nVars, 1, -1)
			slackNames = append(slackNames, "slack:"+r.Label)
			nVars++
			bVals = append(bVals, *r.Lo)
		case r.Hi != nil && r.Lo == nil:
			row = appendSlack(row, nVars, 1, 1)
			slackNames = append(slackNames, "slack:"+r.Label)
			nVars++
			bVals = append(bVals, *r.Hi)
		default: // both set, distinct: row - s1 = Lo, s1 + s2 = Hi-Lo
			row = appendSlack(row, nVars, 1, -1)
			slackNames = append(slackNames, "slack:"+r.Label)
			nVars++
			rangeRow := make([]float64, nVars)
			rangeRow[nVars-1] = 1
			rangeRow = appendSlack(rangeRow, nVars, 1, 1)
			slackNames = append(slackNames, "rangeslack:"+r.Label)
			nVars++
			// the range row is appended first, so its right-hand side is too
			rowData = append(rowData, padTo(rangeRow, nVars))
			bVals = append(bVals, *r.Hi-*r.Lo)
			bVals = append(bVals, *r.Lo)
		}
		rowData = append(rowData, padTo(row, nVars))
	}

	m := len(rowData)
	flat := make([]float64, 0, m*nVars)
	for _, row := range rowData {
		flat = append(flat, padTo(row, nVars)...)
	}
	A := mat.NewDense(m, nVars, flat)

	c := make([]float64, nVars)
	copy(c, prob.Cost)
	for i := len(prob.Ingredients); i < nVars; i++ {
		c[i] = extraCost
	}

	return A, bVals, c, slackNames
}

func appendSlack(row []float64, at int, weight float64, sign float64) []float64 {
	out := padTo(row, at+1)
	out[at] = weight * sign
	return out
}

func padTo(row []float64, n int) []float64 {
	if len(row) >= n {
		return row
	}
	out := make([]float64, n)
	copy(out, row)
	return out
}

func runSimplex(prob *lp.Problem, tolerance float64) (*Result, *diag.Bag) {
	bag := &diag.Bag{}
	rs := rows(prob)
	A, b, c, _ := standardForm(prob, rs, 0)

	optF, x, err := gonumlp.Simplex(c, A, b, tolerance, nil)
	if err == nil {
		return buildOptimalResult(prob, rs, x, optF, tolerance), bag
	}
	if err != gonumlp.ErrInfeasible {
		bag.Errorf(diag.Span{}, diag.CodeSolverFailed, "solver backend error: %v", err)
		return &Result{Status: StatusError, Message: err.Error()}, bag
	}

	res, relaxBag := solveRelaxed(prob, rs, tolerance)
	bag.Merge(relaxBag)
	return res, bag
}

// solveRelaxed rebuilds the LP with every nutrient/ingredient min row
// relaxed by a non-negative slack, objective augmented by a large
// penalty, per spec ยง4.7's infeasible best-effort mode.
func solveRelaxed(prob *lp.Problem, rs []lp.Constraint, tolerance float64) (*Result, *diag.Bag) {
	bag := &diag.Bag{}
	const penalty = 1e7

	relaxed := make([]lp.Constraint, len(rs))
	relaxIdx := map[int]bool{}
	for i, r := range rs {
		relaxed[i] = r
		if r.Lo != nil && (r.Hi == nil || *r.Hi != *r.Lo) {
			relaxIdx[i] = true
		}
	}

	nVars := len(prob.Ingredients)
	extraVars := len(relaxIdx)
	A, b, c, slackNames := standardFormRelaxed(prob, relaxed, relaxIdx, penalty)

	optF, x, err := gonumlp.Simplex(c, A, b, tolerance, nil)
	if err != nil {
		bag.Errorf(diag.Span{}, diag.CodeSolverFailed, "solver backend error after relaxation: %v", err)
		return &Result{Status: StatusError, Message: err.Error()}, bag
	}
	_ = extraVars

	res := buildOptimalResult(prob, rs, x[:nVars], 0, tolerance)
	res.Status = StatusInfeasible
	res.Analysis = nil // shadow prices are only meaningful for a truly optimal solve
	res.TotalCost = dot(prob.Cost, x[:nVars])

	for i, r := range rs {
		if !relaxIdx[i] {
			continue
		}
		slackVal := relaxedSlackValue(x, nVars, slackNames, r.Label)
		if slackVal <= 1e-9 {
			continue
		}
		actual := dot(r.Coeffs, x[:nVars])
		bag.Warnf(diag.Span{}, diag.CodeInfeasible, "%s: required %.4g, actual %.4g", r.Label, *r.Lo, actual)
		res.Violations = append(res.Violations, Violation{
			ConstraintLabel: r.Label, Required: *r.Lo, Actual: actual, Gap: slackVal,
		})
	}
	_ = optF

	return res, bag
}

func relaxedSlackValue(x []float64, nVars int, slackNames []string, label string) float64 {
	for i, name := range slackNames {
		if name == "relax:"+label {
			return x[nVars+i]
		}
	}
	return 0
}

// standardFormRelaxed is like standardForm but additionally frees a
// min-bound row from equality with a dedicated penalized relax slack,
// on top of the existing bound-enforcing slack.
func standardFormRelaxed(prob *lp.Problem, rs []lp.Constraint, relaxIdx map[int]bool, penalty float64) (*mat.Dense, []float64, []float64, []string) {
	nVars := len(prob.Ingredients)
	var slackNames []string
	var bVals []float64
	var rowData [][]float64

	for i, r := range rs {
		row := append([]float64{}, r.Coeffs...)
		switch {
		case relaxIdx[i]:
			// row - boundslack + relaxslack = Lo
			row = appendSlack(row, nVars, 1, -1)
			slackNames = append(slackNames, "slack:"+r.Label)
			nVars++
			row = appendSlack(row, nVars, 1, 1)
			slackNames = append(slackNames, "relax:"+r.Label)
			nVars++
			bVals = append(bVals, *r.Lo)
		case r.Lo != nil && r.Hi != nil && *r.Lo == *r.Hi:
			bVals = append(bVals, *r.Lo)
		case r.Lo != nil && r.Hi == nil:
			row = appendSlack(row, nVars, 1, -1)
			slackNames = append(slackNames, "slack:"+r.Label)
			nVars++
			bVals = append(bVals, *r.Lo)
		case r.Hi != nil && r.Lo == nil:
			row = appendSlack(row, nVars, 1, 1)
			slackNames = append(slackNames, "slack:"+r.Label)
			nVars++
			bVals = append(bVals, *r.Hi)
		default:
			row = appendSlack(row, nVars, 1, -1)
			slackNames = append(slackNames, "slack:"+r.Label)
			nVars++
			rangeRow := make([]float64, nVars)
			rangeRow[nVars-1] = 1
			rangeRow = appendSlack(rangeRow, nVars, 1, 1)
			slackNames = append(slackNames, "rangeslack:"+r.Label)
			nVars++
			rowData = append(rowData, padTo(rangeRow, nVars))
			bVals = append(bVals, *r.Hi-*r.Lo)
			bVals = append(bVals, *r.Lo)
		}
		rowData = append(rowData, padTo(row, nVars))
	}

	m := len(rowData)
	flat := make([]float64, 0, m*nVars)
	for _, row := range rowData {
		flat = append(flat, padTo(row, nVars)...)
	}
	A := mat.NewDense(m, nVars, flat)

	c := make([]float64, nVars)
	copy(c, prob.Cost)
	for i, name := range slackNames {
		if len(name) > 6 && name[:6] == "relax:" {
			c[len(prob.Ingredients)+i] = penalty
		}
	}

	return A, bVals, c, slackNames
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func buildOptimalResult(prob *lp.Problem, rs []lp.Constraint, x []float64, optF float64, tolerance float64) *Result {
	res := &Result{Status: StatusOptimal, BatchSize: prob.BatchSize}

	totalCost := 0.0
	for i, name := range prob.Ingredients {
		amount := x[i]
		cost := prob.Cost[i] * amount
		totalCost += cost
		res.Ingredients = append(res.Ingredients, IngredientLine{
			Name: name, Amount: amount, Percentage: pct(amount, prob.BatchSize),
			UnitCost: prob.Cost[i], Cost: cost,
		})
	}
	res.TotalCost = totalCost
	for i := range res.Ingredients {
		res.Ingredients[i].CostPercentage = pct(res.Ingredients[i].Cost, totalCost)
	}

	for i, name := range prob.NutrientNames {
		value := dot(prob.NutrientCoeffs[i], x) / prob.BatchSize * 100
		res.Nutrients = append(res.Nutrients, NutrientLine{Name: name, Value: value})
	}

	analysis := &Analysis{}
	for _, r := range rs {
		val := dot(r.Coeffs, x)
		loBinding := r.Lo != nil && approxEqual(val, *r.Lo)
		binding := loBinding || (r.Hi != nil && approxEqual(val, *r.Hi))
		if !binding {
			continue
		}
		analysis.BindingConstraints = append(analysis.BindingConstraints, r.Label)
		price := shadowPrice(prob, rs, r, optF, tolerance)
		// price is the cost change from raising the bound: that loosens an
		// upper bound but tightens a lower one, so flip it for a lower bound
		change := price
		if loBinding {
			change = -price
		}
		analysis.ShadowPrices = append(analysis.ShadowPrices, ShadowPrice{
			ConstraintLabel: r.Label, Value: price,
			Interpretation: fmt.Sprintf("relaxing %s by one unit would change total cost by %.4g", r.Label, change),
		})
	}
	if len(analysis.BindingConstraints) > 0 {
		res.Analysis = analysis
	}

	return res
}

func pct(v, total float64) float64 {
	if total == 0 {
		return 0
	}
	return v / total * 100
}

func approxEqual(a, b float64) bool {
	const tol = 1e-6
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol*(1+absf(b))
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// shadowPrice estimates a constraint's dual value by finite difference:
// raise its bounds by one unit (an equality row keeps its upper bound)
// and re-solve, since gonum's Simplex surfaces only the primal solution.
// The result is the change in optimal cost.
func shadowPrice(prob *lp.Problem, rs []lp.Constraint, target lp.Constraint, baseF, tolerance float64) float64 {
	perturbed := make([]lp.Constraint, len(rs))
	copy(perturbed, rs)
	for i, r := range perturbed {
		if r.Label != target.Label {
			continue
		}
		nr := r
		if r.Lo != nil {
			lo := *r.Lo + 1
			nr.Lo = &lo
		}
		if r.Hi != nil && (r.Lo == nil || *r.Hi != *r.Lo) {
			hi := *r.Hi + 1
			nr.Hi = &hi
		}
		perturbed[i] = nr
	}

	A, b, c, _ := standardForm(prob, perturbed, 0)
	newF, _, err := gonumlp.Simplex(c, A, b, tolerance, nil)
	if err != nil {
		return 0
	}
	return newF - baseF
}
