// Package ast defines the tagged-tree representation produced by the
// parser: one Module per source unit, declarations, composition
// references, and the small arithmetic Expr language shared by nutrient
// and ingredient blocks.
//
// Nodes are allocated densely per module and referenced by pointer rather
// than by arena index; Formulang programs are small enough (a handful of
// declarations per file) that arena indirection buys nothing here, unlike
// the teacher's step trees which can run into the thousands.
package ast

import "github.com/bherbruck/formulang/internal/lexer"

// Span re-exports lexer.Span so downstream packages don't need to import
// the lexer package just to read a node's location.
type Span = lexer.Span

// BlockKind distinguishes the two constraint-block contexts. The same
// syntactic constraint form means something different depending on which
// block it appears in: a sum over nutrient content in a nutrients block,
// a sum over ingredient amount variables in an ingredients block.
type BlockKind int

const (
	NutrientsBlock BlockKind = iota
	IngredientsBlock
)

func (k BlockKind) String() string {
	if k == NutrientsBlock {
		return "nutrients"
	}
	return "ingredients"
}

// ImportBindingKind is the kind of namespace a resolved import contributes.
type ImportBindingKind int

const (
	BindNamespaced ImportBindingKind = iota // default: filename stem
	BindAliased                             // as NAME
	BindDirectList                          // { a, b }
	BindWildcard                            // { * }
)

// Import is a single `import` declaration.
type Import struct {
	Path    string // as written, before `.fm` normalization
	Binding ImportBindingKind
	Alias   string   // set for BindAliased and BindNamespaced (defaulted)
	Names   []string // set for BindDirectList
	Span    Span
}

// Prop is a single `name value` (or legacy `name: value`) property
// assignment inside a declaration body.
type Prop struct {
	Name  string
	Value string
	Span  Span
}

// NutrientDecl declares a nutritional parameter.
type NutrientDecl struct {
	Name  string
	Props []Prop
	Span  Span
}

// NutrientValue is one `(reference, number)` pair inside an ingredient's
// nutrient_values list.
type NutrientValue struct {
	Ref   string
	Value float64
	Span  Span
}

// IngredientDecl declares a material with a cost and nutrient contents.
type IngredientDecl struct {
	Name           string
	Props          []Prop
	NutrientValues []NutrientValue
	Span           Span
}

// GroupDecl declares a named set of ingredients.
type GroupDecl struct {
	Name    string
	Members []string
	Span    Span
}

// FormulaDecl declares an optimization problem (or, if IsTemplate, a
// composition-only template that is never lowered to an LP).
type FormulaDecl struct {
	Name            string
	Props           []Prop
	NutrientItems   []Item
	IngredientItems []Item
	IsTemplate      bool
	Span            Span
}

// Item is either a ConstraintItem or a CompositionRef, distinguished by
// the grammar at parse time (see parser package doc comment).
type Item struct {
	Constraint *ConstraintItem
	Comp       CompositionRef
}

// Limit is one side of a constraint bound. IsPercent records whether the
// value was written with a trailing '%' in the source - only meaningful
// for ingredient-block constraints, where a percent literal means
// "percent of batch_size" and a bare number means an absolute amount.
// Nutrient-block bounds are always percent-of-batch regardless of
// whether IsPercent is set.
type Limit struct {
	Value     float64
	IsPercent bool
}

// ConstraintItem is a bound on a linear expression: `lhs min V` and/or
// `lhs max V`.
type ConstraintItem struct {
	LHS  Expr
	Min  *Limit
	Max  *Limit
	Span Span
}

// CompositionRefKind tags the five composition-reference shapes.
type CompositionRefKind int

const (
	RefAllOf CompositionRefKind = iota
	RefSubset
	RefSingleBound
	RefGroupSelect
	RefGroupAll
)

// Bound identifies which half of a two-sided constraint a SingleBound
// reference selects.
type Bound int

const (
	BoundMin Bound = iota
	BoundMax
)

// CompositionRef is a syntactic device that inlines constraints from
// another formula, or ingredient references from a group.
type CompositionRef struct {
	Kind      CompositionRefKind
	Path      string    // formula or group name
	BlockKind BlockKind // meaningful for RefAllOf, RefSubset, RefSingleBound
	Names     []string  // RefSubset, RefGroupSelect
	Name      string    // RefSingleBound: the single nutrient/ingredient name
	Which     Bound     // RefSingleBound
	Span      Span
}

// ExprKind tags the arithmetic expression variants.
type ExprKind int

const (
	ExprNum ExprKind = iota
	ExprPercent
	ExprRef
	ExprBinary
	ExprParen
)

// BinOp is one of the four arithmetic operators.
type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
)

func (op BinOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	default:
		return "?"
	}
}

// Expr is the arithmetic tree shared by nutrient and ingredient block
// expressions: `Num | Percent | Ref(path) | Binary(op, l, r) | Paren(e)`.
type Expr struct {
	Kind  ExprKind
	Num   float64 // ExprNum, ExprPercent (already divided is NOT applied here)
	Ref   string  // ExprRef: dotted or bare reference path
	Op    BinOp   // ExprBinary
	Left  *Expr   // ExprBinary
	Right *Expr   // ExprBinary
	Inner *Expr   // ExprParen
	Span  Span
}

// Decl is the union of declaration kinds that can appear in a Module, used
// where callers want to iterate declarations generically (e.g. the linker
// building a name->decl map).
type Decl struct {
	Nutrient   *NutrientDecl
	Ingredient *IngredientDecl
	Group      *GroupDecl
	Formula    *FormulaDecl
}

// Name returns the declared name regardless of which variant is set.
func (d Decl) Name() string {
	switch {
	case d.Nutrient != nil:
		return d.Nutrient.Name
	case d.Ingredient != nil:
		return d.Ingredient.Name
	case d.Group != nil:
		return d.Group.Name
	case d.Formula != nil:
		return d.Formula.Name
	default:
		return ""
	}
}

// Span returns the declaration's span regardless of which variant is set.
func (d Decl) Span() Span {
	switch {
	case d.Nutrient != nil:
		return d.Nutrient.Span
	case d.Ingredient != nil:
		return d.Ingredient.Span
	case d.Group != nil:
		return d.Group.Span
	case d.Formula != nil:
		return d.Formula.Span
	default:
		return Span{}
	}
}

// Module is the AST for a single parsed source unit.
type Module struct {
	Path    string // canonical path of the source unit
	Imports []*Import
	Decls   []Decl
}
