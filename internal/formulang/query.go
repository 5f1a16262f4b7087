package formulang

import (
	"fmt"

	"github.com/bherbruck/formulang/internal/ast"
	"github.com/bherbruck/formulang/internal/lexer"
)

// Hover is the result of GetHover: a documentation string plus the span
// of the node it describes.
type Hover struct {
	Contents string
	Span     ast.Span
}

// GetHover maps a byte offset to the innermost declaration containing
// it and renders a short documentation string from its name, desc,
// unit, and kind.
func GetHover(src string, offset int) (*Hover, bool) {
	mod, _ := reparse(src)

	for _, d := range mod.Decls {
		if !d.Span().Contains(offset) {
			continue
		}
		switch {
		case d.Nutrient != nil:
			return &Hover{Contents: describe("nutrient", d.Nutrient.Name, d.Nutrient.Props), Span: d.Span()}, true
		case d.Ingredient != nil:
			return &Hover{Contents: describeIngredient(d.Ingredient), Span: d.Span()}, true
		case d.Group != nil:
			return &Hover{Contents: fmt.Sprintf("group %s { %v }", d.Group.Name, d.Group.Members), Span: d.Span()}, true
		case d.Formula != nil:
			if h, ok := hoverFormula(d.Formula, offset); ok {
				return h, true
			}
			return &Hover{Contents: describe("formula", d.Formula.Name, d.Formula.Props), Span: d.Span()}, true
		}
	}
	return nil, false
}

func hoverFormula(f *ast.FormulaDecl, offset int) (*Hover, bool) {
	for _, item := range f.NutrientItems {
		if h, ok := hoverItem(item, offset); ok {
			return h, true
		}
	}
	for _, item := range f.IngredientItems {
		if h, ok := hoverItem(item, offset); ok {
			return h, true
		}
	}
	return nil, false
}

func hoverItem(item ast.Item, offset int) (*Hover, bool) {
	if item.Constraint != nil {
		if !item.Constraint.Span.Contains(offset) {
			return nil, false
		}
		if ref, ok := innermostRef(item.Constraint.LHS, offset); ok {
			return &Hover{Contents: fmt.Sprintf("reference %q", ref.Ref), Span: ref.Span}, true
		}
		return &Hover{Contents: "constraint"}, true
	}
	if item.Comp.Span.Contains(offset) {
		return &Hover{Contents: fmt.Sprintf("composition reference to %q", item.Comp.Path), Span: item.Comp.Span}, true
	}
	return nil, false
}

func innermostRef(e ast.Expr, offset int) (ast.Expr, bool) {
	if !e.Span.Contains(offset) {
		return ast.Expr{}, false
	}
	switch e.Kind {
	case ast.ExprRef:
		return e, true
	case ast.ExprParen:
		return innermostRef(*e.Inner, offset)
	case ast.ExprBinary:
		if r, ok := innermostRef(*e.Left, offset); ok {
			return r, true
		}
		return innermostRef(*e.Right, offset)
	}
	return ast.Expr{}, false
}

func describe(kind, name string, props []ast.Prop) string {
	desc, unit := "", ""
	for _, p := range props {
		switch p.Name {
		case "desc", "description":
			desc = p.Value
		case "unit":
			unit = p.Value
		}
	}
	s := fmt.Sprintf("%s %s", kind, name)
	if unit != "" {
		s += fmt.Sprintf(" (%s)", unit)
	}
	if desc != "" {
		s += "\n\n" + desc
	}
	return s
}

func describeIngredient(d *ast.IngredientDecl) string {
	s := describe("ingredient", d.Name, d.Props)
	for _, p := range d.Props {
		if p.Name == "cost" {
			s += fmt.Sprintf("\n\ncost: %s", p.Value)
		}
	}
	return s
}

// Completion is one suggestion returned by GetCompletions.
type Completion struct {
	Label      string
	InsertText string
	Kind       string // "keyword", "nutrient", "ingredient", "group", "formula", "namespace-member"
}

// GetCompletions determines the grammatical context at offset (top
// level, inside a nutrients/ingredients block, right after a '.', or
// right after 'import') and returns the keyword/name set appropriate to
// that context.
func GetCompletions(src string, offset int) []Completion {
	mod, toks := reparse(src)
	ctx := completionContext(toks, offset)

	switch ctx.kind {
	case ctxAfterImport:
		return nil // no static filesystem view to suggest paths from
	case ctxAfterDot:
		return namespaceCompletions(mod, ctx.namespace)
	case ctxNutrientsBlock:
		return append(nutrientCompletions(mod), keywordCompletions("min", "max")...)
	case ctxIngredientsBlock:
		return append(append(ingredientCompletions(mod), groupCompletions(mod)...), keywordCompletions("min", "max")...)
	default:
		return keywordCompletions("nutrient", "ingredient", "formula", "template", "group", "import")
	}
}

type completionKind int

const (
	ctxTopLevel completionKind = iota
	ctxNutrientsBlock
	ctxIngredientsBlock
	ctxAfterDot
	ctxAfterImport
)

type completionCtx struct {
	kind      completionKind
	namespace string
}

// completionContext walks tokens up to offset tracking brace depth and
// the nearest enclosing nutrients/ingredients keyword, which is enough
// to answer "what kind of thing goes here" without a full parse.
func completionContext(toks []lexer.Token, offset int) completionCtx {
	type frame struct{ isNutrients, isIngredients bool }
	var stack []frame
	var last lexer.Token

	for _, t := range toks {
		if t.Span.Start >= offset {
			break
		}
		switch t.Kind {
		case lexer.LBrace:
			isNuts := last.Kind == lexer.Keyword && (last.Lexeme == "nutrients" || last.Lexeme == "nuts")
			isIngs := last.Kind == lexer.Keyword && (last.Lexeme == "ingredients" || last.Lexeme == "ings")
			stack = append(stack, frame{isNutrients: isNuts, isIngredients: isIngs})
		case lexer.RBrace:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
		last = t
	}

	if last.Kind == lexer.Dot {
		// the namespace before the dot is not recorded; completion after
		// a dot offers every root-module declaration
		return completionCtx{kind: ctxAfterDot, namespace: ""}
	}
	if last.Kind == lexer.Keyword && last.Lexeme == "import" {
		return completionCtx{kind: ctxAfterImport}
	}

	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].isNutrients {
			return completionCtx{kind: ctxNutrientsBlock}
		}
		if stack[i].isIngredients {
			return completionCtx{kind: ctxIngredientsBlock}
		}
	}
	return completionCtx{kind: ctxTopLevel}
}

func keywordCompletions(words ...string) []Completion {
	out := make([]Completion, 0, len(words))
	for _, w := range words {
		out = append(out, Completion{Label: w, InsertText: w, Kind: "keyword"})
	}
	return out
}

func nutrientCompletions(mod *ast.Module) []Completion {
	var out []Completion
	for _, d := range mod.Decls {
		if d.Nutrient != nil {
			out = append(out, Completion{Label: d.Nutrient.Name, InsertText: d.Nutrient.Name, Kind: "nutrient"})
		}
	}
	return out
}

func ingredientCompletions(mod *ast.Module) []Completion {
	var out []Completion
	for _, d := range mod.Decls {
		if d.Ingredient != nil {
			out = append(out, Completion{Label: d.Ingredient.Name, InsertText: d.Ingredient.Name, Kind: "ingredient"})
		}
	}
	return out
}

func groupCompletions(mod *ast.Module) []Completion {
	var out []Completion
	for _, d := range mod.Decls {
		if d.Group != nil {
			out = append(out, Completion{Label: d.Group.Name, InsertText: d.Group.Name, Kind: "group"})
		}
	}
	return out
}

// namespaceCompletions lists every top-level declaration in the root
// module; resolving which import namespace precedes the dot would
// require a full link, which query operations must work without.
func namespaceCompletions(mod *ast.Module, _ string) []Completion {
	var out []Completion
	for _, d := range mod.Decls {
		out = append(out, Completion{Label: d.Name(), InsertText: d.Name(), Kind: "namespace-member"})
	}
	return out
}
