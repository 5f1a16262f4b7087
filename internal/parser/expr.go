package parser

import (
	"strconv"
	"strings"

	"github.com/bherbruck/formulang/internal/ast"
	"github.com/bherbruck/formulang/internal/lexer"
)

var blockAliases = map[string]bool{"nutrients": true, "nuts": true, "ingredients": true, "ings": true}

func blockKindFromAlias(lexeme string) ast.BlockKind {
	if lexeme == "nutrients" || lexeme == "nuts" {
		return ast.NutrientsBlock
	}
	return ast.IngredientsBlock
}

// isCompositionRefAhead looks three tokens ahead, without consuming, to
// decide whether the upcoming item is a CompositionRef or a plain
// constraint on an expression. Per the grammar: a reference path whose
// terminal is nutrients/ingredients/[list]/name.min|max is a
// CompositionRef; otherwise it's a constraint.
func (p *Parser) isCompositionRefAhead() bool {
	if p.cur().Kind != lexer.Ident {
		return false
	}
	if p.peekAt(1).Kind != lexer.Dot {
		return false
	}
	t2 := p.peekAt(2)
	if t2.Kind == lexer.LBrack {
		return true
	}
	if t2.Kind == lexer.Keyword && blockAliases[t2.Lexeme] {
		return true
	}
	return false
}

// parseCompositionRef parses one of AllOf, Subset, SingleBound, or
// GroupSelect. The caller has already confirmed isCompositionRefAhead.
func (p *Parser) parseCompositionRef() (ast.CompositionRef, bool) {
	start := p.cur().Span
	path := p.advance().Lexeme // head identifier
	p.advance()                // '.'

	if p.cur().Kind == lexer.LBrack {
		p.advance()
		names := p.parseIdentCommaList()
		if !p.expect(lexer.RBrack, "']'") {
			return ast.CompositionRef{}, false
		}
		end := p.advance().Span
		return ast.CompositionRef{Kind: ast.RefGroupSelect, Path: path, Names: names, Span: ast.Span{Start: start.Start, End: end.End}}, true
	}

	aliasTok := p.advance() // nutrients/nuts/ingredients/ings
	bk := blockKindFromAlias(aliasTok.Lexeme)

	if p.cur().Kind != lexer.Dot {
		end := p.toks[p.pos-1].Span
		return ast.CompositionRef{Kind: ast.RefAllOf, Path: path, BlockKind: bk, Span: ast.Span{Start: start.Start, End: end.End}}, true
	}
	p.advance() // '.'

	if p.cur().Kind == lexer.LBrack {
		p.advance()
		names := p.parseIdentCommaList()
		if !p.expect(lexer.RBrack, "']'") {
			return ast.CompositionRef{}, false
		}
		end := p.advance().Span
		return ast.CompositionRef{Kind: ast.RefSubset, Path: path, BlockKind: bk, Names: names, Span: ast.Span{Start: start.Start, End: end.End}}, true
	}

	if !p.expect(lexer.Ident, "a nutrient/ingredient name") {
		return ast.CompositionRef{}, false
	}
	name := p.advance().Lexeme

	if !p.expect(lexer.Dot, "'.min' or '.max'") {
		return ast.CompositionRef{}, false
	}
	p.advance()

	if p.cur().Kind != lexer.Keyword || (p.cur().Lexeme != "min" && p.cur().Lexeme != "max") {
		p.errorf(ast.Span(p.cur().Span), "expected 'min' or 'max', got %q", p.cur().Lexeme)
		return ast.CompositionRef{}, false
	}
	which := ast.BoundMin
	if p.cur().Lexeme == "max" {
		which = ast.BoundMax
	}
	end := p.advance().Span

	return ast.CompositionRef{
		Kind: ast.RefSingleBound, Path: path, BlockKind: bk, Name: name, Which: which,
		Span: ast.Span{Start: start.Start, End: end.End},
	}, true
}

// parseBlockItem parses one item of a nutrients{}/ingredients{} block body:
// either a composition reference or a constraint on an expression.
func (p *Parser) parseBlockItem(bk ast.BlockKind) (ast.Item, bool) {
	if p.isCompositionRefAhead() {
		ref, ok := p.parseCompositionRef()
		if !ok {
			return ast.Item{}, false
		}
		return ast.Item{Comp: ref}, true
	}

	start := p.cur().Span
	expr, ok := p.parseExpr()
	if !ok {
		return ast.Item{}, false
	}

	item := ast.ConstraintItem{LHS: expr}
	for p.cur().Kind == lexer.Keyword && (p.cur().Lexeme == "min" || p.cur().Lexeme == "max") {
		isMin := p.cur().Lexeme == "min"
		p.advance()
		value, isPercent, ok := p.parseNumericValue()
		if !ok {
			p.errorf(ast.Span(p.cur().Span), "expected a numeric bound, got %s", p.cur().Kind)
			return ast.Item{}, false
		}
		limit := ast.Limit{Value: value, IsPercent: isPercent}
		if isMin {
			item.Min = &limit
		} else {
			item.Max = &limit
		}
	}
	item.Span = ast.Span{Start: start.Start, End: p.toks[max0(p.pos-1)].Span.End}

	return ast.Item{Constraint: &item}, true
}

func max0(i int) int {
	if i < 0 {
		return 0
	}
	return i
}

// parseExpr parses the arithmetic expression grammar:
// additive := multiplicative (('+' | '-') multiplicative)*
// multiplicative := primary (('*' | '/') primary)*
// primary := Number | Percent | Ref | '(' expr ')'
// Unary '-' applies only to numeric literals, and is already folded into
// the Number token by the lexer; a bare '-' here is always binary.
func (p *Parser) parseExpr() (ast.Expr, bool) {
	return p.parseAdditive()
}

func (p *Parser) parseAdditive() (ast.Expr, bool) {
	start := p.cur().Span
	left, ok := p.parseMultiplicative()
	if !ok {
		return ast.Expr{}, false
	}
	for p.cur().Kind == lexer.Plus || p.cur().Kind == lexer.Minus {
		op := ast.OpAdd
		if p.cur().Kind == lexer.Minus {
			op = ast.OpSub
		}
		p.advance()
		right, ok := p.parseMultiplicative()
		if !ok {
			return ast.Expr{}, false
		}
		l, r := left, right
		left = ast.Expr{Kind: ast.ExprBinary, Op: op, Left: &l, Right: &r, Span: ast.Span{Start: start.Start, End: p.toks[max0(p.pos-1)].Span.End}}
	}
	return left, true
}

func (p *Parser) parseMultiplicative() (ast.Expr, bool) {
	start := p.cur().Span
	left, ok := p.parsePrimary()
	if !ok {
		return ast.Expr{}, false
	}
	for p.cur().Kind == lexer.Star || p.cur().Kind == lexer.Slash {
		op := ast.OpMul
		if p.cur().Kind == lexer.Slash {
			op = ast.OpDiv
		}
		p.advance()
		right, ok := p.parsePrimary()
		if !ok {
			return ast.Expr{}, false
		}
		l, r := left, right
		left = ast.Expr{Kind: ast.ExprBinary, Op: op, Left: &l, Right: &r, Span: ast.Span{Start: start.Start, End: p.toks[max0(p.pos-1)].Span.End}}
	}
	return left, true
}

func (p *Parser) parsePrimary() (ast.Expr, bool) {
	start := p.cur().Span
	switch p.cur().Kind {
	case lexer.Number:
		t := p.advance()
		v, err := strconv.ParseFloat(t.Lexeme, 64)
		if err != nil {
			p.errorf(ast.Span(t.Span), "invalid number %q", t.Lexeme)
			return ast.Expr{}, false
		}
		return ast.Expr{Kind: ast.ExprNum, Num: v, Span: ast.Span(t.Span)}, true
	case lexer.PercentNumber:
		t := p.advance()
		v, err := strconv.ParseFloat(t.Lexeme, 64)
		if err != nil {
			p.errorf(ast.Span(t.Span), "invalid number %q", t.Lexeme)
			return ast.Expr{}, false
		}
		return ast.Expr{Kind: ast.ExprPercent, Num: v, Span: ast.Span(t.Span)}, true
	case lexer.LParen:
		p.advance()
		inner, ok := p.parseExpr()
		if !ok {
			return ast.Expr{}, false
		}
		if !p.expect(lexer.RParen, "')'") {
			return ast.Expr{}, false
		}
		end := p.advance().Span
		return ast.Expr{Kind: ast.ExprParen, Inner: &inner, Span: ast.Span{Start: start.Start, End: end.End}}, true
	case lexer.Ident:
		path := p.parseDottedName()
		end := p.toks[max0(p.pos-1)].Span
		return ast.Expr{Kind: ast.ExprRef, Ref: path, Span: ast.Span{Start: start.Start, End: end.End}}, true
	default:
		p.errorf(ast.Span(p.cur().Span), "expected a number, reference, or '(', got %s", p.cur().Kind)
		return ast.Expr{}, false
	}
}

// RefSegments splits a dotted reference path into its components.
func RefSegments(path string) []string {
	return strings.Split(path, ".")
}
