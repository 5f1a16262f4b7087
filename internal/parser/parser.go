// Package parser is a recursive-descent parser over the lexer's token
// stream. It produces one ast.Module per source unit. Declarations may
// appear in any order; blocks use newline-or-comma as item separators
// (the grammar needs no explicit newline token: every item has a
// statically-known start, so the parser simply keeps consuming items
// until it sees the closing brace, treating a comma as an optional
// separator between them).
//
// On a parse failure inside a block item, the parser records a
// diagnostic and skips forward to the next comma or closing brace so the
// rest of the source can still be parsed.
package parser

import (
	"strconv"
	"strings"

	"github.com/bherbruck/formulang/internal/ast"
	"github.com/bherbruck/formulang/internal/diag"
	"github.com/bherbruck/formulang/internal/lexer"
)

// knownDeclProps are the keys an ingredient body reads as properties
// (together with "cost"); any other key there is a nutrient content
// value. Nutrient and formula bodies accept any property key.
var knownDeclProps = map[string]bool{
	"name": true, "code": true, "desc": true, "description": true, "unit": true,
}

// Parser turns a token stream into an ast.Module, accumulating
// diagnostics for recoverable errors along the way.
type Parser struct {
	path string
	src  string
	toks []lexer.Token
	pos  int
	diags *diag.Bag
}

// Parse parses a single source unit into a Module plus any diagnostics
// produced along the way. A non-nil Module is returned even when
// diagnostics are non-empty: the parser recovers from errors at item
// granularity rather than aborting the whole file.
func Parse(path, src string) (*ast.Module, *diag.Bag) {
	p := &Parser{
		path:  path,
		src:   src,
		toks:  lexer.New(src).Tokenize(),
		diags: &diag.Bag{},
	}
	mod := p.parseModule()
	return mod, p.diags
}

func (p *Parser) cur() lexer.Token {
	if p.pos >= len(p.toks) {
		return p.toks[len(p.toks)-1] // EOF
	}
	return p.toks[p.pos]
}

func (p *Parser) peekAt(n int) lexer.Token {
	idx := p.pos + n
	if idx >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[idx]
}

func (p *Parser) advance() lexer.Token {
	t := p.cur()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) isKeyword(lexeme string) bool {
	t := p.cur()
	return t.Kind == lexer.Keyword && t.Lexeme == lexeme
}

func (p *Parser) errorf(span ast.Span, format string, args ...any) {
	p.diags.Errorf(diag.Span(span), diag.CodeUnexpectedToken, format, args...)
}

// expect reports an error if the current token's kind doesn't match, but
// does not advance; callers decide whether to recover.
func (p *Parser) expect(k lexer.Kind, what string) bool {
	if p.cur().Kind != k {
		p.errorf(ast.Span(p.cur().Span), "expected %s, got %s", what, p.cur().Kind)
		return false
	}
	return true
}

// recoverToItemBoundary skips tokens until a comma, closing brace, or EOF,
// consuming a trailing comma if present.
func (p *Parser) recoverToItemBoundary() {
	for {
		switch p.cur().Kind {
		case lexer.Comma:
			p.advance()
			return
		case lexer.RBrace, lexer.EOF:
			return
		default:
			p.advance()
		}
	}
}

func (p *Parser) parseModule() *ast.Module {
	mod := &ast.Module{Path: p.path}

	for p.cur().Kind != lexer.EOF {
		switch {
		case p.isKeyword("import"):
			if imp := p.parseImport(); imp != nil {
				mod.Imports = append(mod.Imports, imp)
			}
		case p.isKeyword("group"):
			if d := p.parseGroup(); d != nil {
				mod.Decls = append(mod.Decls, ast.Decl{Group: d})
			}
		case p.isKeyword("nutrient"):
			if d := p.parseNutrient(); d != nil {
				mod.Decls = append(mod.Decls, ast.Decl{Nutrient: d})
			}
		case p.isKeyword("ingredient"):
			if d := p.parseIngredient(); d != nil {
				mod.Decls = append(mod.Decls, ast.Decl{Ingredient: d})
			}
		case p.isKeyword("template") || p.isKeyword("formula"):
			if d := p.parseFormula(); d != nil {
				mod.Decls = append(mod.Decls, ast.Decl{Formula: d})
			}
		default:
			start := p.cur().Span
			p.errorf(ast.Span(start), "unexpected token %q at top level", p.cur().Lexeme)
			p.recoverToTopLevel()
		}
	}

	return mod
}

func (p *Parser) recoverToTopLevel() {
	for p.cur().Kind != lexer.EOF {
		if p.isKeyword("import") || p.isKeyword("group") || p.isKeyword("nutrient") ||
			p.isKeyword("ingredient") || p.isKeyword("template") || p.isKeyword("formula") {
			return
		}
		p.advance()
	}
}

// pathStem returns the filename stem of an import path: strips any
// directory components and a trailing ".fm" extension.
func pathStem(path string) string {
	s := path
	if i := strings.LastIndexAny(s, "/\\"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(s, ".fm")
	return s
}

func (p *Parser) parseImport() *ast.Import {
	start := p.advance().Span // 'import'

	if !p.expect(lexer.String, "a quoted import path") {
		p.recoverToTopLevel()
		return nil
	}
	pathTok := p.advance()

	imp := &ast.Import{Path: pathTok.Value, Binding: ast.BindNamespaced, Alias: pathStem(pathTok.Value)}

	switch {
	case p.isKeyword("as"):
		p.advance()
		if !p.expect(lexer.Ident, "an identifier after 'as'") {
			p.recoverToTopLevel()
			return imp
		}
		imp.Binding = ast.BindAliased
		imp.Alias = p.advance().Lexeme
	case p.cur().Kind == lexer.LBrace:
		p.advance()
		if p.cur().Kind == lexer.Star {
			p.advance()
			imp.Binding = ast.BindWildcard
		} else {
			imp.Binding = ast.BindDirectList
			imp.Names = p.parseIdentCommaList()
		}
		p.expect(lexer.RBrace, "'}'")
		p.advance()
	}

	imp.Span = ast.Span{Start: start.Start, End: p.toks[max(0, p.pos-1)].Span.End}
	return imp
}

func (p *Parser) parseIdentCommaList() []string {
	var names []string
	for p.cur().Kind == lexer.Ident {
		names = append(names, p.advance().Lexeme)
		if p.cur().Kind == lexer.Comma {
			p.advance()
			continue
		}
		break
	}
	return names
}

func (p *Parser) parseGroup() *ast.GroupDecl {
	start := p.advance().Span // 'group'
	if !p.expect(lexer.Ident, "a group name") {
		p.recoverToTopLevel()
		return nil
	}
	name := p.advance().Lexeme

	if !p.expect(lexer.LBrace, "'{'") {
		p.recoverToTopLevel()
		return nil
	}
	p.advance()
	members := p.parseIdentCommaList()
	p.expect(lexer.RBrace, "'}'")
	end := p.advance().Span

	return &ast.GroupDecl{Name: name, Members: members, Span: ast.Span{Start: start.Start, End: end.End}}
}

func (p *Parser) parseNutrient() *ast.NutrientDecl {
	start := p.advance().Span // 'nutrient'
	if !p.expect(lexer.Ident, "a nutrient name") {
		p.recoverToTopLevel()
		return nil
	}
	name := p.advance().Lexeme

	if !p.expect(lexer.LBrace, "'{'") {
		p.recoverToTopLevel()
		return nil
	}
	p.advance()

	var props []ast.Prop
	for p.cur().Kind != lexer.RBrace && p.cur().Kind != lexer.EOF {
		if prop, ok := p.parseProp(); ok {
			props = append(props, prop)
		} else {
			p.recoverToItemBoundary()
			continue
		}
		if p.cur().Kind == lexer.Comma {
			p.advance()
		}
	}
	p.expect(lexer.RBrace, "'}'")
	end := p.advance().Span

	return &ast.NutrientDecl{Name: name, Props: props, Span: ast.Span{Start: start.Start, End: end.End}}
}

// parseProp parses a single `name value` or legacy `name: value` line.
func (p *Parser) parseProp() (ast.Prop, bool) {
	start := p.cur().Span
	if !p.expect(lexer.Ident, "a property name") {
		return ast.Prop{}, false
	}
	key := p.advance().Lexeme
	if p.cur().Kind == lexer.Colon {
		p.advance()
	}
	value, ok := p.parsePropValue()
	if !ok {
		return ast.Prop{}, false
	}
	return ast.Prop{Name: key, Value: value, Span: ast.Span{Start: start.Start, End: p.toks[max(0, p.pos-1)].Span.End}}, true
}

func (p *Parser) parsePropValue() (string, bool) {
	switch p.cur().Kind {
	case lexer.String:
		return p.advance().Value, true
	case lexer.Ident, lexer.Number:
		return p.advance().Lexeme, true
	case lexer.PercentNumber:
		t := p.advance()
		return t.Lexeme + "%", true
	default:
		p.errorf(ast.Span(p.cur().Span), "expected a property value, got %s", p.cur().Kind)
		return "", false
	}
}

func (p *Parser) parseIngredient() *ast.IngredientDecl {
	start := p.advance().Span // 'ingredient'
	if !p.expect(lexer.Ident, "an ingredient name") {
		p.recoverToTopLevel()
		return nil
	}
	name := p.advance().Lexeme

	if !p.expect(lexer.LBrace, "'{'") {
		p.recoverToTopLevel()
		return nil
	}
	p.advance()

	decl := &ast.IngredientDecl{Name: name}

	for p.cur().Kind != lexer.RBrace && p.cur().Kind != lexer.EOF {
		itemStart := p.cur().Span
		if !p.expect(lexer.Ident, "a property or nutrient reference") {
			p.recoverToItemBoundary()
			continue
		}
		key := p.parseDottedName()

		if p.cur().Kind == lexer.Colon {
			p.advance()
		}

		if knownDeclProps[key] || key == "cost" {
			value, ok := p.parsePropValue()
			if !ok {
				p.recoverToItemBoundary()
				continue
			}
			decl.Props = append(decl.Props, ast.Prop{Name: key, Value: value, Span: ast.Span{Start: itemStart.Start, End: p.toks[max(0, p.pos-1)].Span.End}})
		} else {
			num, isPercent, ok := p.parseNumericValue()
			if !ok {
				p.errorf(ast.Span(itemStart), "expected a numeric nutrient content value for %q", key)
				p.recoverToItemBoundary()
				continue
			}
			_ = isPercent // nutrient content values are plain numbers; a trailing % is dropped without a diagnostic
			decl.NutrientValues = append(decl.NutrientValues, ast.NutrientValue{Ref: key, Value: num, Span: ast.Span{Start: itemStart.Start, End: p.toks[max(0, p.pos-1)].Span.End}})
		}

		if p.cur().Kind == lexer.Comma {
			p.advance()
		}
	}
	p.expect(lexer.RBrace, "'}'")
	end := p.advance().Span
	decl.Span = ast.Span{Start: start.Start, End: end.End}

	return decl
}

// parseDottedName parses Ident ('.' Ident)* and returns it joined by '.'.
// The current token must already be Ident when this is called.
func (p *Parser) parseDottedName() string {
	segs := []string{p.advance().Lexeme}
	for p.cur().Kind == lexer.Dot && p.peekAt(1).Kind == lexer.Ident {
		p.advance()
		segs = append(segs, p.advance().Lexeme)
	}
	return strings.Join(segs, ".")
}

func (p *Parser) parseNumericValue() (value float64, isPercent bool, ok bool) {
	switch p.cur().Kind {
	case lexer.Number:
		t := p.advance()
		v, err := strconv.ParseFloat(t.Lexeme, 64)
		if err != nil {
			return 0, false, false
		}
		return v, false, true
	case lexer.PercentNumber:
		t := p.advance()
		v, err := strconv.ParseFloat(t.Lexeme, 64)
		if err != nil {
			return 0, false, false
		}
		return v, true, true
	default:
		return 0, false, false
	}
}

func (p *Parser) parseFormula() *ast.FormulaDecl {
	start := p.cur().Span
	isTemplate := false
	if p.isKeyword("template") {
		p.advance()
		isTemplate = true
	}
	if !p.expect(lexer.Keyword, "'formula'") || p.cur().Lexeme != "formula" {
		p.recoverToTopLevel()
		return nil
	}
	p.advance()

	if !p.expect(lexer.Ident, "a formula name") {
		p.recoverToTopLevel()
		return nil
	}
	name := p.advance().Lexeme

	if !p.expect(lexer.LBrace, "'{'") {
		p.recoverToTopLevel()
		return nil
	}
	p.advance()

	decl := &ast.FormulaDecl{Name: name, IsTemplate: isTemplate}

	for p.cur().Kind != lexer.RBrace && p.cur().Kind != lexer.EOF {
		switch {
		case p.isKeyword("nutrients") || p.isKeyword("nuts"):
			p.advance()
			if !p.expect(lexer.LBrace, "'{'") {
				p.recoverToItemBoundary()
				continue
			}
			p.advance()
			decl.NutrientItems = append(decl.NutrientItems, p.parseBlockItems(ast.NutrientsBlock)...)
			p.expect(lexer.RBrace, "'}'")
			p.advance()
		case p.isKeyword("ingredients") || p.isKeyword("ings"):
			p.advance()
			if !p.expect(lexer.LBrace, "'{'") {
				p.recoverToItemBoundary()
				continue
			}
			p.advance()
			decl.IngredientItems = append(decl.IngredientItems, p.parseBlockItems(ast.IngredientsBlock)...)
			p.expect(lexer.RBrace, "'}'")
			p.advance()
		case p.cur().Kind == lexer.Ident:
			propStart := p.cur().Span
			key := p.advance().Lexeme
			if p.cur().Kind == lexer.Colon {
				p.advance()
			}
			value, ok := p.parsePropValue()
			if ok {
				decl.Props = append(decl.Props, ast.Prop{Name: key, Value: value, Span: ast.Span{Start: propStart.Start, End: p.toks[max(0, p.pos-1)].Span.End}})
			} else {
				p.recoverToItemBoundary()
			}
		default:
			p.errorf(ast.Span(p.cur().Span), "unexpected token %q in formula body", p.cur().Lexeme)
			p.recoverToItemBoundary()
		}
	}
	p.expect(lexer.RBrace, "'}'")
	end := p.advance().Span
	decl.Span = ast.Span{Start: start.Start, End: end.End}

	return decl
}

// parseBlockItems parses the contents of a nutrients{} or ingredients{}
// block: a newline/comma separated list of composition references and
// constraints.
func (p *Parser) parseBlockItems(bk ast.BlockKind) []ast.Item {
	var items []ast.Item
	for p.cur().Kind != lexer.RBrace && p.cur().Kind != lexer.EOF {
		item, ok := p.parseBlockItem(bk)
		if ok {
			items = append(items, item)
		} else {
			p.recoverToItemBoundary()
			continue
		}
		if p.cur().Kind == lexer.Comma {
			p.advance()
		}
	}
	return items
}
