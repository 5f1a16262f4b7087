// Package diag defines the uniform diagnostic value used across every stage
// of the formulang pipeline. No stage panics or returns a bare error for an
// expected condition; each stage accumulates diagnostics and returns them
// alongside whatever partial result it managed to build.
package diag

import "fmt"

// Severity classifies how serious a diagnostic is.
type Severity int

const (
	Error Severity = iota
	Warning
	Info
)

// String returns the human-readable severity name.
func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Info:
		return "info"
	default:
		return "unknown"
	}
}

// Code identifies the kind of diagnostic, grouped by pipeline stage.
type Code string

const (
	// Lexical
	CodeUnterminatedString  Code = "lex/unterminated-string"
	CodeUnterminatedComment Code = "lex/unterminated-comment"
	CodeBadNumber           Code = "lex/bad-number"

	// Syntactic
	CodeUnexpectedToken Code = "parse/unexpected-token"
	CodeMissingBlock    Code = "parse/missing-block"

	// Import
	CodeImportNotFound Code = "import/not-found"
	CodeImportCycle    Code = "import/cycle"

	// Naming
	CodeUnknownIdent    Code = "name/unknown-identifier"
	CodeAmbiguousImport Code = "name/ambiguous-wildcard-import"
	CodeRedeclaration   Code = "name/redeclaration"

	// Typing
	CodeWrongKindRef     Code = "type/wrong-kind-reference"
	CodePercentOutOfPlace Code = "type/percent-outside-ingredients"

	// Composition
	CodeCompositionCycle Code = "compose/cycle"
	CodeMissingBound     Code = "compose/missing-bound"

	// Semantic
	CodeMissingCost      Code = "semantic/missing-cost"
	CodeMissingBatchSize Code = "semantic/missing-batch-size"

	// LP construction
	CodeNonLinearExpr Code = "lp/non-linear-expression"

	// Solver
	CodeInfeasible   Code = "solve/infeasible"
	CodeSolverFailed Code = "solve/backend-error"
)

// Span is a half-open byte range [Start, End) into a single source unit.
type Span struct {
	Start int
	End   int
}

// Contains reports whether offset falls within the span.
func (s Span) Contains(offset int) bool {
	return offset >= s.Start && offset < s.End
}

// Diagnostic is the single uniform error/warning/info value produced by
// every pipeline stage.
type Diagnostic struct {
	Span     Span
	Severity Severity
	Message  string
	Code     Code
	// Source is the canonical path of the source unit the span belongs to,
	// set when a diagnostic crosses module boundaries (e.g. import cycles).
	Source string
}

func (d Diagnostic) String() string {
	loc := fmt.Sprintf("%d:%d", d.Span.Start, d.Span.End)
	if d.Source != "" {
		loc = d.Source + "@" + loc
	}
	return fmt.Sprintf("%s: %s [%s] %s", loc, d.Severity, d.Code, d.Message)
}

// Bag accumulates diagnostics across stages. It is the single collector
// threaded through the whole pipeline so downstream stages never need to
// know how many errors an earlier stage already produced.
type Bag struct {
	items []Diagnostic
}

// Add appends a diagnostic to the bag.
func (b *Bag) Add(d Diagnostic) {
	b.items = append(b.items, d)
}

// Errorf appends an error-severity diagnostic.
func (b *Bag) Errorf(span Span, code Code, format string, args ...any) {
	b.Add(Diagnostic{Span: span, Severity: Error, Code: code, Message: fmt.Sprintf(format, args...)})
}

// Warnf appends a warning-severity diagnostic.
func (b *Bag) Warnf(span Span, code Code, format string, args ...any) {
	b.Add(Diagnostic{Span: span, Severity: Warning, Code: code, Message: fmt.Sprintf(format, args...)})
}

// HasErrors reports whether the bag contains at least one error-severity
// diagnostic. Stages use this to decide whether to continue.
func (b *Bag) HasErrors() bool {
	for _, d := range b.items {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// All returns every diagnostic accumulated so far, in the order added.
func (b *Bag) All() []Diagnostic {
	return b.items
}

// Merge appends another bag's diagnostics onto this one.
func (b *Bag) Merge(other *Bag) {
	if other == nil {
		return
	}
	b.items = append(b.items, other.items...)
}
