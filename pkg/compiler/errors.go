package compiler

import "fmt"

// LexError reports an unrecognized character in the source text.
type LexError struct {
	Line int
	Col  int
	Rune rune
}

func (e *LexError) Error() string {
	return fmt.Sprintf("line %d:%d: unexpected character %q", e.Line, e.Col, e.Rune)
}

// ParseError reports the first grammar violation in the token stream. No
// partial AST survives a parse error.
type ParseError struct {
	Line     int
	Col      int
	Expected string
	Found    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d:%d: expected %s, found %s", e.Line, e.Col, e.Expected, e.Found)
}

// TypeErrorKind classifies a type-checking failure.
type TypeErrorKind int

const (
	UndefinedSymbol TypeErrorKind = iota
	ArityMismatch
	TypeMismatch
	InvalidGeneric
	DuplicateSymbol
	MissingReturn
)

var typeErrorKindNames = [...]string{
	UndefinedSymbol: "undefined symbol",
	ArityMismatch:   "arity mismatch",
	TypeMismatch:    "type mismatch",
	InvalidGeneric:  "invalid generic instantiation",
	DuplicateSymbol: "duplicate symbol",
	MissingReturn:   "missing return",
}

func (k TypeErrorKind) String() string {
	if int(k) >= 0 && int(k) < len(typeErrorKindNames) {
		return typeErrorKindNames[k]
	}
	return fmt.Sprintf("TypeErrorKind(%d)", int(k))
}

// TypeError reports an ill-typed program. Programs with a TypeError never
// reach code generation.
type TypeError struct {
	Kind TypeErrorKind
	Line int
	Col  int
	Msg  string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("line %d:%d: %s: %s", e.Line, e.Col, e.Kind, e.Msg)
}

// InternalError reports an invariant violation after successful type
// checking. It is always a compiler defect, never user-caused.
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal compiler error: %s", e.Msg)
}
