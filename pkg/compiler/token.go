package compiler

import "fmt"

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	EOF TokenType = iota // sentinel: end of input

	// Literals
	IDENTIFIER // variable / function / type name
	INTEGER    // decimal or hex integer literal

	// Keywords
	FUNC   // "func"
	EXTERN // "extern"
	PUBLIC // "public"
	STRUCT // "struct"
	LET    // "let"
	IF     // "if"
	ELSE   // "else"
	RETURN // "return"
	ERROR  // "error"
	SOME   // "Some"
	NONE   // "None"

	// Paired delimiters
	LBRACE // {
	RBRACE // }
	LPAREN // (
	RPAREN // )

	// Punctuation
	DOT       // .
	SEMICOLON // ;
	COMMA     // ,
	COLON     // :
	ARROW     // ->

	// Arithmetic operators
	PLUS    // +
	MINUS   // -
	STAR    // *
	SLASH   // /
	PERCENT // %

	// Assignment / comparison  (order matters: ASSIGN before EQUALS)
	ASSIGN  // =
	EQUALS  // ==
	NOT_EQ  // !=
	LESS    // <  (also opens a generic instantiation, e.g. option<uint>)
	GREATER // >  (also closes a generic instantiation)

	LESS_EQ    // <=
	GREATER_EQ // >=
)

var tokenNames = [...]string{
	EOF:        "EOF",
	IDENTIFIER: "IDENTIFIER",
	INTEGER:    "INTEGER",
	FUNC:       "FUNC",
	EXTERN:     "EXTERN",
	PUBLIC:     "PUBLIC",
	STRUCT:     "STRUCT",
	LET:        "LET",
	IF:         "IF",
	ELSE:       "ELSE",
	RETURN:     "RETURN",
	ERROR:      "ERROR",
	SOME:       "SOME",
	NONE:       "NONE",
	LBRACE:     "LBRACE",
	RBRACE:     "RBRACE",
	LPAREN:     "LPAREN",
	RPAREN:     "RPAREN",
	DOT:        "DOT",
	SEMICOLON:  "SEMICOLON",
	COMMA:      "COMMA",
	COLON:      "COLON",
	ARROW:      "ARROW",
	PLUS:       "PLUS",
	MINUS:      "MINUS",
	STAR:       "STAR",
	SLASH:      "SLASH",
	PERCENT:    "PERCENT",
	ASSIGN:     "ASSIGN",
	EQUALS:     "EQUALS",
	NOT_EQ:     "NOT_EQ",
	LESS:       "LESS",
	GREATER:    "GREATER",
	LESS_EQ:    "LESS_EQ",
	GREATER_EQ: "GREATER_EQ",
}

func (tt TokenType) String() string {
	if int(tt) >= 0 && int(tt) < len(tokenNames) {
		return tokenNames[tt]
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// keywords maps source text to its keyword TokenType.
var keywords = map[string]TokenType{
	"func":   FUNC,
	"extern": EXTERN,
	"public": PUBLIC,
	"struct": STRUCT,
	"let":    LET,
	"if":     IF,
	"else":   ELSE,
	"return": RETURN,
	"error":  ERROR,
	"Some":   SOME,
	"None":   NONE,
}

// Token is a single lexical unit produced by the Lexer.
type Token struct {
	Type   TokenType
	Lexeme string // the exact source text that was matched
	Line   int    // 1-based source line
	Col    int    // 1-based source column
}

func (t Token) String() string {
	return fmt.Sprintf("%-10s %-14q  line %d col %d", t.Type, t.Lexeme, t.Line, t.Col)
}
