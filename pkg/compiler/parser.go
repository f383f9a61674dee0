package compiler

import (
	"fmt"
	"strconv"
)

// Parser consumes the flat token slice produced by the Lexer and builds an
// AST for one compilation unit.
//
// Grammar:
//
//	program    = (structDecl | externDecl | funcDecl)* EOF
//	structDecl = "struct" IDENT "{" (IDENT ":" type ",")* "}"
//	externDecl = "extern" "func" signature ";"
//	funcDecl   = ["public"] "func" signature block
//	signature  = IDENT "(" params ")" ["->" type]
//	type       = "option" "<" type ">" | "(" type ("," type)+ ")" | IDENT
//	block      = "{" statement* "}"
//	statement  = letStmt | ifLetStmt | ifStmt | returnStmt | errorStmt | exprStmt
//	letStmt    = "let" IDENT [":" type] "=" expression ";"
//	ifLetStmt  = "if" "let" "Some" "(" IDENT ")" "=" expression block ["else" (block | ifStmt)]
//	ifStmt     = "if" expression block ["else" (block | ifStmt)]
//	expression = comparison
//	comparison = additive [("=="|"!="|"<"|"<="|">"|">=") additive]
//	additive   = multiplicative (("+"|"-") multiplicative)*
//	multiplicative = unary (("*"|"/"|"%") unary)*
//	unary      = "-" unary | postfix
//	postfix    = primary ("." (IDENT | INTEGER))*
//	primary    = INTEGER | IDENT | call | cast | "Some" "(" expr ")" | "None"
//	           | "error" | ifExpr | structLit | "(" expr ("," expr)* ")"
//
// Failure mode is fail-fast: the first violation produces a ParseError and
// no AST is returned.
type Parser struct {
	tokens []Token
	pos    int

	// noStructLit suppresses struct-literal parsing while an if condition is
	// being parsed, so `if x {` reads the brace as the block opener.
	noStructLit bool
}

// Parse builds the AST for one file worth of tokens.
func Parse(tokens []Token) (*Program, error) {
	p := &Parser{tokens: tokens}
	return p.parseProgram()
}

// peek returns the current token without consuming it.
func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos]
}

// peekNext returns the token immediately after the current one.
func (p *Parser) peekNext() Token {
	if p.pos+1 >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos+1]
}

// advance consumes and returns the current token.
func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *Parser) errExpected(tok Token, expected string) error {
	found := fmt.Sprintf("%s (%q)", tok.Type, tok.Lexeme)
	if tok.Type == EOF {
		found = "end of input"
	}
	return &ParseError{Line: tok.Line, Col: tok.Col, Expected: expected, Found: found}
}

// expect consumes the current token if it matches tt, otherwise fails.
func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.advance()
	if tok.Type != tt {
		return tok, p.errExpected(tok, tt.String())
	}
	return tok, nil
}

func (p *Parser) parseProgram() (*Program, error) {
	prog := &Program{}
	for p.peek().Type != EOF {
		switch p.peek().Type {
		case STRUCT:
			decl, err := p.parseStructDecl()
			if err != nil {
				return nil, err
			}
			prog.Structs = append(prog.Structs, decl)
		case EXTERN, PUBLIC, FUNC:
			decl, err := p.parseFuncDecl()
			if err != nil {
				return nil, err
			}
			prog.Funcs = append(prog.Funcs, decl)
		default:
			return nil, p.errExpected(p.peek(), "declaration")
		}
	}
	return prog, nil
}

func (p *Parser) parseStructDecl() (*StructDecl, error) {
	kw := p.advance() // struct
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}

	decl := &StructDecl{Pos: tokenPos(kw), Name: name.Lexeme}
	for p.peek().Type != RBRACE {
		field, err := p.parseParam()
		if err != nil {
			return nil, err
		}
		decl.Fields = append(decl.Fields, field)
		if p.peek().Type == COMMA {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(RBRACE); err != nil {
		return nil, err
	}
	return decl, nil
}

func (p *Parser) parseFuncDecl() (*FuncDecl, error) {
	start := p.peek()
	var public, extern bool
	switch start.Type {
	case EXTERN:
		extern = true
		p.advance()
	case PUBLIC:
		public = true
		p.advance()
	}
	if _, err := p.expect(FUNC); err != nil {
		return nil, err
	}

	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}

	decl := &FuncDecl{Pos: tokenPos(start), Name: name.Lexeme, Public: public, Extern: extern}
	for p.peek().Type != RPAREN {
		param, err := p.parseParam()
		if err != nil {
			return nil, err
		}
		decl.Params = append(decl.Params, param)
		if p.peek().Type == COMMA {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}

	if p.peek().Type == ARROW {
		p.advance()
		ret, err := p.parseTypeExpr()
		if err != nil {
			return nil, err
		}
		decl.Ret = ret
	}

	if extern {
		_, err := p.expect(SEMICOLON)
		return decl, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	decl.Body = body
	return decl, nil
}

func (p *Parser) parseParam() (Param, error) {
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return Param{}, err
	}
	if _, err := p.expect(COLON); err != nil {
		return Param{}, err
	}
	ann, err := p.parseTypeExpr()
	if err != nil {
		return Param{}, err
	}
	return Param{Pos: tokenPos(name), Name: name.Lexeme, Ann: ann}, nil
}

func (p *Parser) parseTypeExpr() (*TypeExpr, error) {
	tok := p.peek()
	switch tok.Type {
	case LPAREN:
		p.advance()
		var elems []*TypeExpr
		for {
			elem, err := p.parseTypeExpr()
			if err != nil {
				return nil, err
			}
			elems = append(elems, elem)
			if p.peek().Type != COMMA {
				break
			}
			p.advance()
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		if len(elems) < 2 {
			return nil, p.errExpected(tok, "tuple type with at least two members")
		}
		return &TypeExpr{Pos: tokenPos(tok), Tuple: elems}, nil

	case IDENTIFIER:
		p.advance()
		if tok.Lexeme == "option" {
			if _, err := p.expect(LESS); err != nil {
				return nil, err
			}
			inner, err := p.parseTypeExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(GREATER); err != nil {
				return nil, err
			}
			return &TypeExpr{Pos: tokenPos(tok), Option: inner}, nil
		}
		return &TypeExpr{Pos: tokenPos(tok), Name: tok.Lexeme}, nil

	default:
		return nil, p.errExpected(tok, "type")
	}
}

func (p *Parser) parseBlock() ([]Stmt, error) {
	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}
	// Non-nil even when empty: a present-but-empty else block must stay
	// distinguishable from an absent one.
	stmts := []Stmt{}
	for p.peek().Type != RBRACE && p.peek().Type != EOF {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	if _, err := p.expect(RBRACE); err != nil {
		return nil, err
	}
	return stmts, nil
}

func (p *Parser) parseStatement() (Stmt, error) {
	tok := p.peek()
	switch tok.Type {
	case LET:
		return p.parseLet()
	case IF:
		return p.parseIf()
	case RETURN:
		p.advance()
		stmt := &ReturnStmt{Pos: tokenPos(tok)}
		if p.peek().Type != SEMICOLON {
			value, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			stmt.Value = value
		}
		_, err := p.expect(SEMICOLON)
		return stmt, err
	case ERROR:
		p.advance()
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &ErrorStmt{Pos: tokenPos(tok)}, nil
	default:
		x, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &ExprStmt{Pos: tokenPos(tok), X: x}, nil
	}
}

func (p *Parser) parseLet() (Stmt, error) {
	kw := p.advance() // let
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	stmt := &LetStmt{Pos: tokenPos(kw), Name: name.Lexeme}
	if p.peek().Type == COLON {
		p.advance()
		ann, err := p.parseTypeExpr()
		if err != nil {
			return nil, err
		}
		stmt.Ann = ann
	}
	if _, err := p.expect(ASSIGN); err != nil {
		return nil, err
	}
	init, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	stmt.Init = init
	_, err = p.expect(SEMICOLON)
	return stmt, err
}

// parseIf handles both the plain statement form and option destructuring
// (`if let Some(x) = ...`).
func (p *Parser) parseIf() (Stmt, error) {
	kw := p.advance() // if

	if p.peek().Type == LET {
		p.advance()
		if _, err := p.expect(SOME); err != nil {
			return nil, err
		}
		if _, err := p.expect(LPAREN); err != nil {
			return nil, err
		}
		binding, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		if _, err := p.expect(ASSIGN); err != nil {
			return nil, err
		}
		x, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		then, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		stmt := &IfLetStmt{Pos: tokenPos(kw), Binding: binding.Lexeme, X: x, Then: then}
		stmt.Else, err = p.parseElse()
		return stmt, err
	}

	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	stmt := &IfStmt{Pos: tokenPos(kw), Cond: cond, Then: then}
	stmt.Else, err = p.parseElse()
	return stmt, err
}

// parseElse handles the optional tail of an if: a block or a chained if.
func (p *Parser) parseElse() ([]Stmt, error) {
	if p.peek().Type != ELSE {
		return nil, nil
	}
	p.advance()
	if p.peek().Type == IF {
		chained, err := p.parseIf()
		if err != nil {
			return nil, err
		}
		return []Stmt{chained}, nil
	}
	return p.parseBlock()
}

// parseCondition parses an expression with struct literals suppressed so the
// following { opens the block.
func (p *Parser) parseCondition() (Expr, error) {
	saved := p.noStructLit
	p.noStructLit = true
	x, err := p.parseExpression()
	p.noStructLit = saved
	return x, err
}

// parseExpression is the entry point for expression parsing.
func (p *Parser) parseExpression() (Expr, error) {
	return p.parseComparison()
}

// parseComparison handles ==, !=, <, <=, > and >=. A single comparison is
// allowed per level: chains like a < b < c are rejected.
func (p *Parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	switch p.peek().Type {
	case EQUALS, NOT_EQ, LESS, LESS_EQ, GREATER, GREATER_EQ:
		op := p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		b := &BinaryExpr{Op: op.Type, Left: left, Right: right}
		b.Pos = tokenPos(op)
		return b, nil
	}
	return left, nil
}

// parseAdditive handles + and -.
func (p *Parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == PLUS || p.peek().Type == MINUS {
		op := p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		b := &BinaryExpr{Op: op.Type, Left: left, Right: right}
		b.Pos = tokenPos(op)
		left = b
	}
	return left, nil
}

// parseMultiplicative handles *, / and %.
func (p *Parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == STAR || p.peek().Type == SLASH || p.peek().Type == PERCENT {
		op := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		b := &BinaryExpr{Op: op.Type, Left: left, Right: right}
		b.Pos = tokenPos(op)
		left = b
	}
	return left, nil
}

// parseUnary handles unary minus.
func (p *Parser) parseUnary() (Expr, error) {
	if p.peek().Type == MINUS {
		op := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		u := &UnaryExpr{Op: op.Type, Right: right}
		u.Pos = tokenPos(op)
		return u, nil
	}
	return p.parsePostfix()
}

// parsePostfix handles field and tuple-position access.
func (p *Parser) parsePostfix() (Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == DOT {
		dot := p.advance()
		member := p.advance()
		if member.Type != IDENTIFIER && member.Type != INTEGER {
			return nil, p.errExpected(member, "field name or tuple position")
		}
		f := &FieldExpr{X: x, Name: member.Lexeme, TempSlot: -1}
		f.Pos = tokenPos(dot)
		x = f
	}
	return x, nil
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.peek()
	switch tok.Type {
	case INTEGER:
		p.advance()
		return p.makeLiteral(tok)

	case ERROR:
		p.advance()
		e := &ErrorExpr{}
		e.Pos = tokenPos(tok)
		return e, nil

	case NONE:
		p.advance()
		o := &OptionExpr{Some: false}
		o.Pos = tokenPos(tok)
		return o, nil

	case SOME:
		p.advance()
		if _, err := p.expect(LPAREN); err != nil {
			return nil, err
		}
		inner, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		o := &OptionExpr{Some: true, Inner: inner}
		o.Pos = tokenPos(tok)
		return o, nil

	case IF:
		return p.parseIfExpr()

	case LPAREN:
		p.advance()
		first, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if p.peek().Type == COMMA {
			lit := &TupleLit{Elems: []Expr{first}}
			lit.Pos = tokenPos(tok)
			for p.peek().Type == COMMA {
				p.advance()
				elem, err := p.parseExpression()
				if err != nil {
					return nil, err
				}
				lit.Elems = append(lit.Elems, elem)
			}
			if _, err := p.expect(RPAREN); err != nil {
				return nil, err
			}
			return lit, nil
		}
		_, err = p.expect(RPAREN)
		return first, err

	case IDENTIFIER:
		p.advance()
		switch {
		case p.peek().Type == LPAREN:
			return p.parseCallOrCast(tok)
		case p.peek().Type == LBRACE && !p.noStructLit:
			return p.parseStructLit(tok)
		default:
			id := &Ident{Name: tok.Lexeme}
			id.Pos = tokenPos(tok)
			return id, nil
		}

	default:
		return nil, p.errExpected(tok, "expression")
	}
}

// parseIfExpr handles if/else in expression position. Each arm is a single
// expression wrapped in braces.
func (p *Parser) parseIfExpr() (Expr, error) {
	kw := p.advance() // if
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}
	then, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RBRACE); err != nil {
		return nil, err
	}
	if _, err := p.expect(ELSE); err != nil {
		return nil, err
	}

	var elseX Expr
	if p.peek().Type == IF {
		elseX, err = p.parseIfExpr()
		if err != nil {
			return nil, err
		}
	} else {
		if _, err := p.expect(LBRACE); err != nil {
			return nil, err
		}
		elseX, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RBRACE); err != nil {
			return nil, err
		}
	}

	x := &IfExpr{Cond: cond, Then: then, Else: elseX}
	x.Pos = tokenPos(kw)
	return x, nil
}

// parseCallOrCast handles name(args). Integer type names double as explicit
// cast operators: int(x), uint8(x).
func (p *Parser) parseCallOrCast(name Token) (Expr, error) {
	p.advance() // (
	var args []Expr
	for p.peek().Type != RPAREN {
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.peek().Type == COMMA {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}

	if _, isType := integerTypeNames[name.Lexeme]; isType {
		if len(args) != 1 {
			return nil, p.errExpected(name, "exactly one cast operand")
		}
		c := &CastExpr{TypeName: name.Lexeme, X: args[0]}
		c.Pos = tokenPos(name)
		return c, nil
	}

	call := &CallExpr{Name: name.Lexeme, Args: args}
	call.Pos = tokenPos(name)
	return call, nil
}

func (p *Parser) parseStructLit(name Token) (Expr, error) {
	p.advance() // {
	lit := &StructLit{Name: name.Lexeme}
	lit.Pos = tokenPos(name)
	for p.peek().Type != RBRACE {
		field, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(COLON); err != nil {
			return nil, err
		}
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		lit.Fields = append(lit.Fields, StructLitField{Name: field.Lexeme, Value: value})
		if p.peek().Type == COMMA {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(RBRACE); err != nil {
		return nil, err
	}
	return lit, nil
}

func (p *Parser) makeLiteral(tok Token) (Expr, error) {
	lit := &Literal{Text: tok.Lexeme}
	lit.Pos = tokenPos(tok)

	if len(tok.Lexeme) > 2 && (tok.Lexeme[1] == 'x' || tok.Lexeme[1] == 'X') {
		hex := tok.Lexeme[2:]
		if len(hex) > 16 {
			// Wider than a word: a bytes32 constant routed through the pool.
			if len(hex) > 64 {
				return nil, p.errExpected(tok, "hex literal of at most 32 bytes")
			}
			lit.IsBytes = true
			var b [32]byte
			// Right-align the nibbles, zero padded on the left.
			for i := 0; i < len(hex); i++ {
				d, err := strconv.ParseUint(string(hex[len(hex)-1-i]), 16, 8)
				if err != nil {
					return nil, p.errExpected(tok, "hex literal")
				}
				idx := 31 - i/2
				if i%2 == 0 {
					b[idx] |= byte(d)
				} else {
					b[idx] |= byte(d) << 4
				}
			}
			lit.Bytes = b
			return lit, nil
		}
		value, err := strconv.ParseUint(hex, 16, 64)
		if err != nil {
			return nil, p.errExpected(tok, "hex literal")
		}
		lit.Value = value
		return lit, nil
	}

	value, err := strconv.ParseUint(tok.Lexeme, 10, 64)
	if err != nil {
		return nil, p.errExpected(tok, "integer literal")
	}
	lit.Value = value
	return lit, nil
}
