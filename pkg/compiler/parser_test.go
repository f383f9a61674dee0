package compiler

import (
	"errors"
	"testing"
)

func parseOne(t *testing.T, src string) *Program {
	t.Helper()
	tokens, err := Lex(src)
	if err != nil {
		t.Fatalf("Lex failed: %v", err)
	}
	prog, err := Parse(tokens)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return prog
}

func parseErr(t *testing.T, src string) *ParseError {
	t.Helper()
	tokens, err := Lex(src)
	if err != nil {
		t.Fatalf("Lex failed: %v", err)
	}
	_, err = Parse(tokens)
	var parseError *ParseError
	if !errors.As(err, &parseError) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	return parseError
}

func TestParseFunctionDecl(t *testing.T) {
	prog := parseOne(t, `
public func add(x: uint, y: uint) -> uint {
    return x + y;
}`)
	if len(prog.Funcs) != 1 {
		t.Fatalf("got %d functions", len(prog.Funcs))
	}
	fn := prog.Funcs[0]
	if fn.Name != "add" || !fn.Public || fn.Extern {
		t.Errorf("decl flags wrong: %+v", fn)
	}
	if len(fn.Params) != 2 || fn.Params[1].Name != "y" {
		t.Errorf("params wrong: %+v", fn.Params)
	}
	if fn.Ret == nil || fn.Ret.Name != "uint" {
		t.Errorf("return type wrong: %v", fn.Ret)
	}
}

func TestParseExternDecl(t *testing.T) {
	prog := parseOne(t, "extern func safeAdd(x: uint, y: uint) -> uint;")
	fn := prog.Funcs[0]
	if !fn.Extern || fn.Body != nil {
		t.Errorf("extern not recognised: %+v", fn)
	}
}

func TestParseStructDecl(t *testing.T) {
	prog := parseOne(t, `
struct Pair {
    a: uint,
    b: option<int8>,
}`)
	sd := prog.Structs[0]
	if sd.Name != "Pair" || len(sd.Fields) != 2 {
		t.Fatalf("struct wrong: %+v", sd)
	}
	if sd.Fields[1].Ann.Option == nil || sd.Fields[1].Ann.Option.Name != "int8" {
		t.Errorf("option field type wrong: %v", sd.Fields[1].Ann)
	}
}

func TestParseTupleType(t *testing.T) {
	prog := parseOne(t, "extern func minmax(a: uint, b: uint) -> (uint, uint);")
	ret := prog.Funcs[0].Ret
	if ret.Tuple == nil || len(ret.Tuple) != 2 {
		t.Fatalf("tuple return type wrong: %v", ret)
	}
}

func TestParseIfLet(t *testing.T) {
	prog := parseOne(t, `
func f(o: option<uint>) -> uint {
    if let Some(v) = o {
        return v;
    } else {
        return 0;
    }
}`)
	stmt, ok := prog.Funcs[0].Body[0].(*IfLetStmt)
	if !ok {
		t.Fatalf("got %T, want IfLetStmt", prog.Funcs[0].Body[0])
	}
	if stmt.Binding != "v" || len(stmt.Then) != 1 || len(stmt.Else) != 1 {
		t.Errorf("if let shape wrong: %+v", stmt)
	}
}

func TestParseElseIfChain(t *testing.T) {
	prog := parseOne(t, `
func f(x: uint) {
    if x == 0 {
    } else if x == 1 {
    } else {
    }
}`)
	outer := prog.Funcs[0].Body[0].(*IfStmt)
	inner, ok := outer.Else[0].(*IfStmt)
	if !ok {
		t.Fatalf("chained else-if missing, got %T", outer.Else[0])
	}
	if inner.Else == nil {
		t.Error("final else missing")
	}
}

func TestParseEmptyElsePresent(t *testing.T) {
	prog := parseOne(t, `
func f(x: uint) {
    if x == 0 {
    } else {
    }
    if x == 1 {
    }
}`)
	with := prog.Funcs[0].Body[0].(*IfStmt)
	if with.Else == nil {
		t.Error("empty else lost")
	}
	without := prog.Funcs[0].Body[1].(*IfStmt)
	if without.Else != nil {
		t.Error("absent else materialized")
	}
}

func TestParseCastVsCall(t *testing.T) {
	prog := parseOne(t, `
func f(x: uint) -> uint {
    let a = uint8(x);
    let b = g(x);
    return a + b;
}`)
	body := prog.Funcs[0].Body
	if _, ok := body[0].(*LetStmt).Init.(*CastExpr); !ok {
		t.Errorf("uint8(x) parsed as %T, want CastExpr", body[0].(*LetStmt).Init)
	}
	if _, ok := body[1].(*LetStmt).Init.(*CallExpr); !ok {
		t.Errorf("g(x) parsed as %T, want CallExpr", body[1].(*LetStmt).Init)
	}
}

func TestParseStructLitSuppressedInCondition(t *testing.T) {
	// `if x {` must read the brace as the block opener, not a literal.
	prog := parseOne(t, `
func f(x: uint) {
    if x {
        return;
    }
}`)
	stmt := prog.Funcs[0].Body[0].(*IfStmt)
	if _, ok := stmt.Cond.(*Ident); !ok {
		t.Errorf("condition parsed as %T, want Ident", stmt.Cond)
	}
}

func TestParseWideHexLiteral(t *testing.T) {
	prog := parseOne(t, `
func f() {
    let k = 0x0102030405060708091011121314151617181920212223242526272829303132;
}`)
	lit := prog.Funcs[0].Body[0].(*LetStmt).Init.(*Literal)
	if !lit.IsBytes {
		t.Fatal("wide hex literal not marked as bytes")
	}
	if lit.Bytes[0] != 0x01 || lit.Bytes[31] != 0x32 {
		t.Errorf("bytes decoded wrong: %x", lit.Bytes)
	}
}

func TestParseErrorPosition(t *testing.T) {
	perr := parseErr(t, "func f(x: uint) -> uint { x + }")
	if perr.Line != 1 || perr.Col != 31 {
		t.Errorf("error at %d:%d, want 1:31", perr.Line, perr.Col)
	}
}

func TestParseRejectsComparisonChain(t *testing.T) {
	parseErr(t, `
func f(a: uint, b: uint, c: uint) {
    let x = a < b < c;
}`)
}

func TestParseRejectsTopLevelStatement(t *testing.T) {
	parseErr(t, "let x = 1;")
}
