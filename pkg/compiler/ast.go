package compiler

import (
	"fmt"
	"strings"
)

// Pos is a source location carried by every AST node for diagnostics.
type Pos struct {
	Line int
	Col  int
}

func tokenPos(tok Token) Pos {
	return Pos{Line: tok.Line, Col: tok.Col}
}

//  Type syntax

// TypeExpr is the syntactic form of a type annotation. The checker resolves
// it to a semantic *Type.
type TypeExpr struct {
	Pos    Pos
	Name   string      // named type: uint, bytes32, a struct name, ...
	Option *TypeExpr   // non-nil for option<inner>
	Tuple  []*TypeExpr // non-nil for (a, b, ...)
}

func (te *TypeExpr) String() string {
	switch {
	case te.Option != nil:
		return fmt.Sprintf("option<%s>", te.Option)
	case te.Tuple != nil:
		parts := make([]string, len(te.Tuple))
		for i, e := range te.Tuple {
			parts[i] = e.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	default:
		return te.Name
	}
}

//  Expression nodes

// Expr is implemented by every node that produces a value. The checker
// annotates each node with its resolved semantic type, which genExpr reads
// back during lowering.
type Expr interface {
	exprNode()
	ExprPos() Pos
	Type() *Type
	String() string
}

// exprBase carries the position and the checker-resolved type.
type exprBase struct {
	Pos Pos
	typ *Type
}

func (b *exprBase) ExprPos() Pos    { return b.Pos }
func (b *exprBase) Type() *Type     { return b.typ }
func (b *exprBase) setType(t *Type) { b.typ = t }

// Literal is a compile-time integer or bytes32 constant.
type Literal struct {
	exprBase
	Text    string // original lexeme, for diagnostics
	Value   uint64
	IsBytes bool // hex literal wider than 64 bits
	Bytes   [32]byte
}

func (*Literal) exprNode()          {}
func (l *Literal) String() string { return l.Text }

// Ident is a read of a named binding.
type Ident struct {
	exprBase
	Name string

	// Slot is the local slot index of the binding, set by the checker.
	Slot int
}

func (*Ident) exprNode()          {}
func (i *Ident) String() string { return i.Name }

// BinaryExpr represents Left Op Right.
type BinaryExpr struct {
	exprBase
	Op    TokenType
	Left  Expr
	Right Expr
}

func (*BinaryExpr) exprNode() {}
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

// UnaryExpr represents -Right.
type UnaryExpr struct {
	exprBase
	Op    TokenType
	Right Expr
}

func (*UnaryExpr) exprNode()          {}
func (u *UnaryExpr) String() string { return fmt.Sprintf("(%s %s)", u.Op, u.Right) }

// CallExpr represents name(args).
type CallExpr struct {
	exprBase
	Name string
	Args []Expr

	// Extern is set by the checker when the callee is declared extern and
	// the call site therefore needs a relocation entry.
	Extern bool
}

func (*CallExpr) exprNode() {}
func (c *CallExpr) String() string {
	return fmt.Sprintf("Call(%s, args=%v)", c.Name, c.Args)
}

// CastExpr represents an explicit integer cast such as int(x) or uint8(x).
type CastExpr struct {
	exprBase
	TypeName string
	X        Expr
}

func (*CastExpr) exprNode()          {}
func (c *CastExpr) String() string { return fmt.Sprintf("%s(%s)", c.TypeName, c.X) }

// OptionExpr constructs Some(value) or None.
type OptionExpr struct {
	exprBase
	Some  bool
	Inner Expr // nil for None
}

func (*OptionExpr) exprNode() {}
func (o *OptionExpr) String() string {
	if o.Some {
		return fmt.Sprintf("Some(%s)", o.Inner)
	}
	return "None"
}

// StructLitField is one field initializer inside a struct literal.
type StructLitField struct {
	Name  string
	Value Expr
}

// StructLit constructs a struct value: Name{field: expr, ...}.
type StructLit struct {
	exprBase
	Name   string
	Fields []StructLitField
}

func (*StructLit) exprNode() {}
func (s *StructLit) String() string {
	return fmt.Sprintf("%s{...%d fields}", s.Name, len(s.Fields))
}

// TupleLit constructs a tuple value: (a, b, ...).
type TupleLit struct {
	exprBase
	Elems []Expr
}

func (*TupleLit) exprNode()          {}
func (t *TupleLit) String() string { return fmt.Sprintf("Tuple(len=%d)", len(t.Elems)) }

// FieldExpr reads a struct field (s.name) or a tuple position (t.0).
type FieldExpr struct {
	exprBase
	X    Expr
	Name string // field name, or decimal position for tuples

	// SlotOffset and SlotLen are set by the checker: the member's slot range
	// within the base value.
	SlotOffset int
	SlotLen    int

	// TempSlot is the first of a temp local range used to spill the base
	// value when it is not a plain identifier; -1 when unused.
	TempSlot int
}

func (*FieldExpr) exprNode()          {}
func (f *FieldExpr) String() string { return fmt.Sprintf("(%s.%s)", f.X, f.Name) }

// IfExpr is the expression form of if/else: both arms yield a value.
type IfExpr struct {
	exprBase
	Cond Expr
	Then Expr
	Else Expr
}

func (*IfExpr) exprNode() {}
func (i *IfExpr) String() string {
	return fmt.Sprintf("IfExpr(%s ? %s : %s)", i.Cond, i.Then, i.Else)
}

// ErrorExpr is the divergent `error` construct in expression position. It
// has the bottom type and never completes normally.
type ErrorExpr struct {
	exprBase
}

func (*ErrorExpr) exprNode()          {}
func (e *ErrorExpr) String() string { return "error" }

//  Statement nodes

// Stmt is implemented by every node that does not produce a value.
type Stmt interface {
	stmtNode()
	String() string
}

// LetStmt represents  let name [: type] = expr;
type LetStmt struct {
	Pos  Pos
	Name string
	Ann  *TypeExpr // nil when the type is inferred
	Init Expr

	// Slot is the first local slot of the binding, set by the checker.
	Slot int
	// BindType is the binding's resolved type, set by the checker.
	BindType *Type
}

func (*LetStmt) stmtNode() {}
func (s *LetStmt) String() string {
	return fmt.Sprintf("Let(%s = %s)", s.Name, s.Init)
}

// IfStmt represents if cond { } [else { }]; else-if chains nest in Else.
type IfStmt struct {
	Pos  Pos
	Cond Expr
	Then []Stmt
	Else []Stmt // nil when absent
}

func (*IfStmt) stmtNode() {}
func (s *IfStmt) String() string {
	return fmt.Sprintf("If(%s, then=%d, else=%d)", s.Cond, len(s.Then), len(s.Else))
}

// IfLetStmt destructures an option:  if let Some(x) = expr { } else { }.
type IfLetStmt struct {
	Pos     Pos
	Binding string
	X       Expr
	Then    []Stmt
	Else    []Stmt

	// Slot is the binding's first local slot; PayloadType its type.
	// Both set by the checker.
	Slot        int
	PayloadType *Type
}

func (*IfLetStmt) stmtNode() {}
func (s *IfLetStmt) String() string {
	return fmt.Sprintf("IfLet(Some(%s) = %s)", s.Binding, s.X)
}

// ReturnStmt represents  return [expr];
type ReturnStmt struct {
	Pos   Pos
	Value Expr // nil for bare return
}

func (*ReturnStmt) stmtNode() {}
func (s *ReturnStmt) String() string {
	if s.Value == nil {
		return "Return"
	}
	return fmt.Sprintf("Return(%s)", s.Value)
}

// ErrorStmt represents  error;  — lowered to the VM trap opcode.
type ErrorStmt struct {
	Pos Pos
}

func (*ErrorStmt) stmtNode()          {}
func (s *ErrorStmt) String() string { return "Error" }

// ExprStmt represents an expression evaluated for its side effects.
type ExprStmt struct {
	Pos Pos
	X   Expr
}

func (*ExprStmt) stmtNode()          {}
func (s *ExprStmt) String() string { return fmt.Sprintf("ExprStmt(%s)", s.X) }

//  Declarations

// Param is one typed function parameter or struct field.
type Param struct {
	Pos  Pos
	Name string
	Ann  *TypeExpr
}

// FuncDecl represents  [public] func name(params) [-> ret] { body }
// or  extern func name(params) [-> ret];
type FuncDecl struct {
	Pos    Pos
	Name   string
	Public bool
	Extern bool
	Params []Param
	Ret    *TypeExpr // nil when the function returns nothing
	Body   []Stmt    // nil for extern declarations
}

func (d *FuncDecl) String() string {
	return fmt.Sprintf("Func(%s, params=%d)", d.Name, len(d.Params))
}

// StructDecl represents  struct Name { field: type, ... }
type StructDecl struct {
	Pos    Pos
	Name   string
	Fields []Param
}

func (d *StructDecl) String() string {
	return fmt.Sprintf("Struct(%s, fields=%d)", d.Name, len(d.Fields))
}

// Program is one parsed compilation unit.
type Program struct {
	Structs []*StructDecl
	Funcs   []*FuncDecl
}
