package compiler

import (
	"fmt"
	"strconv"
)

// FuncInfo is the checker's record of one checked function: its declaration,
// resolved signature, and the frame layout the code generator needs.
type FuncInfo struct {
	Decl *FuncDecl
	Sig  *Type // KindFunc

	// ParamSlots is the number of local slots covered by the parameters;
	// LocalSlots the total frame size including let bindings and temps.
	ParamSlots int
	LocalSlots int
}

// RetSlots returns the number of stack slots the function leaves behind.
func (f *FuncInfo) RetSlots() int {
	if f.Sig.Ret == nil {
		return 0
	}
	return f.Sig.Ret.Slots()
}

// UnitInfo is the result of checking one compilation unit. Functions appear
// in declaration order; extern declarations are included with a nil body.
type UnitInfo struct {
	Functions []*FuncInfo
	Syms      *SymbolTable
}

// Checker resolves names and types across a parsed unit. It runs two passes:
// the first registers every struct and function signature so bodies may call
// forward, the second checks each body. Checking stops at the first error.
type Checker struct {
	syms *SymbolTable

	// Return type of the function currently being checked; nil for none.
	ret *Type
}

// Check type-checks prog and annotates its AST in place with resolved types
// and slot assignments.
func Check(prog *Program) (*UnitInfo, error) {
	c := &Checker{syms: NewSymbolTable()}

	for _, sd := range prog.Structs {
		if err := c.declareStruct(sd); err != nil {
			return nil, err
		}
	}

	unit := &UnitInfo{Syms: c.syms}
	for _, fd := range prog.Funcs {
		info, err := c.declareFunc(fd)
		if err != nil {
			return nil, err
		}
		unit.Functions = append(unit.Functions, info)
	}

	for _, info := range unit.Functions {
		if info.Decl.Extern {
			continue
		}
		if err := c.checkFunc(info); err != nil {
			return nil, err
		}
	}
	return unit, nil
}

// declareStruct resolves a struct's fields and registers the nominal type.
// Structs resolve in declaration order, so a field may only name a struct
// declared earlier; this also rules out recursive layouts.
func (c *Checker) declareStruct(sd *StructDecl) error {
	typ := &Type{Kind: KindStruct, Name: sd.Name}
	seen := make(map[string]bool)
	for _, f := range sd.Fields {
		if seen[f.Name] {
			return &TypeError{Kind: DuplicateSymbol, Line: f.Pos.Line, Col: f.Pos.Col,
				Msg: fmt.Sprintf("field %q repeated in struct %s", f.Name, sd.Name)}
		}
		seen[f.Name] = true
		ft, err := c.resolveType(f.Ann)
		if err != nil {
			return err
		}
		typ.Fields = append(typ.Fields, Field{Name: f.Name, Type: ft})
	}
	return c.syms.DefineStruct(sd.Name, typ, sd.Pos)
}

func (c *Checker) declareFunc(fd *FuncDecl) (*FuncInfo, error) {
	sig := &Type{Kind: KindFunc}
	paramSlots := 0
	for _, p := range fd.Params {
		pt, err := c.resolveType(p.Ann)
		if err != nil {
			return nil, err
		}
		sig.Params = append(sig.Params, pt)
		paramSlots += pt.Slots()
	}
	if fd.Ret != nil {
		rt, err := c.resolveType(fd.Ret)
		if err != nil {
			return nil, err
		}
		sig.Ret = rt
	}
	sym := &Symbol{
		Name:   fd.Name,
		Kind:   SymFunc,
		Type:   sig,
		Public: fd.Public,
		Extern: fd.Extern,
		Pos:    fd.Pos,
	}
	if err := c.syms.DefineFunc(sym); err != nil {
		return nil, err
	}
	return &FuncInfo{Decl: fd, Sig: sig, ParamSlots: paramSlots}, nil
}

// resolveType turns syntax into a semantic type.
func (c *Checker) resolveType(te *TypeExpr) (*Type, error) {
	switch {
	case te.Option != nil:
		inner, err := c.resolveType(te.Option)
		if err != nil {
			return nil, err
		}
		if inner.Kind == KindNever {
			return nil, &TypeError{Kind: InvalidGeneric, Line: te.Pos.Line, Col: te.Pos.Col,
				Msg: "option payload must be a value type"}
		}
		return OptionOf(inner), nil
	case te.Tuple != nil:
		elems := make([]*Type, len(te.Tuple))
		for i, e := range te.Tuple {
			t, err := c.resolveType(e)
			if err != nil {
				return nil, err
			}
			elems[i] = t
		}
		return TupleOf(elems...), nil
	case te.Name == "bytes32":
		return Bytes32Type(), nil
	default:
		if t, ok := integerTypeNames[te.Name]; ok {
			return t, nil
		}
		if t, ok := c.syms.LookupStruct(te.Name); ok {
			return t, nil
		}
		return nil, &TypeError{Kind: UndefinedSymbol, Line: te.Pos.Line, Col: te.Pos.Col,
			Msg: fmt.Sprintf("unknown type %q", te.Name)}
	}
}

func (c *Checker) checkFunc(info *FuncInfo) error {
	fd := info.Decl
	c.syms.EnterFunction()
	defer c.syms.ExitFunction()
	c.ret = info.Sig.Ret

	// Parameters occupy the first local slots, in declaration order, which
	// is the layout the frame-entry opcode establishes.
	for i, p := range fd.Params {
		if _, err := c.syms.DefineLocal(p.Name, info.Sig.Params[i], p.Pos); err != nil {
			return err
		}
	}

	terminated, err := c.checkBlock(fd.Body)
	if err != nil {
		return err
	}
	if c.ret != nil && !terminated {
		return &TypeError{Kind: MissingReturn, Line: fd.Pos.Line, Col: fd.Pos.Col,
			Msg: fmt.Sprintf("function %q does not return on every path", fd.Name)}
	}
	info.LocalSlots = c.syms.LocalSlots()
	return nil
}

// checkBlock checks a statement list in a fresh scope and reports whether
// control definitely leaves the function before falling off the end.
func (c *Checker) checkBlock(stmts []Stmt) (bool, error) {
	c.syms.EnterScope()
	defer c.syms.ExitScope()
	terminated := false
	for _, st := range stmts {
		t, err := c.checkStmt(st)
		if err != nil {
			return false, err
		}
		terminated = terminated || t
	}
	return terminated, nil
}

func (c *Checker) checkStmt(st Stmt) (bool, error) {
	switch s := st.(type) {
	case *LetStmt:
		var want *Type
		if s.Ann != nil {
			t, err := c.resolveType(s.Ann)
			if err != nil {
				return false, err
			}
			want = t
		}
		it, err := c.checkValueExpr(s.Init, want)
		if err != nil {
			return false, err
		}
		bind := want
		if bind == nil {
			bind = it
		}
		if !it.AssignableTo(bind) {
			return false, c.mismatch(s.Pos, bind, it)
		}
		if bind.Kind == KindNever {
			return false, &TypeError{Kind: TypeMismatch, Line: s.Pos.Line, Col: s.Pos.Col,
				Msg: fmt.Sprintf("cannot bind %q to a diverging expression", s.Name)}
		}
		sym, err := c.syms.DefineLocal(s.Name, bind, s.Pos)
		if err != nil {
			return false, err
		}
		s.Slot = sym.Slot
		s.BindType = bind
		return false, nil

	case *IfStmt:
		ct, err := c.checkValueExpr(s.Cond, nil)
		if err != nil {
			return false, err
		}
		if !ct.IsInteger() {
			return false, &TypeError{Kind: TypeMismatch, Line: s.Pos.Line, Col: s.Pos.Col,
				Msg: fmt.Sprintf("condition must be an integer, got %s", ct)}
		}
		thenTerm, err := c.checkBlock(s.Then)
		if err != nil {
			return false, err
		}
		if s.Else == nil {
			return false, nil
		}
		elseTerm, err := c.checkBlock(s.Else)
		if err != nil {
			return false, err
		}
		return thenTerm && elseTerm, nil

	case *IfLetStmt:
		xt, err := c.checkValueExpr(s.X, nil)
		if err != nil {
			return false, err
		}
		if xt.Kind != KindOption {
			return false, &TypeError{Kind: TypeMismatch, Line: s.Pos.Line, Col: s.Pos.Col,
				Msg: fmt.Sprintf("if let requires an option value, got %s", xt)}
		}
		c.syms.EnterScope()
		sym, err := c.syms.DefineLocal(s.Binding, xt.Inner, s.Pos)
		if err != nil {
			c.syms.ExitScope()
			return false, err
		}
		s.Slot = sym.Slot
		s.PayloadType = xt.Inner
		thenTerm := false
		for _, inner := range s.Then {
			t, err := c.checkStmt(inner)
			if err != nil {
				c.syms.ExitScope()
				return false, err
			}
			thenTerm = thenTerm || t
		}
		c.syms.ExitScope()
		if s.Else == nil {
			return false, nil
		}
		elseTerm, err := c.checkBlock(s.Else)
		if err != nil {
			return false, err
		}
		return thenTerm && elseTerm, nil

	case *ReturnStmt:
		if c.ret == nil {
			if s.Value != nil {
				return false, &TypeError{Kind: TypeMismatch, Line: s.Pos.Line, Col: s.Pos.Col,
					Msg: "function has no result type"}
			}
			return true, nil
		}
		if s.Value == nil {
			return false, &TypeError{Kind: TypeMismatch, Line: s.Pos.Line, Col: s.Pos.Col,
				Msg: fmt.Sprintf("return needs a value of type %s", c.ret)}
		}
		vt, err := c.checkValueExpr(s.Value, c.ret)
		if err != nil {
			return false, err
		}
		if !vt.AssignableTo(c.ret) {
			return false, c.mismatch(s.Pos, c.ret, vt)
		}
		return true, nil

	case *ErrorStmt:
		return true, nil

	case *ExprStmt:
		// A call with no result is fine; any leftover value is discarded.
		_, err := c.checkExpr(s.X, nil)
		return false, err

	default:
		return false, &InternalError{Msg: fmt.Sprintf("unhandled statement %T", st)}
	}
}

// checkValueExpr checks e and requires that it produce a value.
func (c *Checker) checkValueExpr(e Expr, want *Type) (*Type, error) {
	t, err := c.checkExpr(e, want)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, &TypeError{Kind: TypeMismatch, Line: e.ExprPos().Line, Col: e.ExprPos().Col,
			Msg: "expression produces no value"}
	}
	return t, nil
}

// checkExpr resolves the type of e, using want to guide literal widths and
// option payload inference. A nil result with a nil error means the
// expression is a call to a function with no result type.
func (c *Checker) checkExpr(e Expr, want *Type) (*Type, error) {
	switch x := e.(type) {
	case *Literal:
		return c.checkLiteral(x, want, false)

	case *Ident:
		sym, ok := c.syms.Lookup(x.Name)
		if !ok {
			return nil, &TypeError{Kind: UndefinedSymbol, Line: x.Pos.Line, Col: x.Pos.Col,
				Msg: fmt.Sprintf("undefined name %q", x.Name)}
		}
		if sym.Kind != SymVar {
			return nil, &TypeError{Kind: TypeMismatch, Line: x.Pos.Line, Col: x.Pos.Col,
				Msg: fmt.Sprintf("%q is a function, not a value", x.Name)}
		}
		x.Slot = sym.Slot
		x.setType(sym.Type)
		return sym.Type, nil

	case *BinaryExpr:
		return c.checkBinary(x, want)

	case *UnaryExpr:
		var t *Type
		var err error
		if lit, ok := x.Right.(*Literal); ok {
			// A negated literal reaches one further than a bare
			// one: -128 fits int8 even though 128 does not.
			t, err = c.checkLiteral(lit, want, true)
		} else {
			t, err = c.checkValueExpr(x.Right, want)
		}
		if err != nil {
			return nil, err
		}
		if !t.IsInteger() {
			return nil, &TypeError{Kind: TypeMismatch, Line: x.Pos.Line, Col: x.Pos.Col,
				Msg: fmt.Sprintf("unary minus needs an integer, got %s", t)}
		}
		x.setType(t)
		return t, nil

	case *CallExpr:
		return c.checkCall(x)

	case *CastExpr:
		target, ok := integerTypeNames[x.TypeName]
		if !ok {
			return nil, &InternalError{Msg: fmt.Sprintf("cast to non-integer type %q", x.TypeName)}
		}
		t, err := c.checkValueExpr(x.X, nil)
		if err != nil {
			return nil, err
		}
		if !t.IsInteger() {
			return nil, &TypeError{Kind: TypeMismatch, Line: x.Pos.Line, Col: x.Pos.Col,
				Msg: fmt.Sprintf("cannot cast %s to %s", t, target)}
		}
		x.setType(target)
		return target, nil

	case *OptionExpr:
		return c.checkOption(x, want)

	case *StructLit:
		return c.checkStructLit(x)

	case *TupleLit:
		return c.checkTupleLit(x, want)

	case *FieldExpr:
		return c.checkField(x)

	case *IfExpr:
		return c.checkIfExpr(x, want)

	case *ErrorExpr:
		x.setType(NeverType())
		return x.Type(), nil

	default:
		return nil, &InternalError{Msg: fmt.Sprintf("unhandled expression %T", e)}
	}
}

// checkLiteral gives a literal the expected integer type when one is in
// play, defaulting to uint otherwise, and range-checks the value against
// the chosen width. negated marks a literal under unary minus, whose
// signed magnitude may reach 2^(w-1).
func (c *Checker) checkLiteral(l *Literal, want *Type, negated bool) (*Type, error) {
	if l.IsBytes {
		l.setType(Bytes32Type())
		return l.Type(), nil
	}
	t := UintType(DefaultWidth)
	if want != nil && want.IsInteger() {
		t = want
	}
	var max uint64
	switch {
	case t.IsSigned() && negated:
		max = uint64(1) << (t.Width - 1)
	case t.IsSigned():
		max = (uint64(1) << (t.Width - 1)) - 1
	case t.Width == 64:
		max = ^uint64(0)
	default:
		max = (uint64(1) << t.Width) - 1
	}
	if l.Value > max {
		return nil, &TypeError{Kind: TypeMismatch, Line: l.Pos.Line, Col: l.Pos.Col,
			Msg: fmt.Sprintf("literal %s does not fit in %s", l.Text, t)}
	}
	l.setType(t)
	return t, nil
}

func (c *Checker) checkBinary(b *BinaryExpr, want *Type) (*Type, error) {
	switch b.Op {
	case PLUS, MINUS, STAR, SLASH, PERCENT:
		var aw *Type
		if want != nil && want.IsInteger() {
			aw = want
		}
		lt, err := c.checkValueExpr(b.Left, aw)
		if err != nil {
			return nil, err
		}
		rt, err := c.checkValueExpr(b.Right, lt)
		if err != nil {
			return nil, err
		}
		if !lt.IsInteger() || !rt.IsInteger() {
			return nil, &TypeError{Kind: TypeMismatch, Line: b.Pos.Line, Col: b.Pos.Col,
				Msg: fmt.Sprintf("operator %s needs integers, got %s and %s", b.Op, lt, rt)}
		}
		if !lt.Equal(rt) {
			return nil, c.mismatch(b.Pos, lt, rt)
		}
		b.setType(lt)
		return lt, nil

	case EQUALS, NOT_EQ, LESS, LESS_EQ, GREATER, GREATER_EQ:
		lt, err := c.checkValueExpr(b.Left, nil)
		if err != nil {
			return nil, err
		}
		rt, err := c.checkValueExpr(b.Right, lt)
		if err != nil {
			return nil, err
		}
		if !lt.Equal(rt) {
			return nil, c.mismatch(b.Pos, lt, rt)
		}
		ordered := b.Op != EQUALS && b.Op != NOT_EQ
		if ordered && !lt.IsInteger() {
			return nil, &TypeError{Kind: TypeMismatch, Line: b.Pos.Line, Col: b.Pos.Col,
				Msg: fmt.Sprintf("operator %s needs integers, got %s", b.Op, lt)}
		}
		if !ordered && !lt.IsInteger() && lt.Kind != KindBytes32 {
			return nil, &TypeError{Kind: TypeMismatch, Line: b.Pos.Line, Col: b.Pos.Col,
				Msg: fmt.Sprintf("operator %s is not defined on %s", b.Op, lt)}
		}
		b.setType(UintType(DefaultWidth))
		return b.Type(), nil

	default:
		return nil, &InternalError{Msg: fmt.Sprintf("unhandled binary operator %s", b.Op)}
	}
}

func (c *Checker) checkCall(call *CallExpr) (*Type, error) {
	sym, ok := c.syms.Lookup(call.Name)
	if !ok {
		return nil, &TypeError{Kind: UndefinedSymbol, Line: call.Pos.Line, Col: call.Pos.Col,
			Msg: fmt.Sprintf("undefined function %q", call.Name)}
	}
	if sym.Kind != SymFunc {
		return nil, &TypeError{Kind: TypeMismatch, Line: call.Pos.Line, Col: call.Pos.Col,
			Msg: fmt.Sprintf("%q is not a function", call.Name)}
	}
	sig := sym.Type
	if len(call.Args) != len(sig.Params) {
		return nil, &TypeError{Kind: ArityMismatch, Line: call.Pos.Line, Col: call.Pos.Col,
			Msg: fmt.Sprintf("%q takes %d arguments, got %d", call.Name, len(sig.Params), len(call.Args))}
	}
	for i, arg := range call.Args {
		at, err := c.checkValueExpr(arg, sig.Params[i])
		if err != nil {
			return nil, err
		}
		if !at.AssignableTo(sig.Params[i]) {
			return nil, c.mismatch(arg.ExprPos(), sig.Params[i], at)
		}
	}
	call.Extern = sym.Extern
	call.setType(sig.Ret)
	return sig.Ret, nil
}

func (c *Checker) checkOption(o *OptionExpr, want *Type) (*Type, error) {
	if !o.Some {
		if want == nil || want.Kind != KindOption {
			return nil, &TypeError{Kind: InvalidGeneric, Line: o.Pos.Line, Col: o.Pos.Col,
				Msg: "cannot infer the payload type of None here"}
		}
		o.setType(want)
		return want, nil
	}
	var innerWant *Type
	if want != nil && want.Kind == KindOption {
		innerWant = want.Inner
	}
	it, err := c.checkValueExpr(o.Inner, innerWant)
	if err != nil {
		return nil, err
	}
	if it.Kind == KindNever {
		return nil, &TypeError{Kind: InvalidGeneric, Line: o.Pos.Line, Col: o.Pos.Col,
			Msg: "Some payload must be a value"}
	}
	t := OptionOf(it)
	o.setType(t)
	return t, nil
}

func (c *Checker) checkStructLit(sl *StructLit) (*Type, error) {
	typ, ok := c.syms.LookupStruct(sl.Name)
	if !ok {
		return nil, &TypeError{Kind: UndefinedSymbol, Line: sl.Pos.Line, Col: sl.Pos.Col,
			Msg: fmt.Sprintf("unknown struct %q", sl.Name)}
	}
	if len(sl.Fields) != len(typ.Fields) {
		return nil, &TypeError{Kind: ArityMismatch, Line: sl.Pos.Line, Col: sl.Pos.Col,
			Msg: fmt.Sprintf("%s has %d fields, literal gives %d", sl.Name, len(typ.Fields), len(sl.Fields))}
	}
	// Initializers follow declaration order so lowering can push them
	// straight through.
	for i, f := range sl.Fields {
		decl := typ.Fields[i]
		if f.Name != decl.Name {
			return nil, &TypeError{Kind: TypeMismatch, Line: sl.Pos.Line, Col: sl.Pos.Col,
				Msg: fmt.Sprintf("field %d of %s must be %q, got %q", i, sl.Name, decl.Name, f.Name)}
		}
		ft, err := c.checkValueExpr(f.Value, decl.Type)
		if err != nil {
			return nil, err
		}
		if !ft.AssignableTo(decl.Type) {
			return nil, c.mismatch(f.Value.ExprPos(), decl.Type, ft)
		}
	}
	sl.setType(typ)
	return typ, nil
}

func (c *Checker) checkTupleLit(tl *TupleLit, want *Type) (*Type, error) {
	var wants []*Type
	if want != nil && want.Kind == KindTuple && len(want.Elems) == len(tl.Elems) {
		wants = want.Elems
	}
	elems := make([]*Type, len(tl.Elems))
	for i, e := range tl.Elems {
		var w *Type
		if wants != nil {
			w = wants[i]
		}
		t, err := c.checkValueExpr(e, w)
		if err != nil {
			return nil, err
		}
		elems[i] = t
	}
	t := TupleOf(elems...)
	tl.setType(t)
	return t, nil
}

// checkField resolves a struct field or tuple position access and records
// the member's slot range. When the base is not a plain local read the
// generator spills it, so a temp range is reserved here.
func (c *Checker) checkField(f *FieldExpr) (*Type, error) {
	bt, err := c.checkValueExpr(f.X, nil)
	if err != nil {
		return nil, err
	}
	var mt *Type
	offset := 0
	switch bt.Kind {
	case KindStruct:
		for _, fld := range bt.Fields {
			if fld.Name == f.Name {
				mt = fld.Type
				break
			}
			offset += fld.Type.Slots()
		}
		if mt == nil {
			return nil, &TypeError{Kind: UndefinedSymbol, Line: f.Pos.Line, Col: f.Pos.Col,
				Msg: fmt.Sprintf("%s has no field %q", bt.Name, f.Name)}
		}
	case KindTuple:
		idx, convErr := strconv.Atoi(f.Name)
		if convErr != nil || idx < 0 || idx >= len(bt.Elems) {
			return nil, &TypeError{Kind: TypeMismatch, Line: f.Pos.Line, Col: f.Pos.Col,
				Msg: fmt.Sprintf("tuple %s has no element %q", bt, f.Name)}
		}
		for i := 0; i < idx; i++ {
			offset += bt.Elems[i].Slots()
		}
		mt = bt.Elems[idx]
	default:
		return nil, &TypeError{Kind: TypeMismatch, Line: f.Pos.Line, Col: f.Pos.Col,
			Msg: fmt.Sprintf("%s has no members", bt)}
	}
	f.SlotOffset = offset
	f.SlotLen = mt.Slots()
	f.TempSlot = -1
	if _, isIdent := f.X.(*Ident); !isIdent {
		f.TempSlot = c.syms.AllocTemp(bt.Slots())
	}
	f.setType(mt)
	return mt, nil
}

func (c *Checker) checkIfExpr(ie *IfExpr, want *Type) (*Type, error) {
	ct, err := c.checkValueExpr(ie.Cond, nil)
	if err != nil {
		return nil, err
	}
	if !ct.IsInteger() {
		return nil, &TypeError{Kind: TypeMismatch, Line: ie.Pos.Line, Col: ie.Pos.Col,
			Msg: fmt.Sprintf("condition must be an integer, got %s", ct)}
	}
	tt, err := c.checkValueExpr(ie.Then, want)
	if err != nil {
		return nil, err
	}
	ew := want
	if ew == nil && tt.Kind != KindNever {
		ew = tt
	}
	et, err := c.checkValueExpr(ie.Else, ew)
	if err != nil {
		return nil, err
	}
	var result *Type
	switch {
	case tt.Kind == KindNever:
		result = et
	case et.Kind == KindNever:
		result = tt
	case tt.Equal(et):
		result = tt
	default:
		return nil, c.mismatch(ie.Pos, tt, et)
	}
	ie.setType(result)
	return result, nil
}

func (c *Checker) mismatch(pos Pos, want, got *Type) error {
	return &TypeError{Kind: TypeMismatch, Line: pos.Line, Col: pos.Col,
		Msg: fmt.Sprintf("expected %s, got %s", want, got)}
}
