package compiler

import (
	"fmt"
	"math"

	"minic/pkg/obj"
	"minic/pkg/vm"
)

// generator lowers a checked unit to stack-machine code. Values occupy
// consecutive stack slots with the first slot deepest, matching the local
// slot layout, so loads and stores walk the range in opposite directions.
type generator struct {
	code   []vm.Instruction
	pool   []vm.Value
	poolIx map[vm.Value]uint32
	relocs []obj.Reloc

	// Intra-unit call sites, patched once every function offset is known.
	funcOffsets map[string]uint32
	callSites   []callSite

	fn *FuncInfo
}

type callSite struct {
	at   uint32
	name string
}

// label is a forward jump target: sites collect unresolved transfer
// instructions until bind fixes their displacements.
type label struct {
	sites []int
	pos   int
	bound bool
}

// Generate lowers every function body in unit and assembles a relocatable
// module named name. Calls to functions declared in the same unit are
// resolved here; calls to extern declarations become relocation entries.
func Generate(unit *UnitInfo, name string) (*obj.Module, error) {
	g := &generator{
		poolIx:      make(map[vm.Value]uint32),
		funcOffsets: make(map[string]uint32),
	}

	var symbols []obj.Symbol
	for _, info := range unit.Functions {
		if info.Decl.Extern {
			continue
		}
		offset := uint32(len(g.code))
		g.funcOffsets[info.Decl.Name] = offset
		if info.Decl.Public {
			symbols = append(symbols, obj.Symbol{
				Name:   info.Decl.Name,
				Offset: offset,
				Sig:    info.Sig.String(),
			})
		}
		if err := g.genFunc(info); err != nil {
			return nil, err
		}
	}

	for _, site := range g.callSites {
		target, ok := g.funcOffsets[site.name]
		if !ok {
			return nil, &InternalError{Msg: fmt.Sprintf("call to %q survived checking unresolved", site.name)}
		}
		g.code[site.at].Operand = uint32(int32(target) - int32(site.at+1))
	}

	m := &obj.Module{
		Name:    name,
		Symbols: symbols,
		Code:    g.code,
		Relocs:  g.relocs,
		Pool:    g.pool,
	}
	m.Normalize()
	return m, nil
}

func (g *generator) emit(op vm.Opcode, operand uint32) int {
	g.code = append(g.code, vm.Instruction{Op: op, Operand: operand})
	return len(g.code) - 1
}

func (g *generator) newLabel() *label { return &label{} }

// jumpTo emits a transfer instruction aimed at l, patched when l is bound.
func (g *generator) jumpTo(op vm.Opcode, l *label) {
	at := g.emit(op, 0)
	if l.bound {
		g.code[at].Operand = uint32(int32(l.pos) - int32(at+1))
		return
	}
	l.sites = append(l.sites, at)
}

// bind fixes l at the current emission point and patches pending sites.
func (g *generator) bind(l *label) {
	l.pos = len(g.code)
	l.bound = true
	for _, at := range l.sites {
		g.code[at].Operand = uint32(int32(l.pos) - int32(at+1))
	}
	l.sites = nil
}

// constant interns v into the pool and pushes it.
func (g *generator) constant(v vm.Value) {
	idx, ok := g.poolIx[v]
	if !ok {
		idx = uint32(len(g.pool))
		g.pool = append(g.pool, v)
		g.poolIx[v] = idx
	}
	g.emit(vm.OpPUSHC, idx)
}

// pushWord pushes an integer, via the pool when it exceeds the immediate
// operand range.
func (g *generator) pushWord(w uint64) {
	if w <= math.MaxUint32 {
		g.emit(vm.OpPUSH, uint32(w))
		return
	}
	g.constant(vm.Word64(w))
}

// loadSlots pushes a slot range first-slot-first, leaving the first slot
// deepest on the stack.
func (g *generator) loadSlots(first, n int) {
	for i := 0; i < n; i++ {
		g.emit(vm.OpLOAD, uint32(first+i))
	}
}

// storeSlots pops a value of n slots into locals, last slot first since the
// last slot sits on top.
func (g *generator) storeSlots(first, n int) {
	for i := n - 1; i >= 0; i-- {
		g.emit(vm.OpSTORE, uint32(first+i))
	}
}

func (g *generator) genFunc(info *FuncInfo) error {
	g.fn = info
	g.emit(vm.OpENTER, vm.PackEnter(info.ParamSlots, info.LocalSlots))
	if err := g.genBlock(info.Decl.Body); err != nil {
		return err
	}
	if info.Sig.Ret == nil {
		g.emit(vm.OpRET, 0)
	} else {
		// Every path returns; this backstop is unreachable.
		g.emit(vm.OpTRAP, 0)
	}
	return nil
}

func (g *generator) genBlock(stmts []Stmt) error {
	for _, st := range stmts {
		if err := g.genStmt(st); err != nil {
			return err
		}
	}
	return nil
}

func (g *generator) genStmt(st Stmt) error {
	switch s := st.(type) {
	case *LetStmt:
		if err := g.genExpr(s.Init); err != nil {
			return err
		}
		g.storeSlots(s.Slot, s.BindType.Slots())
		return nil

	case *IfStmt:
		if err := g.genExpr(s.Cond); err != nil {
			return err
		}
		elseL, endL := g.newLabel(), g.newLabel()
		g.jumpTo(vm.OpJZ, elseL)
		if err := g.genBlock(s.Then); err != nil {
			return err
		}
		if s.Else == nil {
			g.bind(elseL)
			return nil
		}
		g.jumpTo(vm.OpJMP, endL)
		g.bind(elseL)
		if err := g.genBlock(s.Else); err != nil {
			return err
		}
		g.bind(endL)
		return nil

	case *IfLetStmt:
		// The option lands as [tag, payload...] with the tag deepest. The
		// payload moves into the binding's slots either way; the tag then
		// surfaces and selects the branch.
		if err := g.genExpr(s.X); err != nil {
			return err
		}
		g.storeSlots(s.Slot, s.PayloadType.Slots())
		elseL, endL := g.newLabel(), g.newLabel()
		g.jumpTo(vm.OpJZ, elseL)
		if err := g.genBlock(s.Then); err != nil {
			return err
		}
		if s.Else == nil {
			g.bind(elseL)
			return nil
		}
		g.jumpTo(vm.OpJMP, endL)
		g.bind(elseL)
		if err := g.genBlock(s.Else); err != nil {
			return err
		}
		g.bind(endL)
		return nil

	case *ReturnStmt:
		n := 0
		if s.Value != nil {
			if err := g.genExpr(s.Value); err != nil {
				return err
			}
			n = g.fn.RetSlots()
		}
		g.emit(vm.OpRET, uint32(n))
		return nil

	case *ErrorStmt:
		g.emit(vm.OpTRAP, 0)
		return nil

	case *ExprStmt:
		if err := g.genExpr(s.X); err != nil {
			return err
		}
		if t := s.X.Type(); t != nil {
			for i := 0; i < t.Slots(); i++ {
				g.emit(vm.OpPOP, 0)
			}
		}
		return nil

	default:
		return &InternalError{Msg: fmt.Sprintf("unhandled statement %T", st)}
	}
}

func (g *generator) genExpr(e Expr) error {
	switch x := e.(type) {
	case *Literal:
		if x.IsBytes {
			g.constant(vm.Bytes32(x.Bytes))
			return nil
		}
		g.pushWord(x.Value)
		return nil

	case *Ident:
		g.loadSlots(x.Slot, x.Type().Slots())
		return nil

	case *BinaryExpr:
		return g.genBinary(x)

	case *UnaryExpr:
		t := x.Type()
		g.pushWord(0)
		if err := g.genExpr(x.Right); err != nil {
			return err
		}
		g.emit(vm.OpSUB, vm.PackArith(t.Width, t.IsSigned()))
		return nil

	case *CallExpr:
		for _, arg := range x.Args {
			if err := g.genExpr(arg); err != nil {
				return err
			}
		}
		at := g.emit(vm.OpCALL, 0)
		if x.Extern {
			g.relocs = append(g.relocs, obj.Reloc{Offset: uint32(at), Symbol: x.Name})
		} else {
			g.callSites = append(g.callSites, callSite{at: uint32(at), name: x.Name})
		}
		return nil

	case *CastExpr:
		if err := g.genExpr(x.X); err != nil {
			return err
		}
		t := x.Type()
		g.emit(vm.OpCONV, vm.PackArith(t.Width, t.IsSigned()))
		return nil

	case *OptionExpr:
		if x.Some {
			g.pushWord(1)
			return g.genExpr(x.Inner)
		}
		// None carries a zeroed payload so every value of the option type
		// has the same slot count.
		g.pushWord(0)
		for i := 0; i < x.Type().Inner.Slots(); i++ {
			g.pushWord(0)
		}
		return nil

	case *StructLit:
		for _, f := range x.Fields {
			if err := g.genExpr(f.Value); err != nil {
				return err
			}
		}
		return nil

	case *TupleLit:
		for _, el := range x.Elems {
			if err := g.genExpr(el); err != nil {
				return err
			}
		}
		return nil

	case *FieldExpr:
		if base, ok := x.X.(*Ident); ok {
			g.loadSlots(base.Slot+x.SlotOffset, x.SlotLen)
			return nil
		}
		// Composite base: spill the whole value into the temp range, then
		// load just the member's slots back.
		if err := g.genExpr(x.X); err != nil {
			return err
		}
		g.storeSlots(x.TempSlot, x.X.Type().Slots())
		g.loadSlots(x.TempSlot+x.SlotOffset, x.SlotLen)
		return nil

	case *IfExpr:
		if err := g.genExpr(x.Cond); err != nil {
			return err
		}
		elseL, endL := g.newLabel(), g.newLabel()
		g.jumpTo(vm.OpJZ, elseL)
		if err := g.genExpr(x.Then); err != nil {
			return err
		}
		g.jumpTo(vm.OpJMP, endL)
		g.bind(elseL)
		if err := g.genExpr(x.Else); err != nil {
			return err
		}
		g.bind(endL)
		return nil

	case *ErrorExpr:
		g.emit(vm.OpTRAP, 0)
		return nil

	default:
		return &InternalError{Msg: fmt.Sprintf("unhandled expression %T", e)}
	}
}

var binaryOps = map[TokenType]vm.Opcode{
	PLUS:       vm.OpADD,
	MINUS:      vm.OpSUB,
	STAR:       vm.OpMUL,
	SLASH:      vm.OpDIV,
	PERCENT:    vm.OpMOD,
	EQUALS:     vm.OpEQ,
	NOT_EQ:     vm.OpNE,
	LESS:       vm.OpLT,
	LESS_EQ:    vm.OpLE,
	GREATER:    vm.OpGT,
	GREATER_EQ: vm.OpGE,
}

func (g *generator) genBinary(b *BinaryExpr) error {
	if err := g.genExpr(b.Left); err != nil {
		return err
	}
	if err := g.genExpr(b.Right); err != nil {
		return err
	}
	op, ok := binaryOps[b.Op]
	if !ok {
		return &InternalError{Msg: fmt.Sprintf("unhandled binary operator %s", b.Op)}
	}
	switch op {
	case vm.OpEQ, vm.OpNE:
		g.emit(op, 0)
	default:
		// Width and sign come from the operands; comparisons yield a plain
		// word regardless.
		ot := b.Left.Type()
		g.emit(op, vm.PackArith(ot.Width, ot.IsSigned()))
	}
	return nil
}
