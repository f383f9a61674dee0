package vm

import (
	"fmt"
	"math"
)

// DefaultMaxSteps bounds a single Run call so a miscompiled loop cannot hang
// the process.
const DefaultMaxSteps = 50_000_000

// TrapError reports execution of a TRAP instruction, the lowered form of the
// source-level `error` statement. It is a normal program outcome, not a
// machine defect.
type TrapError struct {
	PC int
}

func (e *TrapError) Error() string {
	return fmt.Sprintf("trap at code offset %d", e.PC)
}

// ExecutionError reports a machine-level failure: stack underflow, a bad pool
// index, an out-of-range transfer. These indicate a defective image.
type ExecutionError struct {
	PC  int
	Msg string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution error at code offset %d: %s", e.PC, e.Msg)
}

type frame struct {
	retPC  int // -1 for the entry frame
	locals []Value
}

// Machine interprets a fully linked code segment. It owns no shared state;
// independent machines over the same image may run concurrently.
type Machine struct {
	code     []Instruction
	pool     []Value
	stack    []Value
	frames   []frame
	pc       int
	MaxSteps int
}

// New creates a machine over a resolved code segment and its constant pool.
func New(code []Instruction, pool []Value) *Machine {
	return &Machine{code: code, pool: pool, MaxSteps: DefaultMaxSteps}
}

func (m *Machine) fail(format string, args ...any) error {
	return &ExecutionError{PC: m.pc, Msg: fmt.Sprintf(format, args...)}
}

func (m *Machine) push(v Value) {
	m.stack = append(m.stack, v)
}

func (m *Machine) pop() (Value, error) {
	if len(m.stack) == 0 {
		return Value{}, m.fail("operand stack underflow")
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v, nil
}

// pop2 pops the right then the left operand of a binary instruction.
func (m *Machine) pop2() (left, right Value, err error) {
	if right, err = m.pop(); err != nil {
		return
	}
	left, err = m.pop()
	return
}

// Run executes from the entry offset with args preloaded on the operand
// stack and returns whatever the entry function's RET leaves behind.
func (m *Machine) Run(entry int, args []Value) ([]Value, error) {
	if entry < 0 || entry >= len(m.code) {
		return nil, &ExecutionError{PC: entry, Msg: "entry point outside code segment"}
	}
	m.pc = entry
	m.stack = append(m.stack[:0], args...)
	m.frames = []frame{{retPC: -1}}

	for steps := 0; ; steps++ {
		if steps >= m.MaxSteps {
			return nil, m.fail("step limit of %d exceeded", m.MaxSteps)
		}
		if m.pc < 0 || m.pc >= len(m.code) {
			return nil, m.fail("program counter outside code segment")
		}
		in := m.code[m.pc]

		switch in.Op {
		case OpNOP:
			m.pc++

		case OpPUSH:
			m.push(Word64(uint64(in.Operand)))
			m.pc++

		case OpPUSHC:
			idx := int(in.Operand)
			if idx >= len(m.pool) {
				return nil, m.fail("constant pool index %d out of range", idx)
			}
			m.push(m.pool[idx])
			m.pc++

		case OpPOP:
			if _, err := m.pop(); err != nil {
				return nil, err
			}
			m.pc++

		case OpDUP:
			if len(m.stack) == 0 {
				return nil, m.fail("operand stack underflow")
			}
			m.push(m.stack[len(m.stack)-1])
			m.pc++

		case OpLOAD:
			f := &m.frames[len(m.frames)-1]
			idx := int(in.Operand)
			if idx >= len(f.locals) {
				return nil, m.fail("local slot %d out of range", idx)
			}
			m.push(f.locals[idx])
			m.pc++

		case OpSTORE:
			f := &m.frames[len(m.frames)-1]
			idx := int(in.Operand)
			if idx >= len(f.locals) {
				return nil, m.fail("local slot %d out of range", idx)
			}
			v, err := m.pop()
			if err != nil {
				return nil, err
			}
			f.locals[idx] = v
			m.pc++

		case OpENTER:
			argSlots, totalSlots := UnpackEnter(in.Operand)
			if argSlots > len(m.stack) {
				return nil, m.fail("ENTER expects %d argument slots, stack has %d", argSlots, len(m.stack))
			}
			f := &m.frames[len(m.frames)-1]
			f.locals = make([]Value, totalSlots)
			copy(f.locals, m.stack[len(m.stack)-argSlots:])
			m.stack = m.stack[:len(m.stack)-argSlots]
			m.pc++

		case OpADD, OpSUB, OpMUL, OpDIV, OpMOD:
			if err := m.binArith(in); err != nil {
				return nil, err
			}
			m.pc++

		case OpEQ, OpNE:
			left, right, err := m.pop2()
			if err != nil {
				return nil, err
			}
			eq := left.Equal(right)
			if in.Op == OpNE {
				eq = !eq
			}
			m.push(boolWord(eq))
			m.pc++

		case OpLT, OpLE, OpGT, OpGE:
			if err := m.compare(in); err != nil {
				return nil, err
			}
			m.pc++

		case OpJMP:
			m.pc += 1 + int(in.Disp())

		case OpJZ, OpJNZ:
			cond, err := m.pop()
			if err != nil {
				return nil, err
			}
			taken := cond.Word != 0
			if in.Op == OpJZ {
				taken = !taken
			}
			if taken {
				m.pc += 1 + int(in.Disp())
			} else {
				m.pc++
			}

		case OpCALL:
			if len(m.frames) >= 1<<16 {
				return nil, m.fail("call stack depth limit exceeded")
			}
			m.frames = append(m.frames, frame{retPC: m.pc + 1})
			m.pc += 1 + int(in.Disp())

		case OpRET:
			n := int(in.Operand)
			if n > len(m.stack) {
				return nil, m.fail("RET expects %d result slots, stack has %d", n, len(m.stack))
			}
			f := m.frames[len(m.frames)-1]
			m.frames = m.frames[:len(m.frames)-1]
			if f.retPC < 0 {
				results := make([]Value, n)
				copy(results, m.stack[len(m.stack)-n:])
				return results, nil
			}
			m.pc = f.retPC

		case OpTRAP:
			return nil, &TrapError{PC: m.pc}

		case OpCONV:
			width, signed := UnpackArith(in.Operand)
			v, err := m.pop()
			if err != nil {
				return nil, err
			}
			if signed {
				m.push(Word64(uint64(signExtend(v.Word, width))))
			} else {
				m.push(Word64(wrap(v.Word, width)))
			}
			m.pc++

		default:
			return nil, m.fail("illegal opcode 0x%02X", uint8(in.Op))
		}
	}
}

func boolWord(b bool) Value {
	if b {
		return Word64(1)
	}
	return Word64(0)
}

func (m *Machine) binArith(in Instruction) error {
	width, signed := UnpackArith(in.Operand)
	left, right, err := m.pop2()
	if err != nil {
		return err
	}
	a, b := left.Word, right.Word

	var raw uint64
	switch in.Op {
	case OpADD:
		raw = a + b
	case OpSUB:
		raw = a - b
	case OpMUL:
		raw = a * b
	case OpDIV, OpMOD:
		if wrap(b, width) == 0 {
			return m.fail("division by zero")
		}
		if signed {
			sa, sb := signExtend(a, width), signExtend(b, width)
			if sa == math.MinInt64 && sb == -1 {
				// Quotient wraps to the minimum value; remainder is zero.
				if in.Op == OpDIV {
					raw = uint64(sa)
				} else {
					raw = 0
				}
			} else if in.Op == OpDIV {
				raw = uint64(sa / sb)
			} else {
				raw = uint64(sa % sb)
			}
		} else {
			ua, ub := wrap(a, width), wrap(b, width)
			if in.Op == OpDIV {
				raw = ua / ub
			} else {
				raw = ua % ub
			}
		}
	}

	if signed {
		m.push(Word64(uint64(signExtend(raw, width))))
	} else {
		m.push(Word64(wrap(raw, width)))
	}
	return nil
}

func (m *Machine) compare(in Instruction) error {
	width, signed := UnpackArith(in.Operand)
	left, right, err := m.pop2()
	if err != nil {
		return err
	}

	var lt, eq bool
	if signed {
		sa, sb := signExtend(left.Word, width), signExtend(right.Word, width)
		lt, eq = sa < sb, sa == sb
	} else {
		ua, ub := wrap(left.Word, width), wrap(right.Word, width)
		lt, eq = ua < ub, ua == ub
	}

	var result bool
	switch in.Op {
	case OpLT:
		result = lt
	case OpLE:
		result = lt || eq
	case OpGT:
		result = !lt && !eq
	case OpGE:
		result = !lt
	}
	m.push(boolWord(result))
	return nil
}
