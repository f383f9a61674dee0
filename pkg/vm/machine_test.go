package vm

import (
	"errors"
	"testing"
)

// run executes code with no pool and no arguments and expects success.
func run(t *testing.T, code []Instruction, args ...Value) []Value {
	t.Helper()
	results, err := New(code, nil).Run(0, args)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	return results
}

func u64(op Opcode) Instruction { return Instruction{Op: op, Operand: PackArith(64, false)} }
func s64(op Opcode) Instruction { return Instruction{Op: op, Operand: PackArith(64, true)} }
func width8(op Opcode) Instruction {
	return Instruction{Op: op, Operand: PackArith(8, false)}
}

// sword widens a signed value onto a 64-bit word.
func sword(x int64) uint64 { return uint64(x) }

// disp packs a signed displacement into an operand.
func disp(d int32) uint32 { return uint32(d) }

func TestArithmetic(t *testing.T) {
	results := run(t, []Instruction{
		{Op: OpPUSH, Operand: 2},
		{Op: OpPUSH, Operand: 3},
		u64(OpADD),
		{Op: OpRET, Operand: 1},
	})
	if len(results) != 1 || results[0].Word != 5 {
		t.Errorf("2+3 gave %v", results)
	}
}

func TestNarrowAddWraps(t *testing.T) {
	results := run(t, []Instruction{
		{Op: OpPUSH, Operand: 200},
		{Op: OpPUSH, Operand: 100},
		width8(OpADD),
		{Op: OpRET, Operand: 1},
	})
	if results[0].Word != 44 {
		t.Errorf("200+100 at width 8 = %d, want 44", results[0].Word)
	}
}

func TestSignedCompare(t *testing.T) {
	// 0-1 yields -1 in canonical form; signed compare puts it below 1,
	// unsigned compare does not.
	neg1 := []Instruction{
		{Op: OpPUSH, Operand: 0},
		{Op: OpPUSH, Operand: 1},
		s64(OpSUB),
		{Op: OpPUSH, Operand: 1},
	}
	signed := append(append([]Instruction{}, neg1...), s64(OpLT), Instruction{Op: OpRET, Operand: 1})
	if got := run(t, signed)[0].Word; got != 1 {
		t.Errorf("-1 < 1 signed = %d, want 1", got)
	}
	unsigned := append(append([]Instruction{}, neg1...), u64(OpLT), Instruction{Op: OpRET, Operand: 1})
	if got := run(t, unsigned)[0].Word; got != 0 {
		t.Errorf("-1 < 1 unsigned = %d, want 0", got)
	}
}

func TestSignedDivision(t *testing.T) {
	// -7 / 2 truncates toward zero.
	results := run(t, []Instruction{
		{Op: OpPUSH, Operand: 0},
		{Op: OpPUSH, Operand: 7},
		s64(OpSUB),
		{Op: OpPUSH, Operand: 2},
		s64(OpDIV),
		{Op: OpRET, Operand: 1},
	})
	if got := int64(results[0].Word); got != -3 {
		t.Errorf("-7/2 = %d, want -3", got)
	}
}

func TestDivideByZero(t *testing.T) {
	_, err := New([]Instruction{
		{Op: OpPUSH, Operand: 1},
		{Op: OpPUSH, Operand: 0},
		u64(OpDIV),
		{Op: OpRET, Operand: 1},
	}, nil).Run(0, nil)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
}

func TestTrap(t *testing.T) {
	_, err := New([]Instruction{
		{Op: OpNOP},
		{Op: OpTRAP},
	}, nil).Run(0, nil)
	var trap *TrapError
	if !errors.As(err, &trap) {
		t.Fatalf("expected TrapError, got %v", err)
	}
	if trap.PC != 1 {
		t.Errorf("trap PC = %d, want 1", trap.PC)
	}
}

func TestCallReturn(t *testing.T) {
	// main: push 7, call square, return its result.
	// square: one arg slot, returns arg*arg.
	code := []Instruction{
		{Op: OpPUSH, Operand: 7},
		{Op: OpCALL, Operand: disp(1)}, // to index 3
		{Op: OpRET, Operand: 1},
		{Op: OpENTER, Operand: PackEnter(1, 1)},
		{Op: OpLOAD, Operand: 0},
		{Op: OpLOAD, Operand: 0},
		u64(OpMUL),
		{Op: OpRET, Operand: 1},
	}
	if got := run(t, code)[0].Word; got != 49 {
		t.Errorf("square(7) = %d, want 49", got)
	}
}

func TestEnterCopiesArguments(t *testing.T) {
	// Entry function takes two slots and returns them swapped via locals.
	code := []Instruction{
		{Op: OpENTER, Operand: PackEnter(2, 2)},
		{Op: OpLOAD, Operand: 1},
		{Op: OpLOAD, Operand: 0},
		{Op: OpRET, Operand: 2},
	}
	results := run(t, code, Word64(10), Word64(20))
	if results[0].Word != 20 || results[1].Word != 10 {
		t.Errorf("swap(10,20) gave %v", results)
	}
}

func TestConditionalJumps(t *testing.T) {
	// Returns 1 when the argument is zero, 2 otherwise.
	code := []Instruction{
		{Op: OpENTER, Operand: PackEnter(1, 1)},
		{Op: OpLOAD, Operand: 0},
		{Op: OpJNZ, Operand: disp(2)}, // to index 5
		{Op: OpPUSH, Operand: 1},
		{Op: OpRET, Operand: 1},
		{Op: OpPUSH, Operand: 2},
		{Op: OpRET, Operand: 1},
	}
	if got := run(t, code, Word64(0))[0].Word; got != 1 {
		t.Errorf("zero arg gave %d, want 1", got)
	}
	if got := run(t, code, Word64(9))[0].Word; got != 2 {
		t.Errorf("nonzero arg gave %d, want 2", got)
	}
}

func TestConv(t *testing.T) {
	tests := []struct {
		name    string
		operand uint32
		in      uint64
		want    uint64
	}{
		{"truncate to u8", PackArith(8, false), 300, 44},
		{"sign extend s8", PackArith(8, true), 200, sword(-56)},
		{"identity u64", PackArith(64, false), 1 << 40, 1 << 40},
	}
	for _, tt := range tests {
		code := []Instruction{
			{Op: OpENTER, Operand: PackEnter(1, 1)},
			{Op: OpLOAD, Operand: 0},
			{Op: OpCONV, Operand: tt.operand},
			{Op: OpRET, Operand: 1},
		}
		if got := run(t, code, Word64(tt.in))[0].Word; got != tt.want {
			t.Errorf("%s: got %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestPoolConstants(t *testing.T) {
	var b [32]byte
	b[31] = 0xAB
	pool := []Value{Bytes32(b), Word64(1 << 50)}
	code := []Instruction{
		{Op: OpPUSHC, Operand: 0},
		{Op: OpPUSHC, Operand: 0},
		{Op: OpEQ},
		{Op: OpRET, Operand: 1},
	}
	results, err := New(code, pool).Run(0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Word != 1 {
		t.Error("identical bytes32 constants compared unequal")
	}
}

func TestBadPoolIndex(t *testing.T) {
	_, err := New([]Instruction{{Op: OpPUSHC, Operand: 5}}, nil).Run(0, nil)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
}

func TestStepLimit(t *testing.T) {
	m := New([]Instruction{{Op: OpJMP, Operand: disp(-1)}}, nil)
	m.MaxSteps = 1000
	if _, err := m.Run(0, nil); err == nil {
		t.Fatal("expected step limit error")
	}
}

func TestStackUnderflow(t *testing.T) {
	_, err := New([]Instruction{u64(OpADD)}, nil).Run(0, nil)
	if err == nil {
		t.Fatal("expected underflow error")
	}
}

func TestSignedOverflowQuirk(t *testing.T) {
	// The most negative value divided by -1 wraps instead of faulting.
	minInt := uint64(1) << 63
	code := []Instruction{
		{Op: OpENTER, Operand: PackEnter(2, 2)},
		{Op: OpLOAD, Operand: 0},
		{Op: OpLOAD, Operand: 1},
		s64(OpDIV),
		{Op: OpRET, Operand: 1},
	}
	got := run(t, code, Word64(minInt), Word64(sword(-1)))[0].Word
	if got != minInt {
		t.Errorf("min/-1 = %#x, want %#x", got, minInt)
	}
}
