package vm

import "testing"

func TestEncodeDecodeInstruction(t *testing.T) {
	tests := []Instruction{
		{Op: OpNOP},
		{Op: OpPUSH, Operand: 42},
		{Op: OpPUSH, Operand: 0xFFFFFFFF},
		{Op: OpJMP, Operand: disp(-7)},
		{Op: OpENTER, Operand: PackEnter(3, 9)},
		{Op: OpADD, Operand: PackArith(8, true)},
	}
	for _, in := range tests {
		data := EncodeInstruction(nil, in)
		if len(data) != InstructionSize {
			t.Fatalf("%v encoded to %d bytes", in, len(data))
		}
		got, err := DecodeInstruction(data)
		if err != nil {
			t.Fatalf("%v: decode failed: %v", in, err)
		}
		if got != in {
			t.Errorf("roundtrip mismatch: sent %v, got %v", in, got)
		}
	}
}

func TestDecodeInstructionTruncated(t *testing.T) {
	if _, err := DecodeInstruction([]byte{byte(OpPUSH), 1, 2}); err == nil {
		t.Fatal("expected error for truncated instruction")
	}
}

func TestDecodeCodeBadLength(t *testing.T) {
	if _, err := DecodeCode(make([]byte, InstructionSize+1)); err == nil {
		t.Fatal("expected error for misaligned code segment")
	}
}

func TestPackArith(t *testing.T) {
	for _, width := range []uint{8, 16, 32, 64} {
		for _, signed := range []bool{false, true} {
			w, s := UnpackArith(PackArith(width, signed))
			if w != width || s != signed {
				t.Errorf("width %d signed %v came back as %d %v", width, signed, w, s)
			}
		}
	}
}

func TestPackEnter(t *testing.T) {
	args, total := UnpackEnter(PackEnter(2, 11))
	if args != 2 || total != 11 {
		t.Errorf("got args=%d total=%d", args, total)
	}
}

func TestDisp(t *testing.T) {
	in := Instruction{Op: OpJMP, Operand: disp(-3)}
	if in.Disp() != -3 {
		t.Errorf("Disp = %d, want -3", in.Disp())
	}
}

func TestInstructionString(t *testing.T) {
	tests := []struct {
		in   Instruction
		want string
	}{
		{Instruction{Op: OpTRAP}, "TRAP"},
		{Instruction{Op: OpJMP, Operand: disp(-2)}, "JMP -2"},
		{Instruction{Op: OpADD, Operand: PackArith(8, false)}, "ADD.u8"},
		{Instruction{Op: OpDIV, Operand: PackArith(64, true)}, "DIV.s64"},
		{Instruction{Op: OpENTER, Operand: PackEnter(1, 4)}, "ENTER args=1 locals=4"},
		{Instruction{Op: OpLOAD, Operand: 3}, "LOAD 3"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
