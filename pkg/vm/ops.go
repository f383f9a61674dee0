package vm

import (
	"encoding/binary"
	"fmt"
)

// Opcode identifies one stack-machine instruction.
type Opcode uint8

const (
	OpNOP   Opcode = 0x00
	OpPUSH  Opcode = 0x01 // push immediate operand (zero-extended to a word)
	OpPUSHC Opcode = 0x02 // push constant-pool entry; operand is the pool index
	OpPOP   Opcode = 0x03 // discard the top of the operand stack
	OpDUP   Opcode = 0x04 // duplicate the top of the operand stack
	OpLOAD  Opcode = 0x05 // push local slot; operand is the slot index
	OpSTORE Opcode = 0x06 // pop into local slot; operand is the slot index
	OpENTER Opcode = 0x07 // function prologue; operand packs arg/total slot counts

	OpADD Opcode = 0x08 // wrapping add at the operand width
	OpSUB Opcode = 0x09 // wrapping subtract
	OpMUL Opcode = 0x0A // wrapping multiply
	OpDIV Opcode = 0x0B // divide; traps on zero divisor
	OpMOD Opcode = 0x0C // remainder; traps on zero divisor

	OpEQ Opcode = 0x0D // full-value equality, pushes 1 or 0
	OpNE Opcode = 0x0E
	OpLT Opcode = 0x0F // ordered compares honour the width/sign operand
	OpLE Opcode = 0x10
	OpGT Opcode = 0x11
	OpGE Opcode = 0x12

	OpJMP  Opcode = 0x13 // unconditional; operand is a signed displacement
	OpJZ   Opcode = 0x14 // pop condition, jump when zero
	OpJNZ  Opcode = 0x15 // pop condition, jump when nonzero
	OpCALL Opcode = 0x16 // push frame, jump by signed displacement
	OpRET  Opcode = 0x17 // pop frame; operand is the result slot count
	OpTRAP Opcode = 0x18 // non-recoverable abort
	OpCONV Opcode = 0x19 // integer cast; reinterpret at the operand width/sign
)

var opcodeNames = map[Opcode]string{
	OpNOP:   "NOP",
	OpPUSH:  "PUSH",
	OpPUSHC: "PUSHC",
	OpPOP:   "POP",
	OpDUP:   "DUP",
	OpLOAD:  "LOAD",
	OpSTORE: "STORE",
	OpENTER: "ENTER",
	OpADD:   "ADD",
	OpSUB:   "SUB",
	OpMUL:   "MUL",
	OpDIV:   "DIV",
	OpMOD:   "MOD",
	OpEQ:    "EQ",
	OpNE:    "NE",
	OpLT:    "LT",
	OpLE:    "LE",
	OpGT:    "GT",
	OpGE:    "GE",
	OpJMP:   "JMP",
	OpJZ:    "JZ",
	OpJNZ:   "JNZ",
	OpCALL:  "CALL",
	OpRET:   "RET",
	OpTRAP:  "TRAP",
	OpCONV:  "CONV",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(0x%02X)", uint8(op))
}

// Instruction is one fixed-width stack-machine instruction: a single opcode
// byte plus a 32-bit operand. Control-transfer operands (JMP, JZ, JNZ, CALL)
// are signed displacements relative to the next instruction, so concatenating
// code segments never invalidates resolved transfers.
type Instruction struct {
	Op      Opcode
	Operand uint32
}

// InstructionSize is the encoded size of every instruction in bytes.
const InstructionSize = 5

// Disp returns the operand reinterpreted as a signed displacement.
func (in Instruction) Disp() int32 {
	return int32(in.Operand)
}

func (in Instruction) String() string {
	switch in.Op {
	case OpNOP, OpPOP, OpDUP, OpTRAP:
		return in.Op.String()
	case OpJMP, OpJZ, OpJNZ, OpCALL:
		return fmt.Sprintf("%s %+d", in.Op, in.Disp())
	case OpADD, OpSUB, OpMUL, OpDIV, OpMOD, OpLT, OpLE, OpGT, OpGE, OpCONV:
		width, signed := UnpackArith(in.Operand)
		if signed {
			return fmt.Sprintf("%s.s%d", in.Op, width)
		}
		return fmt.Sprintf("%s.u%d", in.Op, width)
	case OpENTER:
		args, total := UnpackEnter(in.Operand)
		return fmt.Sprintf("ENTER args=%d locals=%d", args, total)
	default:
		return fmt.Sprintf("%s %d", in.Op, in.Operand)
	}
}

// PackArith encodes an arithmetic/compare operand: bits 0-7 hold the width in
// bits (8, 16, 32 or 64), bit 8 marks a signed operation.
func PackArith(width uint, signed bool) uint32 {
	v := uint32(width & 0xFF)
	if signed {
		v |= 1 << 8
	}
	return v
}

// UnpackArith is the inverse of PackArith.
func UnpackArith(operand uint32) (width uint, signed bool) {
	return uint(operand & 0xFF), operand&(1<<8) != 0
}

// PackEnter encodes a function prologue operand: the low 16 bits hold the
// number of argument slots the caller pushed, the high 16 bits the total
// local slot count (arguments included).
func PackEnter(argSlots, totalSlots int) uint32 {
	return uint32(argSlots&0xFFFF) | uint32(totalSlots&0xFFFF)<<16
}

// UnpackEnter is the inverse of PackEnter.
func UnpackEnter(operand uint32) (argSlots, totalSlots int) {
	return int(operand & 0xFFFF), int(operand >> 16)
}

// EncodeInstruction appends the 5-byte little-endian encoding of in to dst.
func EncodeInstruction(dst []byte, in Instruction) []byte {
	var buf [InstructionSize]byte
	buf[0] = byte(in.Op)
	binary.LittleEndian.PutUint32(buf[1:], in.Operand)
	return append(dst, buf[:]...)
}

// DecodeInstruction reads one instruction from the start of src.
func DecodeInstruction(src []byte) (Instruction, error) {
	if len(src) < InstructionSize {
		return Instruction{}, fmt.Errorf("truncated instruction: %d bytes", len(src))
	}
	return Instruction{
		Op:      Opcode(src[0]),
		Operand: binary.LittleEndian.Uint32(src[1:InstructionSize]),
	}, nil
}

// EncodeCode serializes a full instruction sequence.
func EncodeCode(code []Instruction) []byte {
	out := make([]byte, 0, len(code)*InstructionSize)
	for _, in := range code {
		out = EncodeInstruction(out, in)
	}
	return out
}

// DecodeCode is the inverse of EncodeCode.
func DecodeCode(data []byte) ([]Instruction, error) {
	if len(data)%InstructionSize != 0 {
		return nil, fmt.Errorf("code segment length %d is not a multiple of %d", len(data), InstructionSize)
	}
	code := make([]Instruction, 0, len(data)/InstructionSize)
	for off := 0; off < len(data); off += InstructionSize {
		in, err := DecodeInstruction(data[off:])
		if err != nil {
			return nil, err
		}
		code = append(code, in)
	}
	return code, nil
}
