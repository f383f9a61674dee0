package vm

import "fmt"

// Value is one operand-stack slot. Integer values live in Word; bytes32
// constants carry their full 32 bytes and set IsBytes.
type Value struct {
	Word    uint64
	Bytes   [32]byte
	IsBytes bool
}

// Word64 wraps an integer into a stack value.
func Word64(w uint64) Value {
	return Value{Word: w}
}

// Bytes32 wraps a 32-byte constant into a stack value.
func Bytes32(b [32]byte) Value {
	return Value{Bytes: b, IsBytes: true}
}

// Equal reports full-value equality: kind, word and byte content all match.
func (v Value) Equal(other Value) bool {
	return v == other
}

func (v Value) String() string {
	if v.IsBytes {
		return fmt.Sprintf("bytes32(0x%x)", v.Bytes)
	}
	return fmt.Sprintf("%d", v.Word)
}

// widthMask returns the mask for a width in bits. Width 64 masks nothing.
func widthMask(width uint) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << width) - 1
}

// wrap truncates w to width bits.
func wrap(w uint64, width uint) uint64 {
	return w & widthMask(width)
}

// signExtend reinterprets the low width bits of w as a signed value and
// returns its 64-bit two's-complement form.
func signExtend(w uint64, width uint) int64 {
	if width >= 64 {
		return int64(w)
	}
	w = wrap(w, width)
	signBit := uint64(1) << (width - 1)
	if w&signBit != 0 {
		return int64(w | ^widthMask(width))
	}
	return int64(w)
}
