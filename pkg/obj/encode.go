package obj

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"minic/pkg/vm"
)

// File magics. The trailing byte doubles as the format version.
var (
	moduleMagic = [4]byte{'M', 'A', 'O', 1}
	exeMagic    = [4]byte{'M', 'E', 'X', 1}
)

const maxNameLen = 1<<16 - 1

// All multi-byte fields are little-endian. Strings are a uint16 length
// followed by raw bytes. Pool values are a one-byte tag (0 word, 1 bytes32)
// followed by the payload.

func writeString(w *bytes.Buffer, s string) error {
	if len(s) > maxNameLen {
		return fmt.Errorf("string of %d bytes exceeds format limit", len(s))
	}
	var lb [2]byte
	binary.LittleEndian.PutUint16(lb[:], uint16(len(s)))
	w.Write(lb[:])
	w.WriteString(s)
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	var lb [2]byte
	if _, err := io.ReadFull(r, lb[:]); err != nil {
		return "", fmt.Errorf("truncated string length")
	}
	n := int(binary.LittleEndian.Uint16(lb[:]))
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("truncated string of %d bytes", n)
	}
	return string(buf), nil
}

func writeU32(w *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("truncated uint32")
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func writePool(w *bytes.Buffer, pool []vm.Value) {
	writeU32(w, uint32(len(pool)))
	for _, v := range pool {
		if v.IsBytes {
			w.WriteByte(1)
			w.Write(v.Bytes[:])
		} else {
			w.WriteByte(0)
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], v.Word)
			w.Write(b[:])
		}
	}
}

func readPool(r *bytes.Reader) ([]vm.Value, error) {
	count, err := readU32(r)
	if err != nil {
		return nil, err
	}
	pool := make([]vm.Value, 0, count)
	for i := uint32(0); i < count; i++ {
		tag, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("truncated pool entry %d", i)
		}
		switch tag {
		case 0:
			var b [8]byte
			if _, err := io.ReadFull(r, b[:]); err != nil {
				return nil, fmt.Errorf("truncated pool entry %d", i)
			}
			pool = append(pool, vm.Word64(binary.LittleEndian.Uint64(b[:])))
		case 1:
			var b [32]byte
			if _, err := io.ReadFull(r, b[:]); err != nil {
				return nil, fmt.Errorf("truncated pool entry %d", i)
			}
			pool = append(pool, vm.Bytes32(b))
		default:
			return nil, fmt.Errorf("pool entry %d has unknown tag %d", i, tag)
		}
	}
	return pool, nil
}

// EncodeModule serializes m into the relocatable object format. The module
// is normalized first, so the encoding is deterministic for a given
// compilation result.
func EncodeModule(m *Module) ([]byte, error) {
	m.Normalize()
	var w bytes.Buffer
	w.Write(moduleMagic[:])
	if err := writeString(&w, m.Name); err != nil {
		return nil, err
	}

	writeU32(&w, uint32(len(m.Symbols)))
	for _, s := range m.Symbols {
		if err := writeString(&w, s.Name); err != nil {
			return nil, err
		}
		writeU32(&w, s.Offset)
		if err := writeString(&w, s.Sig); err != nil {
			return nil, err
		}
	}

	code := vm.EncodeCode(m.Code)
	writeU32(&w, uint32(len(code)))
	w.Write(code)

	writeU32(&w, uint32(len(m.Relocs)))
	for _, r := range m.Relocs {
		writeU32(&w, r.Offset)
		if err := writeString(&w, r.Symbol); err != nil {
			return nil, err
		}
	}

	writePool(&w, m.Pool)
	return w.Bytes(), nil
}

// DecodeModule parses the relocatable object format and validates the
// result.
func DecodeModule(data []byte) (*Module, error) {
	r := bytes.NewReader(data)
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || magic != moduleMagic {
		return nil, fmt.Errorf("not a relocatable object file")
	}
	m := &Module{}
	var err error
	if m.Name, err = readString(r); err != nil {
		return nil, err
	}

	symCount, err := readU32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < symCount; i++ {
		var s Symbol
		if s.Name, err = readString(r); err != nil {
			return nil, err
		}
		if s.Offset, err = readU32(r); err != nil {
			return nil, err
		}
		if s.Sig, err = readString(r); err != nil {
			return nil, err
		}
		m.Symbols = append(m.Symbols, s)
	}

	codeLen, err := readU32(r)
	if err != nil {
		return nil, err
	}
	codeBytes := make([]byte, codeLen)
	if _, err := io.ReadFull(r, codeBytes); err != nil {
		return nil, fmt.Errorf("truncated code segment")
	}
	if m.Code, err = vm.DecodeCode(codeBytes); err != nil {
		return nil, err
	}

	relCount, err := readU32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < relCount; i++ {
		var rel Reloc
		if rel.Offset, err = readU32(r); err != nil {
			return nil, err
		}
		if rel.Symbol, err = readString(r); err != nil {
			return nil, err
		}
		m.Relocs = append(m.Relocs, rel)
	}

	if m.Pool, err = readPool(r); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// EncodeExecutable serializes a linked program.
func EncodeExecutable(e *Executable) ([]byte, error) {
	var w bytes.Buffer
	w.Write(exeMagic[:])
	writeU32(&w, e.Entry)
	code := vm.EncodeCode(e.Code)
	writeU32(&w, uint32(len(code)))
	w.Write(code)
	writePool(&w, e.Pool)
	return w.Bytes(), nil
}

// DecodeExecutable parses a linked program image.
func DecodeExecutable(data []byte) (*Executable, error) {
	r := bytes.NewReader(data)
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || magic != exeMagic {
		return nil, fmt.Errorf("not an executable image")
	}
	e := &Executable{}
	var err error
	if e.Entry, err = readU32(r); err != nil {
		return nil, err
	}
	codeLen, err := readU32(r)
	if err != nil {
		return nil, err
	}
	codeBytes := make([]byte, codeLen)
	if _, err := io.ReadFull(r, codeBytes); err != nil {
		return nil, fmt.Errorf("truncated code segment")
	}
	if e.Code, err = vm.DecodeCode(codeBytes); err != nil {
		return nil, err
	}
	if e.Pool, err = readPool(r); err != nil {
		return nil, err
	}
	if int(e.Entry) >= len(e.Code) {
		return nil, fmt.Errorf("entry offset %d outside code segment of %d", e.Entry, len(e.Code))
	}
	return e, nil
}
