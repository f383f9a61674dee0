package obj

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minic/pkg/vm"
)

func sampleModule() *Module {
	var b [32]byte
	b[31] = 0x7F
	return &Module{
		Name: "sample",
		Symbols: []Symbol{
			{Name: "main", Offset: 0, Sig: "func() -> uint"},
			{Name: "aux", Offset: 4, Sig: "func(uint) -> uint"},
		},
		Code: []vm.Instruction{
			{Op: vm.OpPUSH, Operand: 1},
			{Op: vm.OpCALL, Operand: 0},
			{Op: vm.OpRET, Operand: 1},
			{Op: vm.OpNOP},
			{Op: vm.OpENTER, Operand: vm.PackEnter(1, 1)},
			{Op: vm.OpPUSHC, Operand: 0},
			{Op: vm.OpRET, Operand: 1},
		},
		Relocs: []Reloc{{Offset: 1, Symbol: "helper"}},
		Pool:   []vm.Value{vm.Bytes32(b), vm.Word64(1 << 40)},
	}
}

func TestModuleRoundtrip(t *testing.T) {
	m := sampleModule()
	data, err := EncodeModule(m)
	require.NoError(t, err)

	got, err := DecodeModule(data)
	require.NoError(t, err)
	assert.Equal(t, m.Name, got.Name)
	assert.Equal(t, m.Code, got.Code)
	assert.Equal(t, m.Relocs, got.Relocs)
	assert.Equal(t, m.Pool, got.Pool)

	// Normalize sorted the symbols by name.
	require.Len(t, got.Symbols, 2)
	assert.Equal(t, "aux", got.Symbols[0].Name)
	assert.Equal(t, "main", got.Symbols[1].Name)
}

func TestEncodeDeterministic(t *testing.T) {
	d1, err := EncodeModule(sampleModule())
	require.NoError(t, err)
	d2, err := EncodeModule(sampleModule())
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := DecodeModule([]byte("not an object file at all"))
	assert.Error(t, err)

	_, err = DecodeModule(nil)
	assert.Error(t, err)
}

func TestDecodeRejectsTruncated(t *testing.T) {
	data, err := EncodeModule(sampleModule())
	require.NoError(t, err)
	for _, cut := range []int{5, len(data) / 2, len(data) - 3} {
		_, err := DecodeModule(data[:cut])
		assert.Errorf(t, err, "truncation at %d accepted", cut)
	}
}

func TestValidateRejectsBadReloc(t *testing.T) {
	m := sampleModule()
	m.Relocs = []Reloc{{Offset: 0, Symbol: "helper"}} // PUSH, not CALL
	assert.Error(t, m.Validate())

	m = sampleModule()
	m.Relocs = []Reloc{{Offset: 999, Symbol: "helper"}}
	assert.Error(t, m.Validate())
}

func TestValidateRejectsBadSymbolOffset(t *testing.T) {
	m := sampleModule()
	m.Symbols[0].Offset = 100
	assert.Error(t, m.Validate())
}

func TestExecutableRoundtrip(t *testing.T) {
	exe := &Executable{
		Entry: 1,
		Code: []vm.Instruction{
			{Op: vm.OpNOP},
			{Op: vm.OpPUSHC, Operand: 0},
			{Op: vm.OpRET, Operand: 1},
		},
		Pool: []vm.Value{vm.Word64(9)},
	}
	data, err := EncodeExecutable(exe)
	require.NoError(t, err)

	got, err := DecodeExecutable(data)
	require.NoError(t, err)
	assert.Equal(t, exe, got)
}

func TestExecutableRejectsBadEntry(t *testing.T) {
	exe := &Executable{Entry: 10, Code: []vm.Instruction{{Op: vm.OpNOP}}}
	data, err := EncodeExecutable(exe)
	require.NoError(t, err)
	_, err = DecodeExecutable(data)
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	m := sampleModule()
	m.Normalize()
	sym, ok := m.Lookup("main")
	require.True(t, ok)
	assert.Equal(t, uint32(0), sym.Offset)
	_, ok = m.Lookup("missing")
	assert.False(t, ok)
}
