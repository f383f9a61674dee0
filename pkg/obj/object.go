// Package obj defines the relocatable object and linked executable formats
// shared by the compiler, the linker and the tooling around them.
package obj

import (
	"fmt"
	"sort"

	"minic/pkg/vm"
)

// Symbol is one exported function: its name, the code offset of its entry
// instruction within the module, and a printable signature used for
// inspection and link-time diagnostics.
type Symbol struct {
	Name   string
	Offset uint32
	Sig    string
}

// Reloc marks a call instruction whose displacement the linker must fill in.
// Offset is the instruction index of the call site; Symbol names the callee,
// which is expected to be exported by some other module in the link set.
type Reloc struct {
	Offset uint32
	Symbol string
}

// Module is one relocatable compilation unit. Symbols are sorted by name and
// relocations by offset, so two compilations of the same source yield
// byte-identical encodings.
type Module struct {
	Name    string
	Symbols []Symbol
	Code    []vm.Instruction
	Relocs  []Reloc
	Pool    []vm.Value
}

// Normalize sorts the symbol and relocation tables into canonical order.
func (m *Module) Normalize() {
	sort.Slice(m.Symbols, func(i, j int) bool { return m.Symbols[i].Name < m.Symbols[j].Name })
	sort.Slice(m.Relocs, func(i, j int) bool { return m.Relocs[i].Offset < m.Relocs[j].Offset })
}

// Lookup returns the exported symbol with the given name.
func (m *Module) Lookup(name string) (Symbol, bool) {
	for _, s := range m.Symbols {
		if s.Name == name {
			return s, true
		}
	}
	return Symbol{}, false
}

// Validate checks internal consistency: offsets inside the code segment and
// relocation sites that are call instructions.
func (m *Module) Validate() error {
	n := uint32(len(m.Code))
	for _, s := range m.Symbols {
		if s.Offset >= n {
			return fmt.Errorf("module %s: symbol %q offset %d outside code segment of %d", m.Name, s.Name, s.Offset, n)
		}
	}
	for _, r := range m.Relocs {
		if r.Offset >= n {
			return fmt.Errorf("module %s: relocation for %q at offset %d outside code segment of %d", m.Name, r.Symbol, r.Offset, n)
		}
		if m.Code[r.Offset].Op != vm.OpCALL {
			return fmt.Errorf("module %s: relocation for %q at offset %d is not a call site", m.Name, r.Symbol, r.Offset)
		}
	}
	return nil
}

// Executable is a fully linked program: every call displacement resolved,
// every pool index rebased, plus the entry offset to start from.
type Executable struct {
	Entry uint32
	Code  []vm.Instruction
	Pool  []vm.Value
}
