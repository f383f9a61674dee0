// Package link combines relocatable object modules into a runnable image.
// Symbols resolve against a global table built over the whole input set, so
// the outcome does not depend on the order modules are given in.
package link

import (
	"fmt"

	"minic/pkg/obj"
	"minic/pkg/vm"
)

// DefaultEntry is the symbol started when no entry point is named.
const DefaultEntry = "main"

// ErrorKind classifies a link failure.
type ErrorKind int

const (
	DuplicateSymbol ErrorKind = iota
	UnresolvedSymbol
	NoEntryPoint
)

var errorKindNames = [...]string{
	DuplicateSymbol:  "duplicate symbol",
	UnresolvedSymbol: "unresolved symbol",
	NoEntryPoint:     "no entry point",
}

func (k ErrorKind) String() string {
	if int(k) >= 0 && int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error reports why a link set could not be combined. Symbol names the
// offending symbol and Modules the modules involved.
type Error struct {
	Kind    ErrorKind
	Symbol  string
	Modules []string
}

func (e *Error) Error() string {
	switch e.Kind {
	case DuplicateSymbol:
		return fmt.Sprintf("duplicate symbol %q exported by %v", e.Symbol, e.Modules)
	case UnresolvedSymbol:
		return fmt.Sprintf("unresolved symbol %q referenced by %v", e.Symbol, e.Modules)
	default:
		return fmt.Sprintf("entry point %q not found in any module", e.Symbol)
	}
}

type globalSym struct {
	offset uint32
	module string
}

// Link resolves mods into an executable starting at entry, which defaults
// to DefaultEntry when empty. Module code segments are concatenated in the
// given order; since every resolved transfer is a relative displacement,
// only extern call sites and constant pool references need rewriting.
func Link(mods []*obj.Module, entry string) (*obj.Executable, error) {
	if entry == "" {
		entry = DefaultEntry
	}
	for _, m := range mods {
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}

	// Pass 1: layout and the global symbol table.
	globals := make(map[string]globalSym)
	codeBases := make([]uint32, len(mods))
	poolBases := make([]uint32, len(mods))
	var codeLen, poolLen uint32
	for i, m := range mods {
		codeBases[i] = codeLen
		poolBases[i] = poolLen
		codeLen += uint32(len(m.Code))
		poolLen += uint32(len(m.Pool))
		for _, s := range m.Symbols {
			if prev, exists := globals[s.Name]; exists {
				return nil, &Error{Kind: DuplicateSymbol, Symbol: s.Name,
					Modules: []string{prev.module, m.Name}}
			}
			globals[s.Name] = globalSym{offset: codeBases[i] + s.Offset, module: m.Name}
		}
	}

	// Pass 2: concatenate code, rebasing pool references as they pass.
	code := make([]vm.Instruction, 0, codeLen)
	pool := make([]vm.Value, 0, poolLen)
	for i, m := range mods {
		for _, in := range m.Code {
			if in.Op == vm.OpPUSHC {
				in.Operand += poolBases[i]
			}
			code = append(code, in)
		}
		pool = append(pool, m.Pool...)
	}

	// Pass 3: patch extern call sites against the global table.
	for i, m := range mods {
		for _, r := range m.Relocs {
			target, ok := globals[r.Symbol]
			if !ok {
				return nil, &Error{Kind: UnresolvedSymbol, Symbol: r.Symbol,
					Modules: []string{m.Name}}
			}
			site := codeBases[i] + r.Offset
			code[site].Operand = uint32(int32(target.offset) - int32(site+1))
		}
	}

	start, ok := globals[entry]
	if !ok {
		return nil, &Error{Kind: NoEntryPoint, Symbol: entry}
	}
	return &obj.Executable{Entry: start.offset, Code: code, Pool: pool}, nil
}
