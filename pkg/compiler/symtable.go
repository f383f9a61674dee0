package compiler

import (
	"fmt"
	"sort"
	"strings"
)

// SymbolKind separates callable unit-level symbols from local bindings.
type SymbolKind int

const (
	SymFunc SymbolKind = iota
	SymVar
)

// Symbol is one named entity: a function (unit scope) or a let/param binding
// (block scope). Function symbols carry a KindFunc type; variable symbols
// carry their value type and the first local slot the value occupies.
type Symbol struct {
	Name   string
	Kind   SymbolKind
	Type   *Type
	Slot   int // first local slot; variables only
	Public bool
	Extern bool
	Pos    Pos
}

// SymbolTable scopes bindings by block. Function symbols live at unit scope;
// local slots are assigned monotonically within one function and are never
// reused, so a binding's slot range stays valid for the whole function.
type SymbolTable struct {
	funcs   map[string]*Symbol
	structs map[string]*Type

	// Stack of local scopes, innermost last.
	scopes []map[string]*Symbol

	// Next free local slot in the current function.
	nextSlot int
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		funcs:   make(map[string]*Symbol),
		structs: make(map[string]*Type),
	}
}

// DefineFunc registers a unit-level function symbol. Names are unique within
// a compilation unit, and may not shadow the built-in integer type names.
func (s *SymbolTable) DefineFunc(sym *Symbol) error {
	if _, reserved := integerTypeNames[sym.Name]; reserved {
		return &TypeError{Kind: DuplicateSymbol, Line: sym.Pos.Line, Col: sym.Pos.Col,
			Msg: fmt.Sprintf("%q is a reserved type name", sym.Name)}
	}
	if prev, exists := s.funcs[sym.Name]; exists {
		return &TypeError{Kind: DuplicateSymbol, Line: sym.Pos.Line, Col: sym.Pos.Col,
			Msg: fmt.Sprintf("%q already declared at line %d", sym.Name, prev.Pos.Line)}
	}
	s.funcs[sym.Name] = sym
	return nil
}

// DefineStruct registers a nominal struct type.
func (s *SymbolTable) DefineStruct(name string, typ *Type, pos Pos) error {
	if _, exists := s.structs[name]; exists {
		return &TypeError{Kind: DuplicateSymbol, Line: pos.Line, Col: pos.Col,
			Msg: fmt.Sprintf("struct %q already declared", name)}
	}
	s.structs[name] = typ
	return nil
}

func (s *SymbolTable) LookupStruct(name string) (*Type, bool) {
	t, ok := s.structs[name]
	return t, ok
}

// EnterFunction resets local state for a new function body.
func (s *SymbolTable) EnterFunction() {
	s.scopes = []map[string]*Symbol{make(map[string]*Symbol)}
	s.nextSlot = 0
}

func (s *SymbolTable) ExitFunction() {
	s.scopes = nil
}

func (s *SymbolTable) EnterScope() {
	if len(s.scopes) == 0 {
		panic("EnterScope called outside function")
	}
	s.scopes = append(s.scopes, make(map[string]*Symbol))
}

func (s *SymbolTable) ExitScope() {
	if len(s.scopes) > 0 {
		s.scopes = s.scopes[:len(s.scopes)-1]
	}
}

// DefineLocal binds name in the current scope and reserves slots for it.
// Redeclaring a name within the same scope is an error; shadowing an outer
// scope is allowed.
func (s *SymbolTable) DefineLocal(name string, typ *Type, pos Pos) (*Symbol, error) {
	if len(s.scopes) == 0 {
		panic("DefineLocal called outside function")
	}
	scope := s.scopes[len(s.scopes)-1]
	if _, exists := scope[name]; exists {
		return nil, &TypeError{Kind: DuplicateSymbol, Line: pos.Line, Col: pos.Col,
			Msg: fmt.Sprintf("%q already declared in this scope", name)}
	}
	sym := &Symbol{Name: name, Kind: SymVar, Type: typ, Slot: s.nextSlot, Pos: pos}
	s.nextSlot += typ.Slots()
	scope[name] = sym
	return sym, nil
}

// AllocTemp reserves an anonymous slot range and returns its first slot.
func (s *SymbolTable) AllocTemp(slots int) int {
	first := s.nextSlot
	s.nextSlot += slots
	return first
}

// LocalSlots returns the number of local slots the current function needs.
func (s *SymbolTable) LocalSlots() int {
	return s.nextSlot
}

// Lookup resolves name against the innermost scope outward, then the unit's
// function symbols.
func (s *SymbolTable) Lookup(name string) (*Symbol, bool) {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if sym, ok := s.scopes[i][name]; ok {
			return sym, true
		}
	}
	sym, ok := s.funcs[name]
	return sym, ok
}

// String returns a deterministically ordered dump of the table.
func (s *SymbolTable) String() string {
	var sb strings.Builder
	names := make([]string, 0, len(s.funcs))
	for name := range s.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	sb.WriteString("Functions:\n")
	for _, name := range names {
		sym := s.funcs[name]
		vis := "private"
		if sym.Public {
			vis = "public"
		}
		if sym.Extern {
			vis = "extern"
		}
		fmt.Fprintf(&sb, "  %-20s %-8s %s\n", name, vis, sym.Type)
	}
	return sb.String()
}
