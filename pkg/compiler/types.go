package compiler

import (
	"fmt"
	"strings"
)

// TypeKind discriminates the semantic type variants.
type TypeKind int

const (
	KindUint TypeKind = iota
	KindInt
	KindBytes32
	KindOption
	KindStruct
	KindTuple
	KindFunc
	KindNever // the bottom type of `error`; unifies with everything
)

// Field is one named member of a struct type.
type Field struct {
	Name string
	Type *Type
}

// Type is the semantic type of an expression or symbol. Two types are equal
// iff structurally identical after generic substitution; structs compare by
// name.
type Type struct {
	Kind   TypeKind
	Width  uint    // integer width in bits (uint/int only)
	Inner  *Type   // option payload
	Elems  []*Type // tuple members
	Name   string  // struct name
	Fields []Field // struct members
	Params []*Type // function parameters
	Ret    *Type   // function result; nil for none
}

// DefaultWidth is the width of the bare `uint` and `int` types.
const DefaultWidth = 64

func UintType(width uint) *Type { return &Type{Kind: KindUint, Width: width} }
func IntType(width uint) *Type  { return &Type{Kind: KindInt, Width: width} }
func Bytes32Type() *Type        { return &Type{Kind: KindBytes32} }
func NeverType() *Type          { return &Type{Kind: KindNever} }

func OptionOf(inner *Type) *Type {
	return &Type{Kind: KindOption, Inner: inner}
}

func TupleOf(elems ...*Type) *Type {
	return &Type{Kind: KindTuple, Elems: elems}
}

// IsInteger reports whether t is a uint or int of any width.
func (t *Type) IsInteger() bool {
	return t != nil && (t.Kind == KindUint || t.Kind == KindInt)
}

// IsSigned reports whether t is a signed integer type.
func (t *Type) IsSigned() bool {
	return t != nil && t.Kind == KindInt
}

// Slots returns the number of operand-stack slots a value of t occupies.
// An option is a discriminant slot plus a payload sized for its
// instantiated type.
func (t *Type) Slots() int {
	switch t.Kind {
	case KindUint, KindInt, KindBytes32:
		return 1
	case KindOption:
		return 1 + t.Inner.Slots()
	case KindTuple:
		n := 0
		for _, e := range t.Elems {
			n += e.Slots()
		}
		return n
	case KindStruct:
		n := 0
		for _, f := range t.Fields {
			n += f.Type.Slots()
		}
		return n
	case KindNever:
		return 0
	default:
		return 0
	}
}

// Equal reports structural equality. Struct types compare nominally.
func (t *Type) Equal(other *Type) bool {
	if t == nil || other == nil {
		return t == other
	}
	if t.Kind != other.Kind {
		return false
	}
	switch t.Kind {
	case KindUint, KindInt:
		return t.Width == other.Width
	case KindBytes32, KindNever:
		return true
	case KindOption:
		return t.Inner.Equal(other.Inner)
	case KindStruct:
		return t.Name == other.Name
	case KindTuple:
		if len(t.Elems) != len(other.Elems) {
			return false
		}
		for i := range t.Elems {
			if !t.Elems[i].Equal(other.Elems[i]) {
				return false
			}
		}
		return true
	case KindFunc:
		if len(t.Params) != len(other.Params) {
			return false
		}
		for i := range t.Params {
			if !t.Params[i].Equal(other.Params[i]) {
				return false
			}
		}
		if (t.Ret == nil) != (other.Ret == nil) {
			return false
		}
		return t.Ret == nil || t.Ret.Equal(other.Ret)
	}
	return false
}

// AssignableTo reports whether a value of t satisfies an expected type.
// Never assigns to everything; otherwise types must be equal. There is no
// implicit integer coercion.
func (t *Type) AssignableTo(want *Type) bool {
	if t != nil && t.Kind == KindNever {
		return true
	}
	return t.Equal(want)
}

func (t *Type) String() string {
	if t == nil {
		return "<none>"
	}
	switch t.Kind {
	case KindUint:
		if t.Width == DefaultWidth {
			return "uint"
		}
		return fmt.Sprintf("uint%d", t.Width)
	case KindInt:
		if t.Width == DefaultWidth {
			return "int"
		}
		return fmt.Sprintf("int%d", t.Width)
	case KindBytes32:
		return "bytes32"
	case KindOption:
		return fmt.Sprintf("option<%s>", t.Inner)
	case KindStruct:
		return t.Name
	case KindTuple:
		parts := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			parts[i] = e.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case KindFunc:
		parts := make([]string, len(t.Params))
		for i, p := range t.Params {
			parts[i] = p.String()
		}
		s := "func(" + strings.Join(parts, ", ") + ")"
		if t.Ret != nil {
			s += " -> " + t.Ret.String()
		}
		return s
	case KindNever:
		return "never"
	}
	return "<invalid>"
}

// integerTypeNames maps source type names to their semantic types. These
// identifiers double as cast operators when followed by an argument list.
var integerTypeNames = map[string]*Type{
	"uint":   UintType(DefaultWidth),
	"int":    IntType(DefaultWidth),
	"uint8":  UintType(8),
	"uint16": UintType(16),
	"uint32": UintType(32),
	"uint64": UintType(64),
	"int8":   IntType(8),
	"int16":  IntType(16),
	"int32":  IntType(32),
	"int64":  IntType(64),
}
