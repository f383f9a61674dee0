// Package compiler turns Mini source text into relocatable object modules:
// lexing, parsing, type checking and code generation, in that order. Each
// stage fails fast; a unit that compiles is fully resolved except for its
// extern call sites, which the linker fills in.
package compiler

import "minic/pkg/obj"

// Compile runs the full pipeline over one source unit. name becomes the
// module name recorded in the object file.
func Compile(src, name string) (*obj.Module, error) {
	tokens, err := Lex(src)
	if err != nil {
		return nil, err
	}
	prog, err := Parse(tokens)
	if err != nil {
		return nil, err
	}
	unit, err := Check(prog)
	if err != nil {
		return nil, err
	}
	return Generate(unit, name)
}
