package compiler

import (
	"testing"

	"minic/pkg/vm"
)

func TestGenerateSymbolsOnlyPublic(t *testing.T) {
	m, err := Compile(`
func helper() -> uint {
    return 1;
}
public func main() -> uint {
    return helper();
}`, "unit")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if len(m.Symbols) != 1 || m.Symbols[0].Name != "main" {
		t.Fatalf("symbols = %+v, want main only", m.Symbols)
	}
	if m.Symbols[0].Sig != "func() -> uint" {
		t.Errorf("signature = %q", m.Symbols[0].Sig)
	}
}

func TestGenerateIntraUnitCallResolved(t *testing.T) {
	m, err := Compile(`
public func main() -> uint {
    return helper();
}
func helper() -> uint {
    return 7;
}`, "unit")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if len(m.Relocs) != 0 {
		t.Fatalf("intra-unit call produced relocations: %+v", m.Relocs)
	}
	// Find the call and check it lands on an ENTER.
	for i, in := range m.Code {
		if in.Op == vm.OpCALL {
			target := i + 1 + int(in.Disp())
			if target < 0 || target >= len(m.Code) || m.Code[target].Op != vm.OpENTER {
				t.Fatalf("call at %d targets %d (%v)", i, target, m.Code[target].Op)
			}
			return
		}
	}
	t.Fatal("no call instruction emitted")
}

func TestGenerateExternCallRelocated(t *testing.T) {
	m, err := Compile(`
extern func helper(x: uint) -> uint;
public func main() -> uint {
    return helper(5);
}`, "unit")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if len(m.Relocs) != 1 || m.Relocs[0].Symbol != "helper" {
		t.Fatalf("relocs = %+v", m.Relocs)
	}
	site := m.Relocs[0].Offset
	if m.Code[site].Op != vm.OpCALL {
		t.Errorf("reloc site %d is %v, not a call", site, m.Code[site].Op)
	}
}

func TestGeneratePoolDedup(t *testing.T) {
	m, err := Compile(`
public func main() -> uint {
    let a = 0x11111111111111111111111111111111111111111111111111111111111111EF;
    let b = 0x11111111111111111111111111111111111111111111111111111111111111EF;
    if a == b {
        return 1;
    }
    return 0;
}`, "unit")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if len(m.Pool) != 1 {
		t.Errorf("pool has %d entries, want 1", len(m.Pool))
	}
}

func TestGenerateEnterPrologue(t *testing.T) {
	m, err := Compile(`
public func main(x: uint, y: uint) -> uint {
    let z = x + y;
    return z;
}`, "unit")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if m.Code[0].Op != vm.OpENTER {
		t.Fatalf("function does not start with ENTER: %v", m.Code[0])
	}
	args, total := vm.UnpackEnter(m.Code[0].Operand)
	if args != 2 || total != 3 {
		t.Errorf("prologue args=%d total=%d, want 2 and 3", args, total)
	}
}

func TestGenerateVoidFunctionReturns(t *testing.T) {
	m, err := Compile(`
public func main(x: uint) {
    x + 1;
}`, "unit")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	last := m.Code[len(m.Code)-1]
	if last.Op != vm.OpRET || last.Operand != 0 {
		t.Errorf("void function ends with %v, want RET 0", last)
	}
}
