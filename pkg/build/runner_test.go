package build

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minic/pkg/obj"
	"minic/pkg/vm"
)

const mathSrc = `
public func double(x: uint) -> uint {
    return x + x;
}
`

const mainSrc = `
extern func double(x: uint) -> uint;

public func main() -> uint {
    return double(21);
}
`

func writeSource(t *testing.T, root, name, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(src), 0o644))
}

func testRunner(t *testing.T, p *Project) *Runner {
	t.Helper()
	root := t.TempDir()
	writeSource(t, root, "math.mini", mathSrc)
	writeSource(t, root, "main.mini", mainSrc)
	return &Runner{
		Project: p,
		Root:    root,
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func sampleProject() *Project {
	return &Project{
		Name: "demo",
		Objects: []ObjectTarget{
			{Name: "math", Source: "math.mini"},
			{Name: "main", Source: "main.mini"},
		},
		Programs: []ProgramTarget{
			{Name: "demo", Objects: []string{"main", "math"}},
		},
	}
}

func TestRunBuildsProject(t *testing.T) {
	r := testRunner(t, sampleProject())
	require.NoError(t, r.Run(context.Background()))

	outDir := filepath.Join(r.Root, DefaultOutDir)
	for _, name := range []string{"math.mao", "main.mao", "demo.mexe"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err, name)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "demo.mexe"))
	require.NoError(t, err)
	exe, err := obj.DecodeExecutable(data)
	require.NoError(t, err)

	results, err := vm.New(exe.Code, exe.Pool).Run(int(exe.Entry), nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(42), results[0].Word)
}

func TestRunLinksAfterObjectStage(t *testing.T) {
	// The program stage starts after the object stage's group has
	// finished; a shared object serves several programs.
	p := sampleProject()
	p.Programs = append(p.Programs,
		ProgramTarget{Name: "dbl", Objects: []string{"math"}, Entry: "double"})
	r := testRunner(t, p)
	require.NoError(t, r.Run(context.Background()))

	outDir := filepath.Join(r.Root, DefaultOutDir)
	for _, name := range []string{"demo.mexe", "dbl.mexe"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err, name)
	}
}

func TestRunCanceledContext(t *testing.T) {
	r := testRunner(t, sampleProject())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Run(ctx), context.Canceled)
}

func TestRunHonorsOutDir(t *testing.T) {
	p := sampleProject()
	p.OutDir = "dist"
	r := testRunner(t, p)
	require.NoError(t, r.Run(context.Background()))

	_, err := os.Stat(filepath.Join(r.Root, "dist", "demo.mexe"))
	assert.NoError(t, err)
}

func TestRunNamedEntry(t *testing.T) {
	p := &Project{
		Name:    "lib",
		Objects: []ObjectTarget{{Name: "math", Source: "math.mini"}},
		Programs: []ProgramTarget{
			{Name: "dbl", Objects: []string{"math"}, Entry: "double"},
		},
	}
	r := testRunner(t, p)
	require.NoError(t, r.Run(context.Background()))

	data, err := os.ReadFile(filepath.Join(r.Root, DefaultOutDir, "dbl.mexe"))
	require.NoError(t, err)
	exe, err := obj.DecodeExecutable(data)
	require.NoError(t, err)

	results, err := vm.New(exe.Code, exe.Pool).Run(int(exe.Entry), []vm.Value{vm.Word64(8)})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(16), results[0].Word)
}

func TestRunReportsCompileError(t *testing.T) {
	p := &Project{
		Name:     "bad",
		Objects:  []ObjectTarget{{Name: "broken", Source: "broken.mini"}},
		Programs: []ProgramTarget{{Name: "bad", Objects: []string{"broken"}}},
	}
	r := testRunner(t, p)
	writeSource(t, r.Root, "broken.mini", "public func main() -> uint { return; }")

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.mini")
}

func TestValidateDuplicateTarget(t *testing.T) {
	p := sampleProject()
	p.Objects = append(p.Objects, ObjectTarget{Name: "math", Source: "math.mini"})
	assert.ErrorContains(t, p.Validate(), "declared twice")
}

func TestValidateUnknownObject(t *testing.T) {
	p := sampleProject()
	p.Programs[0].Objects = append(p.Programs[0].Objects, "missing")
	assert.ErrorContains(t, p.Validate(), "missing")
}

func TestValidateEmptyProgram(t *testing.T) {
	p := sampleProject()
	p.Programs[0].Objects = nil
	assert.ErrorContains(t, p.Validate(), "links no objects")
}

func TestValidateMissingFields(t *testing.T) {
	p := &Project{Objects: []ObjectTarget{{Name: "x"}}}
	assert.Error(t, p.Validate())
}

func TestGraphSortedOrder(t *testing.T) {
	g := newTargetGraph()
	for _, n := range []string{"app", "core", "util"} {
		require.NoError(t, g.addTarget(n))
	}
	require.NoError(t, g.addDep("app", "core"))
	require.NoError(t, g.addDep("core", "util"))

	order, err := g.sorted()
	require.NoError(t, err)
	assert.Equal(t, []string{"util", "core", "app"}, order)
}

func TestGraphCycle(t *testing.T) {
	g := newTargetGraph()
	for _, n := range []string{"a", "b", "c"} {
		require.NoError(t, g.addTarget(n))
	}
	require.NoError(t, g.addDep("a", "b"))
	require.NoError(t, g.addDep("b", "c"))
	require.NoError(t, g.addDep("c", "a"))

	_, err := g.sorted()
	assert.ErrorContains(t, err, "dependency cycle")
}

func TestGraphSelfDependency(t *testing.T) {
	g := newTargetGraph()
	require.NoError(t, g.addTarget("a"))
	assert.ErrorContains(t, g.addDep("a", "a"), "depends on itself")
}
