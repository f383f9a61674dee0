package build

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"minic/pkg/compiler"
	"minic/pkg/link"
	"minic/pkg/obj"
)

// DefaultOutDir receives build products when the project names none.
const DefaultOutDir = "build"

// Runner executes a project build. Objects compile first, in parallel, then
// programs link in parallel against the in-memory modules; object files are
// still written out so later links can reuse them.
type Runner struct {
	Project *Project
	Root    string // directory the project file was loaded from
	Log     *slog.Logger
	Jobs    int // max concurrent targets; <=0 means GOMAXPROCS
}

func (r *Runner) outDir() string {
	dir := r.Project.OutDir
	if dir == "" {
		dir = DefaultOutDir
	}
	return filepath.Join(r.Root, dir)
}

// Run builds every target in the project.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Project.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(r.outDir(), 0o755); err != nil {
		return err
	}
	jobs := r.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	var mu sync.Mutex
	modules := make(map[string]*obj.Module, len(r.Project.Objects))

	// Each stage derives its own group from the caller's context; the
	// first group's context is dead once its Wait returns.
	g, objCtx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for _, target := range r.Project.Objects {
		g.Go(func() error {
			if err := objCtx.Err(); err != nil {
				return err
			}
			m, err := r.buildObject(target)
			if err != nil {
				return err
			}
			mu.Lock()
			modules[target.Name] = m
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	g, progCtx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for _, target := range r.Project.Programs {
		g.Go(func() error {
			if err := progCtx.Err(); err != nil {
				return err
			}
			return r.buildProgram(target, modules)
		})
	}
	return g.Wait()
}

func (r *Runner) buildObject(target ObjectTarget) (*obj.Module, error) {
	src, err := os.ReadFile(filepath.Join(r.Root, target.Source))
	if err != nil {
		return nil, err
	}
	m, err := compiler.Compile(string(src), target.Name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", target.Source, err)
	}
	data, err := obj.EncodeModule(m)
	if err != nil {
		return nil, err
	}
	out := filepath.Join(r.outDir(), target.Name+".mao")
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return nil, err
	}
	r.Log.Info("compiled object", "target", target.Name, "source", target.Source, "out", out)
	return m, nil
}

func (r *Runner) buildProgram(target ProgramTarget, modules map[string]*obj.Module) error {
	mods := make([]*obj.Module, len(target.Objects))
	for i, name := range target.Objects {
		mods[i] = modules[name]
	}
	exe, err := link.Link(mods, target.Entry)
	if err != nil {
		return fmt.Errorf("%s: %w", target.Name, err)
	}
	data, err := obj.EncodeExecutable(exe)
	if err != nil {
		return err
	}
	out := filepath.Join(r.outDir(), target.Name+".mexe")
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return err
	}
	r.Log.Info("linked program", "target", target.Name, "objects", len(mods), "out", out)
	return nil
}
