// Package build compiles and links a whole project described by a project
// file. Independent targets build concurrently; a shared object compiles
// once no matter how many programs consume it.
package build

import "fmt"

// ObjectTarget compiles one source file into a relocatable object.
type ObjectTarget struct {
	Name   string `koanf:"name"`
	Source string `koanf:"source"`
}

// ProgramTarget links a set of objects into an executable image.
type ProgramTarget struct {
	Name    string   `koanf:"name"`
	Objects []string `koanf:"objects"`
	Entry   string   `koanf:"entry"` // empty means the default entry symbol
}

// Project is the parsed project file.
type Project struct {
	Name     string          `koanf:"name"`
	OutDir   string          `koanf:"out_dir"`
	Objects  []ObjectTarget  `koanf:"objects"`
	Programs []ProgramTarget `koanf:"programs"`
}

// Validate checks the target set for missing fields, duplicate names and
// dangling object references.
func (p *Project) Validate() error {
	g := newTargetGraph()
	for _, o := range p.Objects {
		if o.Name == "" || o.Source == "" {
			return fmt.Errorf("object target needs both name and source")
		}
		if err := g.addTarget(o.Name); err != nil {
			return err
		}
	}
	for _, pr := range p.Programs {
		if pr.Name == "" {
			return fmt.Errorf("program target needs a name")
		}
		if len(pr.Objects) == 0 {
			return fmt.Errorf("program %q links no objects", pr.Name)
		}
		if err := g.addTarget(pr.Name); err != nil {
			return err
		}
	}
	for _, pr := range p.Programs {
		for _, dep := range pr.Objects {
			if err := g.addDep(pr.Name, dep); err != nil {
				return err
			}
		}
	}
	_, err := g.sorted()
	return err
}
