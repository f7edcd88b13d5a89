package evaluator

import (
	"github.com/sambeau/sage/pkg/sage/ast"
)

// Builder composes request environments for one program.
//
// The standard library, tag and table layers never change for a program, so
// they are unioned once into a shared base; frames are immutable, which makes
// sharing the base between requests indistinguishable from rebuilding it.
type Builder struct {
	base *Environment
}

// NewBuilder prepares the fixed layers for program.
func NewBuilder(program *ast.Program, opts StdlibOptions) *Builder {
	tables := make(map[string]Value)
	if program != nil {
		for _, t := range program.Tables {
			tables[t.Name] = &Query{Table: t}
		}
	}
	return &Builder{base: NewEnvironment(Stdlib(opts), Tags(), tables)}
}

// Build returns the environment for one request. Layers are unioned in the
// order stdlib < tags < tables < path variables; later layers win.
func (b *Builder) Build(pathVars map[string]string) *Environment {
	bindings := make([]Binding, 0, len(pathVars))
	for name, v := range pathVars {
		bindings = append(bindings, Binding{Name: name, Value: &Text{Value: v}})
	}
	return b.base.ExtendAll(bindings)
}
