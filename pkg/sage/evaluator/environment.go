package evaluator

import (
	"maps"
	"slices"
)

// Environment maps identifiers to values. It is persistent: a frame is never
// modified after creation, and extending it returns a new frame whose lookups
// fall through to the old one. Closures keep a pointer to the frame they were
// created in, which is safe to share because nothing can change it.
type Environment struct {
	vars  map[string]Value
	outer *Environment
}

// Binding is a name/value pair added to an environment
type Binding struct {
	Name  string
	Value Value
}

// NewEnvironment builds an environment from layers, lowest priority first.
// On a name collision the later layer wins. The layer maps are copied.
func NewEnvironment(layers ...map[string]Value) *Environment {
	var env *Environment
	for _, layer := range layers {
		env = &Environment{vars: maps.Clone(layer), outer: env}
	}
	if env == nil {
		env = &Environment{}
	}
	return env
}

// Get looks up a name, innermost frame first
func (e *Environment) Get(name string) (Value, bool) {
	for frame := e; frame != nil; frame = frame.outer {
		if v, ok := frame.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Extend returns a new environment with name bound to v, shadowing any outer binding.
func (e *Environment) Extend(name string, v Value) *Environment {
	return &Environment{vars: map[string]Value{name: v}, outer: e}
}

// ExtendAll returns a new environment with all bindings added in one frame.
// A repeated name keeps its last value.
func (e *Environment) ExtendAll(bindings []Binding) *Environment {
	vars := make(map[string]Value, len(bindings))
	for _, b := range bindings {
		vars[b.Name] = b.Value
	}
	return &Environment{vars: vars, outer: e}
}

// Names returns every bound name, sorted
func (e *Environment) Names() []string {
	seen := make(map[string]bool)
	for frame := e; frame != nil; frame = frame.outer {
		for name := range frame.vars {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
