package level

import (
	"fmt"
	"sort"
)

// Registry holds named tables. The zero value is empty; use NewRegistry for
// one preloaded with the built-ins.
type Registry struct {
	tables map[string]Table
}

// NewRegistry returns a registry containing Flat and Graduated.
func NewRegistry() *Registry {
	r := &Registry{tables: make(map[string]Table)}
	r.tables[Flat.Name()] = Flat
	r.tables[Graduated.Name()] = Graduated
	return r
}

// Register adds or replaces a table. Built-in names cannot be replaced, so
// that a feature area's displayed level never silently changes curve.
func (r *Registry) Register(t Table) error {
	if r.tables == nil {
		r.tables = make(map[string]Table)
	}
	if t.Name() == NameFlat || t.Name() == NameGraduated {
		return fmt.Errorf("level table %q is built in and cannot be redefined", t.Name())
	}
	if t.MaxLevel() == 0 {
		return fmt.Errorf("level table %q is empty", t.Name())
	}
	r.tables[t.Name()] = t
	return nil
}

// Lookup returns the table registered under name.
func (r *Registry) Lookup(name string) (Table, bool) {
	t, ok := r.tables[name]
	return t, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tables))
	for n := range r.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
