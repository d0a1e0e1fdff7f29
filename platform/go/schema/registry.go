package schema

import (
	"fmt"
	"sort"
)

// Inbound is a many-to-one relation declared on Source that points at another entity.
type Inbound struct {
	Source   *Entity
	Relation Relation
}

// Registry is the immutable set of entities a deployment works with. Relation targets are resolved
// when the registry is built so that drivers can rely on them.
type Registry struct {
	byName  map[string]*Entity
	ordered []*Entity
	inbound map[string][]Inbound
}

// NewRegistry validates cross-entity references and computes a dependency order.
func NewRegistry(entities ...*Entity) (*Registry, error) {
	r := &Registry{
		byName:  make(map[string]*Entity, len(entities)),
		inbound: make(map[string][]Inbound),
	}

	tables := make(map[string]string, len(entities))
	for _, e := range entities {
		if e == nil || e.columnIndex == nil {
			return nil, fmt.Errorf("%w: registry accepts only declared entities", ErrInvalidDeclaration)
		}
		if _, dup := r.byName[e.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate entity %q", ErrInvalidDeclaration, e.Name)
		}
		if other, dup := tables[e.Table]; dup {
			return nil, fmt.Errorf("%w: entities %q and %q share table %q", ErrInvalidDeclaration, other, e.Name, e.Table)
		}
		r.byName[e.Name] = e
		tables[e.Table] = e.Name
	}

	for _, e := range entities {
		for _, rel := range e.Relations {
			target, ok := r.byName[rel.Target]
			if !ok {
				return nil, fmt.Errorf("%w: entity %q relation %q targets unknown entity %q", ErrInvalidDeclaration, e.Name, rel.Name, rel.Target)
			}
			switch rel.Kind {
			case ManyToOne:
				r.inbound[target.Name] = append(r.inbound[target.Name], Inbound{Source: e, Relation: rel})
			case OneToMany:
				col, ok := target.Column(rel.JoinColumn)
				if !ok || col.Type != TypeUUID {
					return nil, fmt.Errorf("%w: entity %q relation %q: %q has no uuid column %q", ErrInvalidDeclaration, e.Name, rel.Name, target.Name, rel.JoinColumn)
				}
			}
		}
	}

	ordered, err := dependencyOrder(entities, r.byName)
	if err != nil {
		return nil, err
	}
	r.ordered = ordered

	return r, nil
}

// MustRegistry is NewRegistry for program start-up; it panics on invalid input.
func MustRegistry(entities ...*Entity) *Registry {
	r, err := NewRegistry(entities...)
	if err != nil {
		panic(err)
	}
	return r
}

// Entity looks up an entity by name.
func (r *Registry) Entity(name string) (*Entity, bool) {
	e, ok := r.byName[name]
	return e, ok
}

// Entities returns all entities with referenced entities before the entities that reference them.
func (r *Registry) Entities() []*Entity {
	out := make([]*Entity, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Referencing returns the many-to-one relations that point at the named entity.
func (r *Registry) Referencing(name string) []Inbound {
	return r.inbound[name]
}

// dependencyOrder is a stable topological sort over many-to-one edges; self references are ignored.
func dependencyOrder(entities []*Entity, byName map[string]*Entity) ([]*Entity, error) {
	names := make([]string, 0, len(entities))
	for _, e := range entities {
		names = append(names, e.Name)
	}
	sort.Strings(names)

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(names))
	ordered := make([]*Entity, 0, len(names))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: relation cycle through entity %q", ErrInvalidDeclaration, name)
		}
		state[name] = visiting

		e := byName[name]
		for _, rel := range e.Relations {
			if rel.Kind != ManyToOne || rel.Target == name {
				continue
			}
			if err := visit(rel.Target); err != nil {
				return err
			}
		}

		state[name] = done
		ordered = append(ordered, e)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}
