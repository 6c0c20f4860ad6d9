// Package plan compares a declared entity inventory against the objects
// reflected from a live database and synthesizes the ordered, reversible
// DDL operations that reconcile the two.
package plan

import (
	"fmt"

	"pg_entity_sync/entity"
)

// Registry holds the declared entity inventory for one comparison pass.
// It is an explicit value rather than process state so invocations stay
// reproducible and test isolated.
type Registry struct {
	entities []entity.Entity
	seen     map[string]int
	schemas  []string
	exclude  []string
	kinds    []entity.Kind
}

type RegistryOption func(*Registry)

// WithSchemas restricts the comparison to the given schemas. Empty means
// every non-system schema.
func WithSchemas(schemas ...string) RegistryOption {
	return func(r *Registry) { r.schemas = append(r.schemas, schemas...) }
}

// WithExcludeSchemas hides the given schemas from diffing in both
// directions.
func WithExcludeSchemas(schemas ...string) RegistryOption {
	return func(r *Registry) { r.exclude = append(r.exclude, schemas...) }
}

// WithKinds fixes the entity kinds a pass considers. Without it the pass
// covers the kinds of the registered entities, so reflected-only objects of
// a never-registered kind are left alone.
func WithKinds(kinds ...entity.Kind) RegistryOption {
	return func(r *Registry) { r.kinds = append(r.kinds, kinds...) }
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{seen: map[string]int{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register appends declared entities in order. Two entities sharing an
// identity key are the same logical object, so a collision fails with
// ErrDuplicateIdentity.
func (r *Registry) Register(entities ...entity.Entity) error {
	for _, e := range entities {
		key := e.Identity().Key()
		if at, dup := r.seen[key]; dup {
			return fmt.Errorf("%w: %s already registered at position %d", entity.ErrDuplicateIdentity, e.Identity(), at)
		}
		r.seen[key] = len(r.entities)
		r.entities = append(r.entities, e)
	}
	return nil
}

// Entities returns the registered entities in registration order.
func (r *Registry) Entities() []entity.Entity {
	out := make([]entity.Entity, len(r.entities))
	copy(out, r.entities)
	return out
}

func (r *Registry) Schemas() []string        { return append([]string(nil), r.schemas...) }
func (r *Registry) ExcludeSchemas() []string { return append([]string(nil), r.exclude...) }

// kindOrder returns the kinds a pass covers: the explicit WithKinds list,
// or the registered entities' kinds in first-registration order.
func (r *Registry) kindOrder() []entity.Kind {
	if len(r.kinds) > 0 {
		return append([]entity.Kind(nil), r.kinds...)
	}
	var order []entity.Kind
	known := map[entity.Kind]bool{}
	for _, e := range r.entities {
		if k := e.Kind(); !known[k] {
			known[k] = true
			order = append(order, k)
		}
	}
	return order
}

// schemaVisible applies the include and exclude schema filters.
func (r *Registry) schemaVisible(schema string) bool {
	for _, ex := range r.exclude {
		if schema == ex {
			return false
		}
	}
	if len(r.schemas) == 0 {
		return true
	}
	for _, in := range r.schemas {
		if schema == in {
			return true
		}
	}
	return false
}
