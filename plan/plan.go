package plan

import (
	"context"
	"fmt"

	"pg_entity_sync/entity"
)

// OpKind names one executable operation category.
type OpKind string

const (
	OpCreate  OpKind = "create"
	OpReplace OpKind = "replace"
	OpDrop    OpKind = "drop"
	OpGrant   OpKind = "grant"
	OpRevoke  OpKind = "revoke"
)

// Operation is one executable step of a plan. SQLUp applies the step,
// SQLDown undoes it.
type Operation struct {
	Kind     OpKind          `json:"kind"`
	Identity entity.Identity `json:"identity"`
	SQLUp    string          `json:"sql_up"`
	SQLDown  string          `json:"sql_down"`
}

// Plan is the outcome of one comparison pass: every pairing that was
// considered, plus the operations that reconcile the differences in
// execution order.
type Plan struct {
	Records    []Record    `json:"records"`
	Operations []Operation `json:"operations"`
}

func (p *Plan) HasChanges() bool { return len(p.Operations) > 0 }

// Summary counts records by status.
func (p *Plan) Summary() map[Status]int {
	counts := make(map[Status]int, 4)
	for _, r := range p.Records {
		counts[r.Status]++
	}
	return counts
}

// RenderUp returns the forward SQL statements in execution order.
func (p *Plan) RenderUp() []string {
	out := make([]string, 0, len(p.Operations))
	for _, op := range p.Operations {
		out = append(out, op.SQLUp)
	}
	return out
}

// RenderDown returns the reverse SQL statements, last operation undone
// first.
func (p *Plan) RenderDown() []string {
	out := make([]string, 0, len(p.Operations))
	for i := len(p.Operations) - 1; i >= 0; i-- {
		out = append(out, p.Operations[i].SQLDown)
	}
	return out
}

// CatalogReader lists the live objects of one kind. Implementations query
// the system catalogs; tests supply fixtures. An empty schemas slice means
// every non-system schema; excludeSchemas hides schemas from the listing
// entirely.
type CatalogReader interface {
	ListCurrent(ctx context.Context, kind entity.Kind, schemas, excludeSchemas []string) ([]entity.Entity, error)
}

// Diff compares the registered inventory against the catalog and returns
// the reconciliation plan. Any invalid declaration aborts the whole pass
// before the catalog is touched, so a plan is never partial.
func Diff(ctx context.Context, reg *Registry, reader CatalogReader) (*Plan, error) {
	declared := make([]entity.Entity, 0, len(reg.entities))
	for _, e := range reg.Entities() {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("validate %s: %w", e.Identity(), err)
		}
		if reg.schemaVisible(e.Identity().Schema) {
			declared = append(declared, e)
		}
	}

	byKind := make(map[entity.Kind][]entity.Entity)
	for _, e := range declared {
		byKind[e.Kind()] = append(byKind[e.Kind()], e)
	}

	var records []Record
	for _, kind := range reg.kindOrder() {
		reflected, err := reader.ListCurrent(ctx, kind, reg.Schemas(), reg.ExcludeSchemas())
		if err != nil {
			return nil, fmt.Errorf("reflect %s entities: %w", kind, err)
		}
		// Readers are asked to filter, but the filters apply here too so an
		// in-memory reader never widens the comparison.
		visible := make([]entity.Entity, 0, len(reflected))
		for _, e := range reflected {
			if reg.schemaVisible(e.Identity().Schema) {
				visible = append(visible, e)
			}
		}
		records = append(records, classifyKind(byKind[kind], visible)...)
	}

	ordered, err := resolveOrder(records)
	if err != nil {
		return nil, err
	}
	ops, err := synthesize(ordered)
	if err != nil {
		return nil, err
	}
	return &Plan{Records: records, Operations: ops}, nil
}
