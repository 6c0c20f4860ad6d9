package plan

import (
	"fmt"
	"sort"

	"pg_entity_sync/entity"
)

// synthesize turns dependency-ordered records into executable operations.
// Removals run first, dependents before their dependencies, then creations
// and replacements run dependencies first. Each operation carries its own
// reverse SQL so a plan can be rolled back without re-reflecting.
func synthesize(ordered []Record) ([]Operation, error) {
	var ops []Operation
	for i := len(ordered) - 1; i >= 0; i-- {
		ops = append(ops, removalsFor(ordered[i])...)
	}
	for _, r := range ordered {
		forward, err := forwardFor(r)
		if err != nil {
			return nil, err
		}
		ops = append(ops, forward...)
	}
	return ops, nil
}

func removalsFor(r Record) []Operation {
	caps := entity.Capabilities(r.Identity.Kind)
	switch r.Status {
	case StatusDropped:
		kind := OpDrop
		if caps.AdditiveOnly {
			kind = OpRevoke
		}
		return []Operation{{
			Kind:     kind,
			Identity: r.Identity,
			SQLUp:    r.Reflected.DropSQL(),
			SQLDown:  r.Reflected.CreateSQL(),
		}}
	case StatusModified:
		if caps.InPlaceReplace || caps.AdditiveOnly {
			return nil
		}
		// The old definition comes down here; the declared one is created in
		// the forward half.
		return []Operation{{
			Kind:     OpDrop,
			Identity: r.Identity,
			SQLUp:    r.Reflected.DropSQL(),
			SQLDown:  r.Reflected.CreateSQL(),
		}}
	default:
		return nil
	}
}

func forwardFor(r Record) ([]Operation, error) {
	caps := entity.Capabilities(r.Identity.Kind)
	switch r.Status {
	case StatusCreated:
		kind := OpCreate
		if caps.AdditiveOnly {
			kind = OpGrant
		}
		return []Operation{{
			Kind:     kind,
			Identity: r.Identity,
			SQLUp:    r.Declared.CreateSQL(),
			SQLDown:  r.Declared.DropSQL(),
		}}, nil
	case StatusModified:
		switch {
		case caps.AdditiveOnly:
			return grantDelta(r)
		case caps.InPlaceReplace:
			want, okWant := r.Declared.(entity.Replacer)
			have, okHave := r.Reflected.(entity.Replacer)
			if !okWant || !okHave {
				return nil, fmt.Errorf("%w: %s cannot be replaced in place", entity.ErrUnsupportedOperation, r.Identity)
			}
			return []Operation{{
				Kind:     OpReplace,
				Identity: r.Identity,
				SQLUp:    want.ReplaceSQL(),
				SQLDown:  have.ReplaceSQL(),
			}}, nil
		default:
			return []Operation{{
				Kind:     OpCreate,
				Identity: r.Identity,
				SQLUp:    r.Declared.CreateSQL(),
				SQLDown:  r.Declared.DropSQL(),
			}}, nil
		}
	default:
		return nil, nil
	}
}

// grantDelta reconciles a modified grant by touching only the privileges
// that actually changed: revoke the columns no longer declared, grant the
// newly declared ones. A grant option flip or a switch between table level
// and column level cannot be expressed as a column delta, so those regrant
// from scratch.
func grantDelta(r Record) ([]Operation, error) {
	want, okWant := r.Declared.(*entity.GrantTable)
	have, okHave := r.Reflected.(*entity.GrantTable)
	if !okWant || !okHave {
		return nil, fmt.Errorf("%w: %s is not a table grant pairing", entity.ErrUnsupportedOperation, r.Identity)
	}

	if want.WithGrantOption != have.WithGrantOption ||
		(len(want.Columns) == 0) != (len(have.Columns) == 0) {
		return []Operation{
			{Kind: OpRevoke, Identity: r.Identity, SQLUp: have.DropSQL(), SQLDown: have.CreateSQL()},
			{Kind: OpGrant, Identity: r.Identity, SQLUp: want.CreateSQL(), SQLDown: want.DropSQL()},
		}, nil
	}

	added, removed := diffColumns(want.Columns, have.Columns)
	var ops []Operation
	if len(removed) > 0 {
		ops = append(ops, Operation{
			Kind:     OpRevoke,
			Identity: r.Identity,
			SQLUp:    have.RevokeColumnsSQL(removed),
			SQLDown:  have.GrantColumnsSQL(removed),
		})
	}
	if len(added) > 0 {
		ops = append(ops, Operation{
			Kind:     OpGrant,
			Identity: r.Identity,
			SQLUp:    want.GrantColumnsSQL(added),
			SQLDown:  want.RevokeColumnsSQL(added),
		})
	}
	return ops, nil
}

func diffColumns(want, have []string) (added, removed []string) {
	inWant := make(map[string]bool, len(want))
	for _, c := range want {
		inWant[c] = true
	}
	inHave := make(map[string]bool, len(have))
	for _, c := range have {
		inHave[c] = true
	}
	for c := range inWant {
		if !inHave[c] {
			added = append(added, c)
		}
	}
	for c := range inHave {
		if !inWant[c] {
			removed = append(removed, c)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
