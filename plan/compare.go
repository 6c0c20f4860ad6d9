package plan

import (
	"sort"

	"pg_entity_sync/entity"
)

// Status classifies one identity pairing.
type Status string

const (
	StatusUnchanged Status = "unchanged"
	StatusModified  Status = "modified"
	StatusCreated   Status = "created"
	StatusDropped   Status = "dropped"
)

// Record pairs an optional declared entity with an optional reflected
// entity sharing an identity key.
type Record struct {
	Identity  entity.Identity `json:"identity"`
	Status    Status          `json:"status"`
	Declared  entity.Entity   `json:"-"`
	Reflected entity.Entity   `json:"-"`
}

// classifyKind produces exactly one record per identity key present on
// either side of one kind's pairing. Declared entities keep registration
// order; reflected-only keys follow in lexicographic order, so the result
// is reproducible for identical inputs.
func classifyKind(declared, reflected []entity.Entity) []Record {
	byKey := make(map[string]entity.Entity, len(reflected))
	for _, e := range reflected {
		byKey[e.Identity().Key()] = e
	}

	records := make([]Record, 0, len(declared)+len(reflected))
	matched := make(map[string]bool, len(declared))
	for _, want := range declared {
		key := want.Identity().Key()
		matched[key] = true
		have, ok := byKey[key]
		switch {
		case !ok:
			records = append(records, Record{Identity: want.Identity(), Status: StatusCreated, Declared: want})
		case want.DefinitionHash() == have.DefinitionHash():
			records = append(records, Record{Identity: want.Identity(), Status: StatusUnchanged, Declared: want, Reflected: have})
		default:
			records = append(records, Record{Identity: want.Identity(), Status: StatusModified, Declared: want, Reflected: have})
		}
	}

	leftover := make([]string, 0, len(byKey))
	for key := range byKey {
		if !matched[key] {
			leftover = append(leftover, key)
		}
	}
	sort.Strings(leftover)
	for _, key := range leftover {
		have := byKey[key]
		records = append(records, Record{Identity: have.Identity(), Status: StatusDropped, Reflected: have})
	}
	return records
}
