package plan

import (
	"fmt"
	"regexp"
	"strings"

	"pg_entity_sync/entity"
)

// CycleError reports the identities participating in a dependency cycle.
type CycleError struct {
	Identities []entity.Identity
}

func (e *CycleError) Error() string {
	names := make([]string, 0, len(e.Identities)+1)
	for _, id := range e.Identities {
		names = append(names, id.String())
	}
	if len(e.Identities) > 0 {
		names = append(names, e.Identities[0].String())
	}
	return "dependency cycle: " + strings.Join(names, " -> ")
}

func (e *CycleError) Unwrap() error { return entity.ErrDependencyCycle }

// resolveOrder sorts records so every referenced entity precedes its
// dependents. Records without edges keep comparator order. Detection is a
// textual containment heuristic plus explicit parent links; it lives here
// so a real reference parser could replace it without touching the
// comparator or synthesizer.
func resolveOrder(records []Record) ([]Record, error) {
	n := len(records)
	dependsOn := make([][]int, n)
	dependents := make([][]int, n)
	indegree := make([]int, n)

	patterns := make([]*regexp.Regexp, n)
	for j, r := range records {
		patterns[j] = referencePattern(r.Identity)
	}

	for i, r := range records {
		text := scanText(r)
		for j := range records {
			if i == j {
				continue
			}
			if !dependsOnRecord(text, r.Identity, records[j].Identity, patterns[j]) {
				continue
			}
			dependsOn[i] = append(dependsOn[i], j)
			dependents[j] = append(dependents[j], i)
			indegree[i]++
		}
	}

	ordered := make([]Record, 0, n)
	emitted := make([]bool, n)
	for len(ordered) < n {
		next := -1
		for i := 0; i < n; i++ {
			if !emitted[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, cycleFrom(records, dependsOn, emitted)
		}
		emitted[next] = true
		ordered = append(ordered, records[next])
		for _, dep := range dependents[next] {
			indegree[dep]--
		}
	}
	return ordered, nil
}

// scanText is the searchable definition text of a pairing: both sides of a
// Modified record contribute, so reference changes stay conservative.
func scanText(r Record) string {
	parts := make([]string, 0, 2)
	if r.Declared != nil {
		parts = append(parts, entity.DefinitionOf(r.Declared))
	}
	if r.Reflected != nil {
		parts = append(parts, entity.DefinitionOf(r.Reflected))
	}
	return strings.Join(parts, "\n")
}

func dependsOnRecord(text string, from, to entity.Identity, pattern *regexp.Regexp) bool {
	if from.Key() == to.Key() {
		return false
	}
	if from.Parent != "" && isRelationKind(to.Kind) &&
		strings.EqualFold(from.Parent, to.Schema+"."+to.Signature) {
		return true
	}
	return pattern != nil && pattern.MatchString(text)
}

func isRelationKind(k entity.Kind) bool {
	return k == entity.KindView || k == entity.KindMaterializedView
}

// referencePattern matches the quoted and unquoted spellings of an
// identity's qualified name on token boundaries. Function signatures
// contribute their bare name, argument list stripped.
func referencePattern(id entity.Identity) *regexp.Regexp {
	name := id.Signature
	if id.Kind == entity.KindFunction {
		name, _, _ = strings.Cut(name, "(")
	}
	name = strings.TrimSpace(name)
	if name == "" || id.Schema == "" || strings.ContainsAny(name, ":") {
		return nil
	}
	spellings := []string{
		regexp.QuoteMeta(id.Schema + "." + name),
		regexp.QuoteMeta(`"` + id.Schema + `".` + name),
		regexp.QuoteMeta(id.Schema + `."` + name + `"`),
		regexp.QuoteMeta(`"` + id.Schema + `"."` + name + `"`),
	}
	return regexp.MustCompile(`(?i)(?:^|[^\w"])(?:` + strings.Join(spellings, "|") + `)(?:[^\w"]|$)`)
}

// cycleFrom walks the unresolved remainder of the graph until a node
// repeats, then reports that loop.
func cycleFrom(records []Record, dependsOn [][]int, emitted []bool) error {
	start := -1
	for i := range records {
		if !emitted[i] {
			start = i
			break
		}
	}

	path := []int{}
	seenAt := map[int]int{}
	node := start
	for {
		if at, seen := seenAt[node]; seen {
			ids := make([]entity.Identity, 0, len(path)-at)
			for _, i := range path[at:] {
				ids = append(ids, records[i].Identity)
			}
			return &CycleError{Identities: ids}
		}
		seenAt[node] = len(path)
		path = append(path, node)

		next := -1
		for _, dep := range dependsOn[node] {
			if !emitted[dep] {
				next = dep
				break
			}
		}
		if next < 0 {
			// Every stalled node keeps at least one unresolved dependency,
			// so the walk cannot dead-end.
			return fmt.Errorf("%w: unresolved dependency order", entity.ErrDependencyCycle)
		}
		node = next
	}
}
