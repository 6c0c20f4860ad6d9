// Package entity models replaceable PostgreSQL schema objects: functions,
// views, materialized views, triggers, policies, extensions and table
// grants. Entities are immutable value objects identified by schema,
// signature and kind; equal identity plus equal definition hash means the
// object is unchanged.
package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Kind string

const (
	KindFunction         Kind = "function"
	KindView             Kind = "view"
	KindMaterializedView Kind = "materialized_view"
	KindTrigger          Kind = "trigger"
	KindPolicy           Kind = "policy"
	KindExtension        Kind = "extension"
	KindGrantTable       Kind = "grant_table"
)

// Kinds lists every supported kind in canonical order.
func Kinds() []Kind {
	return []Kind{
		KindFunction,
		KindView,
		KindMaterializedView,
		KindTrigger,
		KindPolicy,
		KindExtension,
		KindGrantTable,
	}
}

// ParseKind maps a kind name to its Kind value.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

// Capability describes what the synthesizer may do with a kind.
type Capability struct {
	// InPlaceReplace: the database can swap the definition without dropping
	// dependents (CREATE OR REPLACE).
	InPlaceReplace bool
	// RequiresParent: the identity includes a parent relation (ON table).
	RequiresParent bool
	// AdditiveOnly: changes are granted/revoked, never replaced.
	AdditiveOnly bool
}

// CREATE OR REPLACE VIEW cannot change the column set, so views are handled
// as drop+create rather than in-place replace.
var capabilityTable = map[Kind]Capability{
	KindFunction:         {InPlaceReplace: true},
	KindView:             {},
	KindMaterializedView: {},
	KindTrigger:          {RequiresParent: true},
	KindPolicy:           {RequiresParent: true},
	KindExtension:        {},
	KindGrantTable:       {RequiresParent: true, AdditiveOnly: true},
}

// Capabilities returns the capability row for a kind.
func Capabilities(k Kind) Capability {
	return capabilityTable[k]
}

// Identity is the key that pairs a declared entity with its reflected
// counterpart. Parent is set only for kinds scoped to a relation.
type Identity struct {
	Kind      Kind   `json:"kind"`
	Schema    string `json:"schema"`
	Signature string `json:"signature"`
	Parent    string `json:"parent,omitempty"`
}

// Key returns the identity in a stable, comparable form.
func (id Identity) Key() string {
	if id.Parent != "" {
		return fmt.Sprintf("%s:%s.%s@%s", id.Kind, id.Schema, id.Signature, id.Parent)
	}
	return fmt.Sprintf("%s:%s.%s", id.Kind, id.Schema, id.Signature)
}

func (id Identity) String() string {
	if id.Parent != "" {
		return fmt.Sprintf("%s %s.%s on %s", id.Kind, id.Schema, id.Signature, id.Parent)
	}
	return fmt.Sprintf("%s %s.%s", id.Kind, id.Schema, id.Signature)
}

// Entity is a single replaceable schema object declaration.
type Entity interface {
	Kind() Kind
	Identity() Identity
	// DefinitionHash returns a digest of the normalized definition plus kind
	// specific extras. Identity pairs entities; the hash decides Unchanged
	// versus Modified.
	DefinitionHash() string
	CreateSQL() string
	DropSQL() string
	Validate() error
}

// DefinitionOf returns the declared SQL body of any entity kind, unmodified.
// Extensions and grants have no textual definition.
func DefinitionOf(e Entity) string {
	switch v := e.(type) {
	case *Function:
		return v.Definition
	case *View:
		return v.Definition
	case *MaterializedView:
		return v.Definition
	case *Trigger:
		return v.Definition
	case *Policy:
		return v.Definition
	default:
		return ""
	}
}

// Replacer is implemented by kinds whose capability row allows in-place
// replacement.
type Replacer interface {
	Entity
	ReplaceSQL() string
}

var (
	ErrInvalidIdentity      = errors.New("invalid identity")
	ErrInvalidDefinition    = errors.New("invalid definition")
	ErrDuplicateIdentity    = errors.New("duplicate identity")
	ErrDependencyCycle      = errors.New("dependency cycle")
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

// normalizeDefinition produces the comparison form of a definition:
// whitespace collapsed, terminating semicolon removed, case folded. The
// executable form is never normalized.
func normalizeDefinition(def string) string {
	return strings.ToLower(NormalizeWhitespace(StripTerminatingSemicolon(def)))
}

func hashParts(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func sortedCopy(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	sort.Strings(out)
	return out
}

// cleanIdent strips surrounding quotes and whitespace from an identifier,
// preserving its case.
func cleanIdent(ident string) string {
	return StripDoubleQuotes(strings.TrimSpace(ident))
}

// requireQualified validates a schema-qualified relation reference such as
// "public.account" and returns it in unquoted form.
func requireQualified(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	schema, name, ok := strings.Cut(ref, ".")
	if !ok || cleanIdent(schema) == "" || cleanIdent(name) == "" {
		return "", fmt.Errorf("%w: relation %q must be schema qualified", ErrInvalidIdentity, ref)
	}
	return cleanIdent(schema) + "." + cleanIdent(name), nil
}
