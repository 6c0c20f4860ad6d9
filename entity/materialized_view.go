package entity

import (
	"fmt"
	"strings"
)

// MaterializedView is a materialized view with optional storage parameters
// and a populate-on-create flag. StorageParameters holds "name" or
// "name=value" elements in declaration order.
type MaterializedView struct {
	Schema            string
	Signature         string
	Definition        string
	WithData          bool
	StorageParameters []string
}

// MatViewOption adjusts optional materialized view fields.
type MatViewOption func(*MaterializedView)

// WithData controls the WITH [NO] DATA clause. Defaults to populating.
func WithData(populate bool) MatViewOption {
	return func(mv *MaterializedView) { mv.WithData = populate }
}

// WithStorageParameters sets the storage parameter list rendered into the
// WITH (...) clause.
func WithStorageParameters(params ...string) MatViewOption {
	return func(mv *MaterializedView) { mv.StorageParameters = params }
}

func NewMaterializedView(schema, signature, definition string, opts ...MatViewOption) *MaterializedView {
	mv := &MaterializedView{
		Schema:     cleanIdent(schema),
		Signature:  cleanIdent(signature),
		Definition: StripTerminatingSemicolon(definition),
		WithData:   true,
	}
	for _, opt := range opts {
		opt(mv)
	}
	return mv
}

func (mv *MaterializedView) Kind() Kind { return KindMaterializedView }

func (mv *MaterializedView) Identity() Identity {
	return Identity{Kind: KindMaterializedView, Schema: mv.Schema, Signature: mv.Signature}
}

func (mv *MaterializedView) DefinitionHash() string {
	parts := []string{
		normalizeDefinition(mv.Definition),
		fmt.Sprintf("with_data=%t", mv.WithData),
	}
	for _, p := range sortedCopy(mv.StorageParameters) {
		parts = append(parts, strings.ToLower(NormalizeWhitespace(p)))
	}
	return hashParts(parts...)
}

func (mv *MaterializedView) CreateSQL() string {
	data := " WITH DATA"
	if !mv.WithData {
		data = " WITH NO DATA"
	}
	return "CREATE MATERIALIZED VIEW " + mv.qualifiedName() +
		FormatStorageParameters(mv.StorageParameters) +
		" AS " + strings.TrimSpace(mv.Definition) + data
}

func (mv *MaterializedView) DropSQL() string {
	return "DROP MATERIALIZED VIEW " + mv.qualifiedName()
}

func (mv *MaterializedView) Validate() error {
	if mv.Schema == "" || mv.Signature == "" {
		return fmt.Errorf("%w: materialized view needs schema and signature, got %q.%q", ErrInvalidIdentity, mv.Schema, mv.Signature)
	}
	if strings.TrimSpace(mv.Definition) == "" {
		return fmt.Errorf("%w: materialized view %s.%s has an empty definition", ErrInvalidDefinition, mv.Schema, mv.Signature)
	}
	for _, p := range mv.StorageParameters {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%w: materialized view %s.%s has an empty storage parameter", ErrInvalidDefinition, mv.Schema, mv.Signature)
		}
	}
	return nil
}

func (mv *MaterializedView) qualifiedName() string {
	return CoerceToQuoted(mv.Schema) + "." + CoerceToQuoted(mv.Signature)
}
