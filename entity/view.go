package entity

import (
	"fmt"
	"strings"
)

// View is a plain SQL view. Definition is the defining SELECT statement.
// Views are synthesized as drop+create on change because CREATE OR REPLACE
// VIEW cannot alter the output column set.
type View struct {
	Schema     string
	Signature  string
	Definition string
}

func NewView(schema, signature, definition string) *View {
	return &View{
		Schema:     cleanIdent(schema),
		Signature:  cleanIdent(signature),
		Definition: StripTerminatingSemicolon(definition),
	}
}

func (v *View) Kind() Kind { return KindView }

func (v *View) Identity() Identity {
	return Identity{Kind: KindView, Schema: v.Schema, Signature: v.Signature}
}

func (v *View) DefinitionHash() string {
	return hashParts(normalizeDefinition(v.Definition))
}

func (v *View) CreateSQL() string {
	return "CREATE VIEW " + v.qualifiedName() + " AS " + strings.TrimSpace(v.Definition)
}

func (v *View) DropSQL() string {
	return "DROP VIEW " + v.qualifiedName()
}

func (v *View) Validate() error {
	if v.Schema == "" || v.Signature == "" {
		return fmt.Errorf("%w: view needs schema and signature, got %q.%q", ErrInvalidIdentity, v.Schema, v.Signature)
	}
	if strings.TrimSpace(v.Definition) == "" {
		return fmt.Errorf("%w: view %s.%s has an empty definition", ErrInvalidDefinition, v.Schema, v.Signature)
	}
	return nil
}

func (v *View) qualifiedName() string {
	return CoerceToQuoted(v.Schema) + "." + CoerceToQuoted(v.Signature)
}
