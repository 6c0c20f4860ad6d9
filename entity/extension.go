package entity

import "fmt"

// Extension installs a named extension into a schema. Extensions carry no
// definition body; version upgrades are outside diff scope.
type Extension struct {
	Schema    string
	Signature string
}

func NewExtension(schema, signature string) *Extension {
	return &Extension{Schema: cleanIdent(schema), Signature: cleanIdent(signature)}
}

func (e *Extension) Kind() Kind { return KindExtension }

func (e *Extension) Identity() Identity {
	return Identity{Kind: KindExtension, Schema: e.Schema, Signature: e.Signature}
}

func (e *Extension) DefinitionHash() string {
	return hashParts(normalizeDefinition(""))
}

func (e *Extension) CreateSQL() string {
	return "CREATE EXTENSION " + CoerceToQuoted(e.Signature) + " WITH SCHEMA " + CoerceToQuoted(e.Schema)
}

func (e *Extension) DropSQL() string {
	return "DROP EXTENSION " + CoerceToQuoted(e.Signature)
}

func (e *Extension) Validate() error {
	if e.Schema == "" || e.Signature == "" {
		return fmt.Errorf("%w: extension needs schema and signature, got %q.%q", ErrInvalidIdentity, e.Schema, e.Signature)
	}
	return nil
}
