package entity

import (
	"fmt"
	"strings"
)

// Trigger is scoped to a parent relation: OnEntity names the schema
// qualified table or view the trigger fires on, and Definition is the
// clause after the trigger name (BEFORE INSERT ON ... FOR EACH ROW ...).
type Trigger struct {
	Schema     string
	Signature  string
	OnEntity   string
	Definition string
}

func NewTrigger(schema, signature, onEntity, definition string) *Trigger {
	return &Trigger{
		Schema:     cleanIdent(schema),
		Signature:  cleanIdent(signature),
		OnEntity:   strings.TrimSpace(onEntity),
		Definition: StripTerminatingSemicolon(definition),
	}
}

func (t *Trigger) Kind() Kind { return KindTrigger }

func (t *Trigger) Identity() Identity {
	return Identity{
		Kind:      KindTrigger,
		Schema:    t.Schema,
		Signature: t.Signature,
		Parent:    CoerceToUnquoted(t.OnEntity),
	}
}

func (t *Trigger) DefinitionHash() string {
	return hashParts(
		normalizeDefinition(CoerceToUnquoted(t.Definition)),
		strings.ToLower(CoerceToUnquoted(t.OnEntity)),
	)
}

func (t *Trigger) CreateSQL() string {
	return "CREATE TRIGGER " + CoerceToQuoted(t.Signature) + " " + strings.TrimSpace(t.Definition)
}

func (t *Trigger) DropSQL() string {
	return "DROP TRIGGER " + CoerceToQuoted(t.Signature) + " ON " + CoerceToQuoted(t.OnEntity)
}

func (t *Trigger) Validate() error {
	if t.Schema == "" || t.Signature == "" {
		return fmt.Errorf("%w: trigger needs schema and signature, got %q.%q", ErrInvalidIdentity, t.Schema, t.Signature)
	}
	if _, err := requireQualified(t.OnEntity); err != nil {
		return fmt.Errorf("trigger %s.%s: %w", t.Schema, t.Signature, err)
	}
	if strings.TrimSpace(t.Definition) == "" {
		return fmt.Errorf("%w: trigger %s.%s has an empty definition", ErrInvalidDefinition, t.Schema, t.Signature)
	}
	// The ON clause in the definition must target the declared parent, or
	// the rendered DDL and the identity would disagree.
	canon := " " + strings.ToLower(NormalizeWhitespace(CoerceToUnquoted(t.Definition))) + " "
	needle := " on " + strings.ToLower(CoerceToUnquoted(t.OnEntity)) + " "
	if !strings.Contains(canon, needle) {
		return fmt.Errorf("%w: trigger %s.%s definition does not contain %q", ErrInvalidDefinition, t.Schema, t.Signature, "ON "+t.OnEntity)
	}
	return nil
}
