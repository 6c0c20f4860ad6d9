package entity

import (
	"fmt"
	"strings"
)

// Policy is a row level security policy on a parent relation. Definition is
// the clause after the ON target (AS PERMISSIVE FOR SELECT TO role USING
// (...) WITH CHECK (...)).
type Policy struct {
	Schema     string
	Signature  string
	OnEntity   string
	Definition string
}

func NewPolicy(schema, signature, onEntity, definition string) *Policy {
	return &Policy{
		Schema:     cleanIdent(schema),
		Signature:  cleanIdent(signature),
		OnEntity:   strings.TrimSpace(onEntity),
		Definition: StripTerminatingSemicolon(definition),
	}
}

func (p *Policy) Kind() Kind { return KindPolicy }

func (p *Policy) Identity() Identity {
	return Identity{
		Kind:      KindPolicy,
		Schema:    p.Schema,
		Signature: p.Signature,
		Parent:    CoerceToUnquoted(p.OnEntity),
	}
}

func (p *Policy) DefinitionHash() string {
	return hashParts(
		normalizeDefinition(CoerceToUnquoted(p.Definition)),
		strings.ToLower(CoerceToUnquoted(p.OnEntity)),
	)
}

func (p *Policy) CreateSQL() string {
	return "CREATE POLICY " + CoerceToQuoted(p.Signature) + " ON " + CoerceToQuoted(p.OnEntity) + " " + strings.TrimSpace(p.Definition)
}

func (p *Policy) DropSQL() string {
	return "DROP POLICY " + CoerceToQuoted(p.Signature) + " ON " + CoerceToQuoted(p.OnEntity)
}

func (p *Policy) Validate() error {
	if p.Schema == "" || p.Signature == "" {
		return fmt.Errorf("%w: policy needs schema and signature, got %q.%q", ErrInvalidIdentity, p.Schema, p.Signature)
	}
	if _, err := requireQualified(p.OnEntity); err != nil {
		return fmt.Errorf("policy %s.%s: %w", p.Schema, p.Signature, err)
	}
	if strings.TrimSpace(p.Definition) == "" {
		return fmt.Errorf("%w: policy %s.%s has an empty definition", ErrInvalidDefinition, p.Schema, p.Signature)
	}
	return nil
}
