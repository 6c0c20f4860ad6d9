package entity

import (
	"fmt"
	"strings"
)

// Function is a SQL or PL/pgSQL function. Signature carries the name plus
// the parenthesized argument list ("to_lower(text)"); Definition is
// everything after the argument list (RETURNS ... AS ... LANGUAGE ...).
type Function struct {
	Schema     string
	Signature  string
	Definition string
}

func NewFunction(schema, signature, definition string) *Function {
	return &Function{
		Schema:     cleanIdent(schema),
		Signature:  strings.TrimSpace(signature),
		Definition: StripTerminatingSemicolon(definition),
	}
}

func (f *Function) Kind() Kind { return KindFunction }

func (f *Function) Identity() Identity {
	name, args, err := splitCallSignature(f.Signature)
	if err != nil {
		return Identity{Kind: KindFunction, Schema: f.Schema, Signature: f.Signature}
	}
	return Identity{
		Kind:      KindFunction,
		Schema:    f.Schema,
		Signature: name + "(" + strings.ToLower(NormalizeWhitespace(args)) + ")",
	}
}

func (f *Function) DefinitionHash() string {
	return hashParts(normalizeDefinition(f.Definition))
}

func (f *Function) CreateSQL() string {
	return "CREATE FUNCTION " + f.literalSignature() + " " + strings.TrimSpace(f.Definition)
}

func (f *Function) ReplaceSQL() string {
	return "CREATE OR REPLACE FUNCTION " + f.literalSignature() + " " + strings.TrimSpace(f.Definition)
}

func (f *Function) DropSQL() string {
	return "DROP FUNCTION " + f.literalSignature()
}

func (f *Function) Validate() error {
	if f.Schema == "" {
		return fmt.Errorf("%w: function %q has no schema", ErrInvalidIdentity, f.Signature)
	}
	name, _, err := splitCallSignature(f.Signature)
	if err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("%w: function signature %q has no name", ErrInvalidIdentity, f.Signature)
	}
	if strings.TrimSpace(f.Definition) == "" {
		return fmt.Errorf("%w: function %s.%s has an empty definition", ErrInvalidDefinition, f.Schema, f.Signature)
	}
	return nil
}

// literalSignature renders the schema-qualified call signature with the
// declared argument list verbatim: "schema"."name"(text).
func (f *Function) literalSignature() string {
	name, args, err := splitCallSignature(f.Signature)
	if err != nil {
		return CoerceToQuoted(f.Schema) + "." + CoerceToQuoted(f.Signature)
	}
	return CoerceToQuoted(f.Schema) + "." + CoerceToQuoted(name) + "(" + args + ")"
}

// splitCallSignature separates "name(arg list)" into its name and raw
// argument list. The parenthesized list is required, even if empty.
func splitCallSignature(signature string) (name, args string, err error) {
	signature = strings.TrimSpace(signature)
	open := strings.IndexByte(signature, '(')
	if open < 0 || !strings.HasSuffix(signature, ")") {
		return "", "", fmt.Errorf("%w: signature %q must include a parenthesized argument list", ErrInvalidIdentity, signature)
	}
	name = cleanIdent(signature[:open])
	args = strings.TrimSpace(signature[open+1 : len(signature)-1])
	return name, args, nil
}
