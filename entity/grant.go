package entity

import (
	"fmt"
	"strings"
)

// Table privileges that may carry a column list.
const (
	PrivilegeSelect     = "SELECT"
	PrivilegeInsert     = "INSERT"
	PrivilegeUpdate     = "UPDATE"
	PrivilegeDelete     = "DELETE"
	PrivilegeTruncate   = "TRUNCATE"
	PrivilegeReferences = "REFERENCES"
	PrivilegeTrigger    = "TRIGGER"
)

var knownPrivileges = map[string]bool{
	PrivilegeSelect:     true,
	PrivilegeInsert:     true,
	PrivilegeUpdate:     true,
	PrivilegeDelete:     true,
	PrivilegeTruncate:   true,
	PrivilegeReferences: true,
	PrivilegeTrigger:    true,
}

// GrantTable declares one privilege for one role on one table, optionally
// restricted to a column set. Grants are additive: a changed column set is
// reconciled with GRANT/REVOKE of the difference, never drop+create.
type GrantTable struct {
	Schema          string
	Table           string
	Columns         []string
	Role            string
	Privilege       string
	WithGrantOption bool
}

func NewGrantTable(schema, table string, columns []string, role, privilege string, withGrantOption bool) *GrantTable {
	cleaned := make([]string, 0, len(columns))
	for _, c := range columns {
		cleaned = append(cleaned, cleanIdent(c))
	}
	return &GrantTable{
		Schema:          cleanIdent(schema),
		Table:           cleanIdent(table),
		Columns:         cleaned,
		Role:            cleanIdent(role),
		Privilege:       strings.ToUpper(strings.TrimSpace(privilege)),
		WithGrantOption: withGrantOption,
	}
}

func (g *GrantTable) Kind() Kind { return KindGrantTable }

// Identity pairs grants at (schema, table, role, privilege) granularity so a
// column set change is a Modified pairing, not a drop plus create.
func (g *GrantTable) Identity() Identity {
	return Identity{
		Kind:      KindGrantTable,
		Schema:    g.Schema,
		Signature: fmt.Sprintf("%s:%s:%s", g.Table, g.Role, g.Privilege),
		Parent:    g.Schema + "." + g.Table,
	}
}

func (g *GrantTable) DefinitionHash() string {
	parts := []string{fmt.Sprintf("grant_option=%t", g.WithGrantOption)}
	for _, c := range sortedCopy(g.Columns) {
		parts = append(parts, c)
	}
	return hashParts(parts...)
}

func (g *GrantTable) CreateSQL() string {
	return g.GrantColumnsSQL(g.Columns)
}

func (g *GrantTable) DropSQL() string {
	return g.RevokeColumnsSQL(g.Columns)
}

// GrantColumnsSQL renders a GRANT restricted to the given columns; an empty
// set grants at table level.
func (g *GrantTable) GrantColumnsSQL(columns []string) string {
	stmt := "GRANT " + g.Privilege + columnList(columns) + " ON " + g.qualifiedTable() + " TO " + g.roleName()
	if g.WithGrantOption {
		stmt += " WITH GRANT OPTION"
	}
	return stmt
}

// RevokeColumnsSQL renders the matching REVOKE for the given columns.
func (g *GrantTable) RevokeColumnsSQL(columns []string) string {
	return "REVOKE " + g.Privilege + columnList(columns) + " ON " + g.qualifiedTable() + " FROM " + g.roleName()
}

func (g *GrantTable) Validate() error {
	if g.Schema == "" || g.Table == "" {
		return fmt.Errorf("%w: grant needs schema and table, got %q.%q", ErrInvalidIdentity, g.Schema, g.Table)
	}
	if g.Role == "" {
		return fmt.Errorf("%w: grant on %s.%s has no role", ErrInvalidIdentity, g.Schema, g.Table)
	}
	if !knownPrivileges[g.Privilege] {
		return fmt.Errorf("%w: grant on %s.%s has unknown privilege %q", ErrInvalidDefinition, g.Schema, g.Table, g.Privilege)
	}
	for _, c := range g.Columns {
		if c == "" {
			return fmt.Errorf("%w: grant on %s.%s has an empty column name", ErrInvalidDefinition, g.Schema, g.Table)
		}
	}
	return nil
}

func (g *GrantTable) qualifiedTable() string {
	return CoerceToQuoted(g.Schema) + "." + CoerceToQuoted(g.Table)
}

// roleName quotes the grantee except for the PUBLIC pseudo role.
func (g *GrantTable) roleName() string {
	if strings.EqualFold(g.Role, "public") {
		return "PUBLIC"
	}
	return CoerceToQuoted(g.Role)
}

func columnList(columns []string) string {
	if len(columns) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(columns))
	for _, c := range sortedCopy(columns) {
		quoted = append(quoted, CoerceToQuoted(c))
	}
	return " (" + strings.Join(quoted, ", ") + ")"
}
