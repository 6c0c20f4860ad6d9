package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"pg_entity_sync/entity"
)

const policiesQuery = `
SELECT schemaname, tablename, policyname, permissive, roles, cmd, qual, with_check
FROM pg_policies
WHERE schemaname NOT LIKE 'pg\_%'
  AND schemaname <> 'information_schema'
  AND ($1::text[] IS NULL OR schemaname = ANY($1))
  AND ($2::text[] IS NULL OR NOT schemaname = ANY($2))
ORDER BY schemaname, tablename, policyname`

func listPolicies(ctx context.Context, tx pgx.Tx, s scope) ([]entity.Entity, error) {
	rows, err := tx.Query(ctx, policiesQuery, s.include, s.exclude)
	if err != nil {
		return nil, fmt.Errorf("query policies: %w", err)
	}
	defer rows.Close()

	var out []entity.Entity
	for rows.Next() {
		var (
			schema, table, name, permissive, cmd string
			roles                                []string
			qual, withCheck                      *string
		)
		if err := rows.Scan(&schema, &table, &name, &permissive, &roles, &cmd, &qual, &withCheck); err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		clause := policyClause(permissive, roles, cmd, qual, withCheck)
		out = append(out, entity.NewPolicy(schema, name, schema+"."+table, clause))
	}
	return out, rows.Err()
}

// policyClause rebuilds a policy's clause from pg_policies columns in the
// canonical AS/FOR/TO/USING/WITH CHECK order. Declarations should use the
// same order or the hash never settles. A lone PUBLIC role is the default
// and stays implicit.
func policyClause(permissive string, roles []string, cmd string, qual, withCheck *string) string {
	parts := []string{"AS " + strings.ToUpper(permissive), "FOR " + strings.ToUpper(cmd)}
	if len(roles) > 0 && !(len(roles) == 1 && strings.EqualFold(roles[0], "public")) {
		parts = append(parts, "TO "+strings.Join(roles, ", "))
	}
	if qual != nil {
		parts = append(parts, "USING ("+*qual+")")
	}
	if withCheck != nil {
		parts = append(parts, "WITH CHECK ("+*withCheck+")")
	}
	return strings.Join(parts, " ")
}

const tableGrantsQuery = `
SELECT table_schema, table_name, grantee, privilege_type, is_grantable
FROM information_schema.role_table_grants
WHERE grantor <> grantee
  AND privilege_type = ANY('{SELECT,INSERT,UPDATE,DELETE,TRUNCATE,REFERENCES,TRIGGER}'::text[])
  AND table_schema NOT LIKE 'pg\_%'
  AND table_schema <> 'information_schema'
  AND ($1::text[] IS NULL OR table_schema = ANY($1))
  AND ($2::text[] IS NULL OR NOT table_schema = ANY($2))
ORDER BY table_schema, table_name, grantee, privilege_type`

const columnGrantsQuery = `
SELECT table_schema, table_name, grantee, privilege_type, is_grantable, column_name
FROM information_schema.role_column_grants
WHERE grantor <> grantee
  AND privilege_type = ANY('{SELECT,INSERT,UPDATE,REFERENCES}'::text[])
  AND table_schema NOT LIKE 'pg\_%'
  AND table_schema <> 'information_schema'
  AND ($1::text[] IS NULL OR table_schema = ANY($1))
  AND ($2::text[] IS NULL OR NOT table_schema = ANY($2))
ORDER BY table_schema, table_name, grantee, privilege_type, column_name`

// listTableGrants merges table level and column level ACL entries into one
// grant per (schema, table, role, privilege). role_column_grants repeats
// table wide privileges for every column, so any pairing already covered
// at table level keeps its table level form.
func listTableGrants(ctx context.Context, tx pgx.Tx, s scope) ([]entity.Entity, error) {
	rows, err := tx.Query(ctx, tableGrantsQuery, s.include, s.exclude)
	if err != nil {
		return nil, fmt.Errorf("query table grants: %w", err)
	}
	defer rows.Close()

	var out []entity.Entity
	tableLevel := map[string]bool{}
	for rows.Next() {
		var schema, table, grantee, privilege, grantable string
		if err := rows.Scan(&schema, &table, &grantee, &privilege, &grantable); err != nil {
			return nil, fmt.Errorf("scan table grant: %w", err)
		}
		g := entity.NewGrantTable(schema, table, nil, grantee, privilege, grantable == "YES")
		tableLevel[g.Identity().Key()] = true
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	colRows, err := tx.Query(ctx, columnGrantsQuery, s.include, s.exclude)
	if err != nil {
		return nil, fmt.Errorf("query column grants: %w", err)
	}
	defer colRows.Close()

	type colGrant struct {
		grant   *entity.GrantTable
		columns []string
	}
	var order []string
	grouped := map[string]*colGrant{}
	for colRows.Next() {
		var schema, table, grantee, privilege, grantable, column string
		if err := colRows.Scan(&schema, &table, &grantee, &privilege, &grantable, &column); err != nil {
			return nil, fmt.Errorf("scan column grant: %w", err)
		}
		g := entity.NewGrantTable(schema, table, nil, grantee, privilege, grantable == "YES")
		key := g.Identity().Key()
		if tableLevel[key] {
			continue
		}
		cg, ok := grouped[key]
		if !ok {
			cg = &colGrant{grant: g}
			grouped[key] = cg
			order = append(order, key)
		}
		cg.columns = append(cg.columns, column)
		if grantable == "YES" {
			cg.grant.WithGrantOption = true
		}
	}
	if err := colRows.Err(); err != nil {
		return nil, err
	}

	for _, key := range order {
		cg := grouped[key]
		cg.grant.Columns = cg.columns
		out = append(out, cg.grant)
	}
	return out, nil
}
