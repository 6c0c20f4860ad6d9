package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFunctionSQL(t *testing.T) {
	fn := NewFunction("public", "to_lower(text)", "returns text as $$ select lower($1) $$ language sql")

	assert.Equal(t,
		`CREATE FUNCTION "public"."to_lower"(text) returns text as $$ select lower($1) $$ language sql`,
		fn.CreateSQL(),
	)
	assert.Equal(t,
		`CREATE OR REPLACE FUNCTION "public"."to_lower"(text) returns text as $$ select lower($1) $$ language sql`,
		fn.ReplaceSQL(),
	)
	assert.Equal(t, `DROP FUNCTION "public"."to_lower"(text)`, fn.DropSQL())
}

func TestViewSQL(t *testing.T) {
	v := NewView("public", "active_accounts", "select * from public.account where active;")

	assert.Equal(t,
		`CREATE VIEW "public"."active_accounts" AS select * from public.account where active`,
		v.CreateSQL(),
	)
	assert.Equal(t, `DROP VIEW "public"."active_accounts"`, v.DropSQL())
}

func TestMaterializedViewSQL(t *testing.T) {
	t.Run("defaults populate", func(t *testing.T) {
		mv := NewMaterializedView("public", "mat", "select 1")
		assert.Equal(t,
			`CREATE MATERIALIZED VIEW "public"."mat" AS select 1 WITH DATA`,
			mv.CreateSQL(),
		)
	})

	t.Run("storage parameters and no data", func(t *testing.T) {
		mv := NewMaterializedView("DEV", "weather", "select 1",
			WithData(false), WithStorageParameters("fillfactor=70", "autovacuum_enabled"))
		assert.Equal(t,
			`CREATE MATERIALIZED VIEW "DEV"."weather" WITH (fillfactor=70, autovacuum_enabled) AS select 1 WITH NO DATA`,
			mv.CreateSQL(),
		)
		assert.Equal(t, `DROP MATERIALIZED VIEW "DEV"."weather"`, mv.DropSQL())
	})
}

func TestTriggerSQL(t *testing.T) {
	trg := NewTrigger("public", "trg_audit", "public.account",
		"before insert on public.account for each row execute function public.audit_row()")

	assert.Equal(t,
		`CREATE TRIGGER "trg_audit" before insert on public.account for each row execute function public.audit_row()`,
		trg.CreateSQL(),
	)
	assert.Equal(t, `DROP TRIGGER "trg_audit" ON "public"."account"`, trg.DropSQL())
}

func TestPolicySQL(t *testing.T) {
	p := NewPolicy("public", "p_read", "public.account", "for select using (true)")

	assert.Equal(t,
		`CREATE POLICY "p_read" ON "public"."account" for select using (true)`,
		p.CreateSQL(),
	)
	assert.Equal(t, `DROP POLICY "p_read" ON "public"."account"`, p.DropSQL())
}

func TestExtensionSQL(t *testing.T) {
	ext := NewExtension("extensions", "citext")

	assert.Equal(t, `CREATE EXTENSION "citext" WITH SCHEMA "extensions"`, ext.CreateSQL())
	assert.Equal(t, `DROP EXTENSION "citext"`, ext.DropSQL())
}

func TestGrantTableSQL(t *testing.T) {
	t.Run("table level", func(t *testing.T) {
		g := NewGrantTable("public", "account", nil, "anon", PrivilegeSelect, false)
		assert.Equal(t, `GRANT SELECT ON "public"."account" TO "anon"`, g.CreateSQL())
		assert.Equal(t, `REVOKE SELECT ON "public"."account" FROM "anon"`, g.DropSQL())
	})

	t.Run("column level sorts columns", func(t *testing.T) {
		g := NewGrantTable("public", "account", []string{"id", "email"}, "anon", PrivilegeSelect, false)
		assert.Equal(t, `GRANT SELECT ("email", "id") ON "public"."account" TO "anon"`, g.CreateSQL())
		assert.Equal(t, `REVOKE SELECT ("email", "id") ON "public"."account" FROM "anon"`, g.DropSQL())
	})

	t.Run("subset grant and revoke", func(t *testing.T) {
		g := NewGrantTable("public", "account", []string{"id", "email"}, "anon", PrivilegeSelect, false)
		assert.Equal(t, `GRANT SELECT ("email") ON "public"."account" TO "anon"`, g.GrantColumnsSQL([]string{"email"}))
		assert.Equal(t, `REVOKE SELECT ("email") ON "public"."account" FROM "anon"`, g.RevokeColumnsSQL([]string{"email"}))
	})

	t.Run("public role stays bare", func(t *testing.T) {
		g := NewGrantTable("public", "account", nil, "PUBLIC", PrivilegeSelect, false)
		assert.Equal(t, `GRANT SELECT ON "public"."account" TO PUBLIC`, g.CreateSQL())
	})

	t.Run("with grant option", func(t *testing.T) {
		g := NewGrantTable("public", "account", nil, "admin", PrivilegeUpdate, true)
		assert.Equal(t, `GRANT UPDATE ON "public"."account" TO "admin" WITH GRANT OPTION`, g.CreateSQL())
		assert.Equal(t, `REVOKE UPDATE ON "public"."account" FROM "admin"`, g.DropSQL())
	})
}
