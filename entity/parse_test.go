package entity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMaterializedView(t *testing.T) {
	t.Run("full grammar", func(t *testing.T) {
		e, err := Parse(`CREATE MATERIALIZED VIEW "DEV".weather WITH (fillfactor=70, autovacuum_enabled) AS select 1 WITH NO DATA;`)
		require.NoError(t, err)
		mv, ok := e.(*MaterializedView)
		require.True(t, ok)
		assert.Equal(t, "DEV", mv.Schema)
		assert.Equal(t, "weather", mv.Signature)
		assert.Equal(t, "select 1", mv.Definition)
		assert.False(t, mv.WithData)
		assert.Equal(t, []string{"fillfactor=70", "autovacuum_enabled"}, mv.StorageParameters)
	})

	t.Run("defaults to with data", func(t *testing.T) {
		e, err := Parse("create materialized view public.mat as select a, b from public.t")
		require.NoError(t, err)
		mv := e.(*MaterializedView)
		assert.True(t, mv.WithData)
		assert.Empty(t, mv.StorageParameters)
	})

	t.Run("explicit with data", func(t *testing.T) {
		e, err := Parse("create materialized view public.mat as select 1 with data")
		require.NoError(t, err)
		mv := e.(*MaterializedView)
		assert.True(t, mv.WithData)
		assert.Equal(t, "select 1", mv.Definition)
	})

	t.Run("typo fails", func(t *testing.T) {
		_, err := Parse("create materialized vew public.mat as select 1")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidDefinition))
	})

	t.Run("unqualified name fails", func(t *testing.T) {
		_, err := Parse("create materialized view mat as select 1")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidDefinition))
	})
}

func TestParseView(t *testing.T) {
	e, err := Parse("CREATE OR REPLACE VIEW public.active AS select * from public.account where active;")
	require.NoError(t, err)
	v, ok := e.(*View)
	require.True(t, ok)
	assert.Equal(t, "public", v.Schema)
	assert.Equal(t, "active", v.Signature)
	assert.Equal(t, "select * from public.account where active", v.Definition)
}

func TestParseFunction(t *testing.T) {
	t.Run("arguments and body", func(t *testing.T) {
		e, err := Parse("create or replace function public.add(a integer, b integer) returns integer as $$ select a + b $$ language sql")
		require.NoError(t, err)
		fn, ok := e.(*Function)
		require.True(t, ok)
		assert.Equal(t, "public", fn.Schema)
		assert.Equal(t, "add(a integer, b integer)", fn.Signature)
		assert.Equal(t, "returns integer as $$ select a + b $$ language sql", fn.Definition)
		assert.Equal(t, "function:public.add(a integer, b integer)", fn.Identity().Key())
	})

	t.Run("empty argument list", func(t *testing.T) {
		e, err := Parse("create function public.one() returns integer as $$ select 1 $$ language sql")
		require.NoError(t, err)
		assert.Equal(t, "function:public.one()", e.Identity().Key())
	})

	t.Run("parenthesized default values stay balanced", func(t *testing.T) {
		e, err := Parse("create function public.pad(s text, fill text default repeat(' ', 2)) returns text as $$ select s || fill $$ language sql")
		require.NoError(t, err)
		fn := e.(*Function)
		assert.Equal(t, "pad(s text, fill text default repeat(' ', 2))", fn.Signature)
	})

	t.Run("missing argument list fails", func(t *testing.T) {
		_, err := Parse("create function public.broken returns integer as $$ select 1 $$ language sql")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidDefinition))
	})
}

func TestParseTrigger(t *testing.T) {
	e, err := Parse("create trigger trg_audit before insert on public.account for each row execute function public.audit_row()")
	require.NoError(t, err)
	trg, ok := e.(*Trigger)
	require.True(t, ok)
	assert.Equal(t, "public", trg.Schema)
	assert.Equal(t, "trg_audit", trg.Signature)
	assert.Equal(t, "public.account", trg.OnEntity)
	assert.Equal(t, "public.account", trg.Identity().Parent)

	_, err = Parse("create trigger trg_audit before insert on account for each row execute function f()")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidDefinition))
}

func TestParsePolicy(t *testing.T) {
	e, err := Parse(`create policy p_read on public.account for select to anon using (true)`)
	require.NoError(t, err)
	p, ok := e.(*Policy)
	require.True(t, ok)
	assert.Equal(t, "public", p.Schema)
	assert.Equal(t, "p_read", p.Signature)
	assert.Equal(t, "public.account", p.OnEntity)
	assert.Equal(t, "for select to anon using (true)", p.Definition)
}

func TestParseExtension(t *testing.T) {
	t.Run("explicit schema", func(t *testing.T) {
		e, err := Parse("create extension if not exists citext with schema extensions")
		require.NoError(t, err)
		ext := e.(*Extension)
		assert.Equal(t, "extensions", ext.Schema)
		assert.Equal(t, "citext", ext.Signature)
	})

	t.Run("defaults to public", func(t *testing.T) {
		e, err := Parse("create extension pg_trgm")
		require.NoError(t, err)
		ext := e.(*Extension)
		assert.Equal(t, "public", ext.Schema)
	})
}

func TestParseGrant(t *testing.T) {
	t.Run("column grant with option", func(t *testing.T) {
		e, err := Parse("grant select (id, email) on public.account to anon with grant option")
		require.NoError(t, err)
		g, ok := e.(*GrantTable)
		require.True(t, ok)
		assert.Equal(t, "public", g.Schema)
		assert.Equal(t, "account", g.Table)
		assert.Equal(t, []string{"id", "email"}, g.Columns)
		assert.Equal(t, "anon", g.Role)
		assert.Equal(t, PrivilegeSelect, g.Privilege)
		assert.True(t, g.WithGrantOption)
	})

	t.Run("table level grant", func(t *testing.T) {
		e, err := Parse(`grant update on table public.account to "writer"`)
		require.NoError(t, err)
		g := e.(*GrantTable)
		assert.Empty(t, g.Columns)
		assert.Equal(t, "writer", g.Role)
		assert.Equal(t, PrivilegeUpdate, g.Privilege)
		assert.False(t, g.WithGrantOption)
	})

	t.Run("unknown privilege fails validation", func(t *testing.T) {
		_, err := Parse("grant explode on public.account to anon")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidDefinition))
	})
}

func TestParseRejectsOtherStatements(t *testing.T) {
	for _, stmt := range []string{
		"insert into public.t values (1)",
		"create table public.t (id integer)",
		"alter view public.v rename to w",
		"",
		"   ;  ",
	} {
		_, err := Parse(stmt)
		require.Error(t, err, stmt)
		assert.True(t, errors.Is(err, ErrInvalidDefinition), stmt)
	}
}

func TestParseLeadingComments(t *testing.T) {
	e, err := Parse("-- account projection\n-- owned by data platform\ncreate view public.v as select 1")
	require.NoError(t, err)
	assert.Equal(t, "view:public.v", e.Identity().Key())
}
