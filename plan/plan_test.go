package plan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pg_entity_sync/entity"
)

// fakeReader serves reflected entities from a fixture slice.
type fakeReader struct {
	entities []entity.Entity
	err      error
}

func (f *fakeReader) ListCurrent(_ context.Context, kind entity.Kind, _, _ []string) ([]entity.Entity, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []entity.Entity
	for _, e := range f.entities {
		if e.Kind() == kind {
			out = append(out, e)
		}
	}
	return out, nil
}

func mustRegister(t *testing.T, reg *Registry, entities ...entity.Entity) {
	t.Helper()
	require.NoError(t, reg.Register(entities...))
}

func toLower(def string) *entity.Function {
	return entity.NewFunction("public", "to_lower(text)", def)
}

func TestDiffStatuses(t *testing.T) {
	ctx := context.Background()

	t.Run("new entity creates with reverse drop", func(t *testing.T) {
		reg := NewRegistry()
		fn := toLower("returns text as $$ select lower($1) $$ language sql")
		mustRegister(t, reg, fn)

		p, err := Diff(ctx, reg, &fakeReader{})
		require.NoError(t, err)
		require.Len(t, p.Records, 1)
		assert.Equal(t, StatusCreated, p.Records[0].Status)

		require.Len(t, p.Operations, 1)
		op := p.Operations[0]
		assert.Equal(t, OpCreate, op.Kind)
		assert.Equal(t, fn.CreateSQL(), op.SQLUp)
		assert.Equal(t, `DROP FUNCTION "public"."to_lower"(text)`, op.SQLDown)
	})

	t.Run("unchanged entity yields no operations", func(t *testing.T) {
		reg := NewRegistry()
		mustRegister(t, reg, toLower("returns text as $$ select lower($1) $$ language sql"))
		reflected := toLower("RETURNS TEXT AS $$ SELECT LOWER($1) $$ LANGUAGE SQL;")

		p, err := Diff(ctx, reg, &fakeReader{entities: []entity.Entity{reflected}})
		require.NoError(t, err)
		require.Len(t, p.Records, 1)
		assert.Equal(t, StatusUnchanged, p.Records[0].Status)
		assert.False(t, p.HasChanges())
	})

	t.Run("modified function replaces in place", func(t *testing.T) {
		reg := NewRegistry()
		want := toLower("returns text as $$ select lower(trim($1)) $$ language sql")
		have := toLower("returns text as $$ select lower($1) $$ language sql")
		mustRegister(t, reg, want)

		p, err := Diff(ctx, reg, &fakeReader{entities: []entity.Entity{have}})
		require.NoError(t, err)
		require.Len(t, p.Operations, 1)
		op := p.Operations[0]
		assert.Equal(t, OpReplace, op.Kind)
		assert.Equal(t, want.ReplaceSQL(), op.SQLUp)
		assert.Equal(t, have.ReplaceSQL(), op.SQLDown)
	})

	t.Run("modified view drops old then creates new", func(t *testing.T) {
		reg := NewRegistry()
		want := entity.NewView("public", "active", "select id, email from public.account where active")
		have := entity.NewView("public", "active", "select id from public.account where active")
		mustRegister(t, reg, want)

		p, err := Diff(ctx, reg, &fakeReader{entities: []entity.Entity{have}})
		require.NoError(t, err)
		require.Len(t, p.Operations, 2)
		assert.Equal(t, OpDrop, p.Operations[0].Kind)
		assert.Equal(t, have.DropSQL(), p.Operations[0].SQLUp)
		assert.Equal(t, have.CreateSQL(), p.Operations[0].SQLDown)
		assert.Equal(t, OpCreate, p.Operations[1].Kind)
		assert.Equal(t, want.CreateSQL(), p.Operations[1].SQLUp)

		// Undoing the pair restores the old definition.
		assert.Equal(t, []string{want.DropSQL(), have.CreateSQL()}, p.RenderDown())
	})

	t.Run("reflected only entity is dropped", func(t *testing.T) {
		reg := NewRegistry(WithKinds(entity.KindView))
		have := entity.NewView("public", "stale", "select 1")

		p, err := Diff(ctx, reg, &fakeReader{entities: []entity.Entity{have}})
		require.NoError(t, err)
		require.Len(t, p.Records, 1)
		assert.Equal(t, StatusDropped, p.Records[0].Status)

		require.Len(t, p.Operations, 1)
		assert.Equal(t, OpDrop, p.Operations[0].Kind)
		assert.Equal(t, have.DropSQL(), p.Operations[0].SQLUp)
		assert.Equal(t, have.CreateSQL(), p.Operations[0].SQLDown)
	})

	t.Run("kinds never registered stay untouched", func(t *testing.T) {
		reg := NewRegistry()
		mustRegister(t, reg, toLower("returns text as $$ select lower($1) $$ language sql"))
		strayView := entity.NewView("public", "stray", "select 1")

		p, err := Diff(ctx, reg, &fakeReader{entities: []entity.Entity{strayView}})
		require.NoError(t, err)
		for _, r := range p.Records {
			assert.NotEqual(t, entity.KindView, r.Identity.Kind)
		}
	})

	t.Run("summary counts statuses", func(t *testing.T) {
		reg := NewRegistry(WithKinds(entity.KindView))
		mustRegister(t, reg,
			entity.NewView("public", "fresh", "select 1"),
			entity.NewView("public", "same", "select 2"),
		)
		p, err := Diff(ctx, reg, &fakeReader{entities: []entity.Entity{
			entity.NewView("public", "same", "select 2"),
			entity.NewView("public", "stale", "select 3"),
		}})
		require.NoError(t, err)
		counts := p.Summary()
		assert.Equal(t, 1, counts[StatusCreated])
		assert.Equal(t, 1, counts[StatusUnchanged])
		assert.Equal(t, 1, counts[StatusDropped])
		assert.Equal(t, 0, counts[StatusModified])
	})
}

func TestDiffOrdering(t *testing.T) {
	ctx := context.Background()

	t.Run("referenced function is created before the view", func(t *testing.T) {
		reg := NewRegistry()
		view := entity.NewView("public", "lowered", "select public.to_lower(email) as email from public.account")
		fn := toLower("returns text as $$ select lower($1) $$ language sql")
		// The dependent is registered first on purpose.
		mustRegister(t, reg, view, fn)

		p, err := Diff(ctx, reg, &fakeReader{})
		require.NoError(t, err)
		require.Len(t, p.Operations, 2)
		assert.Equal(t, entity.KindFunction, p.Operations[0].Identity.Kind)
		assert.Equal(t, entity.KindView, p.Operations[1].Identity.Kind)
	})

	t.Run("drops run dependents first", func(t *testing.T) {
		reg := NewRegistry(WithKinds(entity.KindFunction, entity.KindView))
		fn := toLower("returns text as $$ select lower($1) $$ language sql")
		view := entity.NewView("public", "lowered", "select public.to_lower(email) as email from public.account")

		p, err := Diff(ctx, reg, &fakeReader{entities: []entity.Entity{fn, view}})
		require.NoError(t, err)
		require.Len(t, p.Operations, 2)
		assert.Equal(t, entity.KindView, p.Operations[0].Identity.Kind)
		assert.Equal(t, entity.KindFunction, p.Operations[1].Identity.Kind)
	})

	t.Run("cycle is reported with its participants", func(t *testing.T) {
		reg := NewRegistry()
		mustRegister(t, reg,
			entity.NewView("public", "v_a", "select * from public.v_b"),
			entity.NewView("public", "v_b", "select * from public.v_a"),
		)

		_, err := Diff(ctx, reg, &fakeReader{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, entity.ErrDependencyCycle))

		var cycle *CycleError
		require.True(t, errors.As(err, &cycle))
		keys := make([]string, 0, len(cycle.Identities))
		for _, id := range cycle.Identities {
			keys = append(keys, id.Key())
		}
		assert.Contains(t, keys, "view:public.v_a")
		assert.Contains(t, keys, "view:public.v_b")
		assert.Contains(t, cycle.Error(), " -> ")
	})
}

func TestDiffGrants(t *testing.T) {
	ctx := context.Background()

	t.Run("added column grants only the difference", func(t *testing.T) {
		reg := NewRegistry()
		want := entity.NewGrantTable("public", "account", []string{"id", "email"}, "anon", entity.PrivilegeSelect, false)
		have := entity.NewGrantTable("public", "account", []string{"id"}, "anon", entity.PrivilegeSelect, false)
		mustRegister(t, reg, want)

		p, err := Diff(ctx, reg, &fakeReader{entities: []entity.Entity{have}})
		require.NoError(t, err)
		require.Len(t, p.Operations, 1)
		op := p.Operations[0]
		assert.Equal(t, OpGrant, op.Kind)
		assert.Equal(t, `GRANT SELECT ("email") ON "public"."account" TO "anon"`, op.SQLUp)
		assert.Equal(t, `REVOKE SELECT ("email") ON "public"."account" FROM "anon"`, op.SQLDown)
	})

	t.Run("removed column revokes only the difference", func(t *testing.T) {
		reg := NewRegistry()
		want := entity.NewGrantTable("public", "account", []string{"id"}, "anon", entity.PrivilegeSelect, false)
		have := entity.NewGrantTable("public", "account", []string{"id", "email"}, "anon", entity.PrivilegeSelect, false)
		mustRegister(t, reg, want)

		p, err := Diff(ctx, reg, &fakeReader{entities: []entity.Entity{have}})
		require.NoError(t, err)
		require.Len(t, p.Operations, 1)
		op := p.Operations[0]
		assert.Equal(t, OpRevoke, op.Kind)
		assert.Equal(t, `REVOKE SELECT ("email") ON "public"."account" FROM "anon"`, op.SQLUp)
	})

	t.Run("grant option flip regrants from scratch", func(t *testing.T) {
		reg := NewRegistry()
		want := entity.NewGrantTable("public", "account", []string{"id"}, "anon", entity.PrivilegeSelect, true)
		have := entity.NewGrantTable("public", "account", []string{"id"}, "anon", entity.PrivilegeSelect, false)
		mustRegister(t, reg, want)

		p, err := Diff(ctx, reg, &fakeReader{entities: []entity.Entity{have}})
		require.NoError(t, err)
		require.Len(t, p.Operations, 2)
		assert.Equal(t, OpRevoke, p.Operations[0].Kind)
		assert.Equal(t, have.DropSQL(), p.Operations[0].SQLUp)
		assert.Equal(t, OpGrant, p.Operations[1].Kind)
		assert.Equal(t, want.CreateSQL(), p.Operations[1].SQLUp)
	})

	t.Run("reflected only grant is revoked", func(t *testing.T) {
		reg := NewRegistry(WithKinds(entity.KindGrantTable))
		have := entity.NewGrantTable("public", "account", nil, "anon", entity.PrivilegeSelect, false)

		p, err := Diff(ctx, reg, &fakeReader{entities: []entity.Entity{have}})
		require.NoError(t, err)
		require.Len(t, p.Operations, 1)
		assert.Equal(t, OpRevoke, p.Operations[0].Kind)
		assert.Equal(t, have.DropSQL(), p.Operations[0].SQLUp)
		assert.Equal(t, have.CreateSQL(), p.Operations[0].SQLDown)
	})
}

func TestDiffGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate registration fails", func(t *testing.T) {
		reg := NewRegistry()
		mustRegister(t, reg, toLower("returns text as $$ select lower($1) $$ language sql"))
		err := reg.Register(toLower("returns text as $$ select lower(trim($1)) $$ language sql"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, entity.ErrDuplicateIdentity))
	})

	t.Run("invalid declaration aborts the pass", func(t *testing.T) {
		reg := NewRegistry()
		mustRegister(t, reg, entity.NewTrigger("public", "trg", "account", "before insert on account for each row execute function f()"))

		_, err := Diff(ctx, reg, &fakeReader{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, entity.ErrInvalidIdentity))
	})

	t.Run("reader failure propagates", func(t *testing.T) {
		reg := NewRegistry()
		mustRegister(t, reg, toLower("returns text as $$ select lower($1) $$ language sql"))

		_, err := Diff(ctx, reg, &fakeReader{err: errors.New("connection refused")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("schema include filter hides both sides", func(t *testing.T) {
		reg := NewRegistry(WithSchemas("app"))
		mustRegister(t, reg,
			entity.NewView("app", "kept", "select 1"),
			entity.NewView("public", "ignored", "select 2"),
		)

		p, err := Diff(ctx, reg, &fakeReader{entities: []entity.Entity{
			entity.NewView("public", "outside", "select 3"),
		}})
		require.NoError(t, err)
		require.Len(t, p.Records, 1)
		assert.Equal(t, "app", p.Records[0].Identity.Schema)
	})

	t.Run("schema exclude filter wins", func(t *testing.T) {
		reg := NewRegistry(WithKinds(entity.KindView), WithExcludeSchemas("legacy"))

		p, err := Diff(ctx, reg, &fakeReader{entities: []entity.Entity{
			entity.NewView("legacy", "old", "select 1"),
		}})
		require.NoError(t, err)
		assert.Empty(t, p.Records)
		assert.False(t, p.HasChanges())
	})
}
