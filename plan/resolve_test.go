package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pg_entity_sync/entity"
)

func created(e entity.Entity) Record {
	return Record{Identity: e.Identity(), Status: StatusCreated, Declared: e}
}

func TestResolveOrder(t *testing.T) {
	t.Run("keeps input order without references", func(t *testing.T) {
		records := []Record{
			created(entity.NewView("public", "c", "select 3")),
			created(entity.NewView("public", "a", "select 1")),
			created(entity.NewView("public", "b", "select 2")),
		}
		ordered, err := resolveOrder(records)
		require.NoError(t, err)
		got := make([]string, 0, len(ordered))
		for _, r := range ordered {
			got = append(got, r.Identity.Signature)
		}
		assert.Equal(t, []string{"c", "a", "b"}, got)
	})

	t.Run("detects quoted references", func(t *testing.T) {
		fn := entity.NewFunction("public", "to_lower(text)", "returns text as $$ select lower($1) $$ language sql")
		view := entity.NewView("public", "lowered", `select "public"."to_lower"(email) from public.account`)
		ordered, err := resolveOrder([]Record{created(view), created(fn)})
		require.NoError(t, err)
		assert.Equal(t, entity.KindFunction, ordered[0].Identity.Kind)
	})

	t.Run("name prefixes do not create edges", func(t *testing.T) {
		base := entity.NewView("public", "account", "select 1")
		summary := entity.NewView("public", "account_summary", "select * from public.account_totals")
		ordered, err := resolveOrder([]Record{created(summary), created(base)})
		require.NoError(t, err)
		// No reference, so registration order survives.
		assert.Equal(t, "account_summary", ordered[0].Identity.Signature)
	})

	t.Run("self references are ignored", func(t *testing.T) {
		v := entity.NewView("public", "recursive", "select * from public.recursive where depth < 3")
		ordered, err := resolveOrder([]Record{created(v)})
		require.NoError(t, err)
		require.Len(t, ordered, 1)
	})

	t.Run("parent links order policies after their relation", func(t *testing.T) {
		mat := entity.NewMaterializedView("public", "mat", "select 1 as id")
		pol := entity.NewPolicy("public", "p_read", "public.mat", "for select using (true)")
		ordered, err := resolveOrder([]Record{created(pol), created(mat)})
		require.NoError(t, err)
		assert.Equal(t, entity.KindMaterializedView, ordered[0].Identity.Kind)
		assert.Equal(t, entity.KindPolicy, ordered[1].Identity.Kind)
	})

	t.Run("modified records scan both sides", func(t *testing.T) {
		fn := entity.NewFunction("public", "to_lower(text)", "returns text as $$ select lower($1) $$ language sql")
		oldView := entity.NewView("public", "lowered", "select public.to_lower(email) from public.account")
		newView := entity.NewView("public", "lowered", "select email from public.account")
		records := []Record{
			{Identity: newView.Identity(), Status: StatusModified, Declared: newView, Reflected: oldView},
			created(fn),
		}
		ordered, err := resolveOrder(records)
		require.NoError(t, err)
		// The old definition still references the function, so the function
		// keeps its place ahead of the view.
		assert.Equal(t, entity.KindFunction, ordered[0].Identity.Kind)
	})
}
