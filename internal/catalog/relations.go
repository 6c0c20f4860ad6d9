package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"pg_entity_sync/entity"
)

// Objects owned by an extension are the extension's business, not the
// declared inventory's, so every relation query filters pg_depend
// deptype 'e' rows.

const functionsQuery = `
SELECT n.nspname,
       p.proname || '(' || pg_get_function_identity_arguments(p.oid) || ')',
       pg_get_functiondef(p.oid)
FROM pg_proc p
JOIN pg_namespace n ON n.oid = p.pronamespace
WHERE p.prokind = 'f'
  AND n.nspname NOT LIKE 'pg\_%'
  AND n.nspname <> 'information_schema'
  AND NOT EXISTS (SELECT 1 FROM pg_depend d WHERE d.classid = 'pg_proc'::regclass AND d.objid = p.oid AND d.deptype = 'e')
  AND ($1::text[] IS NULL OR n.nspname = ANY($1))
  AND ($2::text[] IS NULL OR NOT n.nspname = ANY($2))
ORDER BY n.nspname, p.proname`

func listFunctions(ctx context.Context, tx pgx.Tx, s scope) ([]entity.Entity, error) {
	rows, err := tx.Query(ctx, functionsQuery, s.include, s.exclude)
	if err != nil {
		return nil, fmt.Errorf("query functions: %w", err)
	}
	defer rows.Close()

	var out []entity.Entity
	for rows.Next() {
		var schema, signature, def string
		if err := rows.Scan(&schema, &signature, &def); err != nil {
			return nil, fmt.Errorf("scan function: %w", err)
		}
		// pg_get_functiondef returns a full CREATE OR REPLACE statement;
		// the parser splits off the body. The identity argument list from
		// the catalog replaces the header's full list so defaults do not
		// leak into the pairing key.
		parsed, err := entity.Parse(def)
		if err != nil {
			return nil, fmt.Errorf("reflect function %s.%s: %w", schema, signature, err)
		}
		fn, ok := parsed.(*entity.Function)
		if !ok {
			return nil, fmt.Errorf("reflect function %s.%s: unexpected statement", schema, signature)
		}
		out = append(out, entity.NewFunction(schema, signature, fn.Definition))
	}
	return out, rows.Err()
}

const viewsQuery = `
SELECT n.nspname, c.relname, pg_get_viewdef(c.oid)
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind = 'v'
  AND n.nspname NOT LIKE 'pg\_%'
  AND n.nspname <> 'information_schema'
  AND NOT EXISTS (SELECT 1 FROM pg_depend d WHERE d.classid = 'pg_class'::regclass AND d.objid = c.oid AND d.deptype = 'e')
  AND ($1::text[] IS NULL OR n.nspname = ANY($1))
  AND ($2::text[] IS NULL OR NOT n.nspname = ANY($2))
ORDER BY n.nspname, c.relname`

func listViews(ctx context.Context, tx pgx.Tx, s scope) ([]entity.Entity, error) {
	rows, err := tx.Query(ctx, viewsQuery, s.include, s.exclude)
	if err != nil {
		return nil, fmt.Errorf("query views: %w", err)
	}
	defer rows.Close()

	var out []entity.Entity
	for rows.Next() {
		var schema, name, def string
		if err := rows.Scan(&schema, &name, &def); err != nil {
			return nil, fmt.Errorf("scan view: %w", err)
		}
		out = append(out, entity.NewView(schema, name, def))
	}
	return out, rows.Err()
}

const materializedViewsQuery = `
SELECT n.nspname, c.relname, pg_get_viewdef(c.oid), c.relispopulated, c.reloptions
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind = 'm'
  AND n.nspname NOT LIKE 'pg\_%'
  AND n.nspname <> 'information_schema'
  AND NOT EXISTS (SELECT 1 FROM pg_depend d WHERE d.classid = 'pg_class'::regclass AND d.objid = c.oid AND d.deptype = 'e')
  AND ($1::text[] IS NULL OR n.nspname = ANY($1))
  AND ($2::text[] IS NULL OR NOT n.nspname = ANY($2))
ORDER BY n.nspname, c.relname`

func listMaterializedViews(ctx context.Context, tx pgx.Tx, s scope) ([]entity.Entity, error) {
	rows, err := tx.Query(ctx, materializedViewsQuery, s.include, s.exclude)
	if err != nil {
		return nil, fmt.Errorf("query materialized views: %w", err)
	}
	defer rows.Close()

	var out []entity.Entity
	for rows.Next() {
		var (
			schema, name, def string
			populated         bool
			options           []string
		)
		if err := rows.Scan(&schema, &name, &def, &populated, &options); err != nil {
			return nil, fmt.Errorf("scan materialized view: %w", err)
		}
		opts := []entity.MatViewOption{entity.WithData(populated)}
		if len(options) > 0 {
			opts = append(opts, entity.WithStorageParameters(options...))
		}
		out = append(out, entity.NewMaterializedView(schema, name, def, opts...))
	}
	return out, rows.Err()
}

const triggersQuery = `
SELECT pg_get_triggerdef(t.oid)
FROM pg_trigger t
JOIN pg_class c ON c.oid = t.tgrelid
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE NOT t.tgisinternal
  AND n.nspname NOT LIKE 'pg\_%'
  AND n.nspname <> 'information_schema'
  AND NOT EXISTS (SELECT 1 FROM pg_depend d WHERE d.classid = 'pg_trigger'::regclass AND d.objid = t.oid AND d.deptype = 'e')
  AND ($1::text[] IS NULL OR n.nspname = ANY($1))
  AND ($2::text[] IS NULL OR NOT n.nspname = ANY($2))
ORDER BY n.nspname, c.relname, t.tgname`

func listTriggers(ctx context.Context, tx pgx.Tx, s scope) ([]entity.Entity, error) {
	rows, err := tx.Query(ctx, triggersQuery, s.include, s.exclude)
	if err != nil {
		return nil, fmt.Errorf("query triggers: %w", err)
	}
	defer rows.Close()

	var out []entity.Entity
	for rows.Next() {
		var def string
		if err := rows.Scan(&def); err != nil {
			return nil, fmt.Errorf("scan trigger: %w", err)
		}
		parsed, err := entity.Parse(def)
		if err != nil {
			return nil, fmt.Errorf("reflect trigger: %w", err)
		}
		out = append(out, parsed)
	}
	return out, rows.Err()
}

const extensionsQuery = `
SELECT n.nspname, e.extname
FROM pg_extension e
JOIN pg_namespace n ON n.oid = e.extnamespace
WHERE e.extname <> 'plpgsql'
  AND ($1::text[] IS NULL OR n.nspname = ANY($1))
  AND ($2::text[] IS NULL OR NOT n.nspname = ANY($2))
ORDER BY e.extname`

// plpgsql ships preinstalled in template1, so it is never part of the
// declared inventory.
func listExtensions(ctx context.Context, tx pgx.Tx, s scope) ([]entity.Entity, error) {
	rows, err := tx.Query(ctx, extensionsQuery, s.include, s.exclude)
	if err != nil {
		return nil, fmt.Errorf("query extensions: %w", err)
	}
	defer rows.Close()

	var out []entity.Entity
	for rows.Next() {
		var schema, name string
		if err := rows.Scan(&schema, &name); err != nil {
			return nil, fmt.Errorf("scan extension: %w", err)
		}
		out = append(out, entity.NewExtension(schema, name))
	}
	return out, rows.Err()
}
