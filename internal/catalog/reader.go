// Package catalog reflects live PostgreSQL objects into entity values.
package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pg_entity_sync/entity"
)

// Reader lists current database objects per kind. Deparsed definitions come
// back in the server's canonical, schema qualified form; declarations
// written the same way keep diffs quiet.
type Reader struct {
	pool *pgxpool.Pool
}

func NewReader(pool *pgxpool.Pool) *Reader { return &Reader{pool: pool} }

// ListCurrent runs one kind's reflection query inside a read-only
// transaction. search_path is cleared first so pg_get_viewdef and friends
// qualify every referenced relation.
func (r *Reader) ListCurrent(ctx context.Context, kind entity.Kind, schemas, excludeSchemas []string) ([]entity.Entity, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin catalog tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SET LOCAL search_path TO ''`); err != nil {
		return nil, fmt.Errorf("clear search_path: %w", err)
	}

	filter := scope{include: schemaParam(schemas), exclude: schemaParam(excludeSchemas)}
	switch kind {
	case entity.KindFunction:
		return listFunctions(ctx, tx, filter)
	case entity.KindView:
		return listViews(ctx, tx, filter)
	case entity.KindMaterializedView:
		return listMaterializedViews(ctx, tx, filter)
	case entity.KindTrigger:
		return listTriggers(ctx, tx, filter)
	case entity.KindPolicy:
		return listPolicies(ctx, tx, filter)
	case entity.KindExtension:
		return listExtensions(ctx, tx, filter)
	case entity.KindGrantTable:
		return listTableGrants(ctx, tx, filter)
	default:
		return nil, fmt.Errorf("unsupported entity kind %q", kind)
	}
}

// scope carries the schema include and exclude lists every kind query
// binds as $1 and $2.
type scope struct {
	include []string
	exclude []string
}

// schemaParam maps an empty filter to NULL so the queries fall back to
// "every non-system schema".
func schemaParam(schemas []string) []string {
	if len(schemas) == 0 {
		return nil
	}
	return schemas
}
