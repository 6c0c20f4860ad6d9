package plan

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"pg_entity_sync/internal/catalog"
)

// NewCatalogReader returns a CatalogReader that reflects entities from the
// database behind pool. Host applications go through this constructor; the
// query implementation is internal.
func NewCatalogReader(pool *pgxpool.Pool) CatalogReader {
	return catalog.NewReader(pool)
}
