package plan

import (
	"fmt"
	"io/fs"

	"pg_entity_sync/entity"
)

// LoadDirectory reads every *.sql file directly under dir, splits each into
// statements and parses them as entity declarations. Files are visited in
// name order and statements in file order, so the returned slice doubles as
// the registration order.
func LoadDirectory(fsys fs.FS, dir string) ([]entity.Entity, error) {
	pattern := "*.sql"
	if dir != "" && dir != "." {
		pattern = dir + "/*.sql"
	}
	names, err := fs.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("list entity sources: %w", err)
	}

	var entities []entity.Entity
	for _, name := range names {
		raw, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read entity source %s: %w", name, err)
		}
		for i, stmt := range entity.SplitStatements(string(raw)) {
			e, err := entity.Parse(stmt)
			if err != nil {
				return nil, fmt.Errorf("parse %s statement %d: %w", name, i+1, err)
			}
			entities = append(entities, e)
		}
	}
	return entities, nil
}
