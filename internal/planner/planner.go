// Package planner builds reconciliation plans from a declared entity
// source and a live database catalog.
package planner

import (
	"context"
	"fmt"
	"os"

	"pg_entity_sync/entity"
	"pg_entity_sync/internal/config"
	"pg_entity_sync/plan"
)

// Source yields the declared entity set for one planning pass.
type Source interface {
	Load(ctx context.Context) ([]entity.Entity, error)
}

// DirSource parses every .sql file in a directory.
type DirSource struct {
	Dir string
}

func (s DirSource) Load(context.Context) ([]entity.Entity, error) {
	if _, err := os.Stat(s.Dir); err != nil {
		return nil, fmt.Errorf("entity directory %s: %w", s.Dir, err)
	}
	return plan.LoadDirectory(os.DirFS(s.Dir), ".")
}

// CatalogSource treats another database's catalog as the declared set, so
// one database can be mirrored onto another.
type CatalogSource struct {
	Reader         plan.CatalogReader
	Kinds          []entity.Kind
	Schemas        []string
	ExcludeSchemas []string
}

func (s CatalogSource) Load(ctx context.Context) ([]entity.Entity, error) {
	kinds := s.Kinds
	if len(kinds) == 0 {
		kinds = entity.Kinds()
	}
	var out []entity.Entity
	for _, k := range kinds {
		listed, err := s.Reader.ListCurrent(ctx, k, s.Schemas, s.ExcludeSchemas)
		if err != nil {
			return nil, fmt.Errorf("reflect %s from source: %w", k, err)
		}
		out = append(out, listed...)
	}
	return out, nil
}

type Planner struct {
	cfg    config.Config
	source Source
	reader plan.CatalogReader
}

func New(cfg config.Config, source Source, reader plan.CatalogReader) *Planner {
	return &Planner{cfg: cfg, source: source, reader: reader}
}

// LoadDeclared returns the declared entity set.
func (p *Planner) LoadDeclared(ctx context.Context) ([]entity.Entity, error) {
	return p.source.Load(ctx)
}

// Registry builds a comparison registry from the declared set and the
// configured schema and kind filters.
func (p *Planner) Registry(ctx context.Context) (*plan.Registry, error) {
	declared, err := p.source.Load(ctx)
	if err != nil {
		return nil, err
	}
	var opts []plan.RegistryOption
	if len(p.cfg.Entities.Schemas) > 0 {
		opts = append(opts, plan.WithSchemas(p.cfg.Entities.Schemas...))
	}
	if len(p.cfg.Entities.ExcludeSchemas) > 0 {
		opts = append(opts, plan.WithExcludeSchemas(p.cfg.Entities.ExcludeSchemas...))
	}
	kinds, err := p.cfg.Entities.EntityKinds()
	if err != nil {
		return nil, err
	}
	if len(kinds) == 0 && p.cfg.Entities.SourceDSN != "" {
		// Mirroring covers every kind, otherwise objects the source lacks
		// entirely would survive on the target.
		kinds = entity.Kinds()
	}
	if len(kinds) > 0 {
		opts = append(opts, plan.WithKinds(kinds...))
	}
	reg := plan.NewRegistry(opts...)
	if err := reg.Register(declared...); err != nil {
		return nil, err
	}
	return reg, nil
}

// BuildPlan reflects the target catalog and returns the reconciliation plan.
func (p *Planner) BuildPlan(ctx context.Context) (*plan.Plan, error) {
	reg, err := p.Registry(ctx)
	if err != nil {
		return nil, err
	}
	return plan.Diff(ctx, reg, p.reader)
}

// SourceFromConfig picks the declared source the configuration names. The
// optional sourceReader is only consulted for DSN mirroring.
func SourceFromConfig(cfg config.Config, sourceReader plan.CatalogReader) (Source, error) {
	if cfg.Entities.SourceDSN != "" {
		if sourceReader == nil {
			return nil, fmt.Errorf("entities.source_dsn set but no source connection provided")
		}
		kinds, err := cfg.Entities.EntityKinds()
		if err != nil {
			return nil, err
		}
		return CatalogSource{
			Reader:         sourceReader,
			Kinds:          kinds,
			Schemas:        cfg.Entities.Schemas,
			ExcludeSchemas: cfg.Entities.ExcludeSchemas,
		}, nil
	}
	return DirSource{Dir: cfg.Entities.Dir}, nil
}
