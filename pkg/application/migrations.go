package application

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
)

// MigrationStatus is one migration of a registered schema.
type MigrationStatus struct {
	Schema  string
	Version int64
	Path    string
	Applied bool
}

type MigrationManager interface {
	// RegisterSchema adds a directory of goose SQL migrations. Each schema
	// keeps its own version table.
	RegisterSchema(name string, fsys fs.FS)
	Up(ctx context.Context, pool *pgxpool.Pool) ([]MigrationStatus, error)
	Down(ctx context.Context, pool *pgxpool.Pool) ([]MigrationStatus, error)
	Status(ctx context.Context, pool *pgxpool.Pool) ([]MigrationStatus, error)
}

type schema struct {
	name string
	fsys fs.FS
}

type migrationManager struct {
	schemas []schema
}

func NewMigrationManager() MigrationManager {
	return &migrationManager{}
}

func (m *migrationManager) RegisterSchema(name string, fsys fs.FS) {
	m.schemas = append(m.schemas, schema{name: name, fsys: fsys})
}

func (m *migrationManager) provider(db *sql.DB, s schema) (*goose.Provider, error) {
	store, err := database.NewStore(database.DialectPostgres, "goose_db_version_"+s.name)
	if err != nil {
		return nil, err
	}
	return goose.NewProvider("", db, s.fsys, goose.WithStore(store))
}

func (m *migrationManager) each(ctx context.Context, pool *pgxpool.Pool, fn func(name string, p *goose.Provider) ([]MigrationStatus, error)) ([]MigrationStatus, error) {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	var out []MigrationStatus
	for _, s := range m.schemas {
		p, err := m.provider(db, s)
		if err != nil {
			return out, fmt.Errorf("migrations %s: %w", s.name, err)
		}
		res, err := fn(s.name, p)
		out = append(out, res...)
		if err != nil {
			return out, fmt.Errorf("migrations %s: %w", s.name, err)
		}
	}
	return out, nil
}

func fromResults(name string, results []*goose.MigrationResult) []MigrationStatus {
	out := make([]MigrationStatus, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		out = append(out, MigrationStatus{
			Schema:  name,
			Version: r.Source.Version,
			Path:    r.Source.Path,
			Applied: r.Direction == "up",
		})
	}
	return out
}

func (m *migrationManager) Up(ctx context.Context, pool *pgxpool.Pool) ([]MigrationStatus, error) {
	return m.each(ctx, pool, func(name string, p *goose.Provider) ([]MigrationStatus, error) {
		res, err := p.Up(ctx)
		return fromResults(name, res), err
	})
}

// Down rolls back the latest migration of every schema, last registered first.
func (m *migrationManager) Down(ctx context.Context, pool *pgxpool.Pool) ([]MigrationStatus, error) {
	reversed := &migrationManager{}
	for i := len(m.schemas) - 1; i >= 0; i-- {
		reversed.schemas = append(reversed.schemas, m.schemas[i])
	}
	return reversed.each(ctx, pool, func(name string, p *goose.Provider) ([]MigrationStatus, error) {
		res, err := p.Down(ctx)
		if res == nil {
			return nil, err
		}
		return fromResults(name, []*goose.MigrationResult{res}), err
	})
}

func (m *migrationManager) Status(ctx context.Context, pool *pgxpool.Pool) ([]MigrationStatus, error) {
	return m.each(ctx, pool, func(name string, p *goose.Provider) ([]MigrationStatus, error) {
		statuses, err := p.Status(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]MigrationStatus, 0, len(statuses))
		for _, st := range statuses {
			out = append(out, MigrationStatus{
				Schema:  name,
				Version: st.Source.Version,
				Path:    st.Source.Path,
				Applied: st.State == goose.StateApplied,
			})
		}
		return out, nil
	})
}
