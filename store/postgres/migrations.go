package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/kdgroup/jobledger"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations holds the SQL migrations applied by Migrate.
var Migrations, _ = fs.Sub(embedded, "migrations")

// Migrate applies pending migrations.
func (s *Store) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, Migrations)
	if err != nil {
		return fmt.Errorf("%w: jobledger/postgres: create provider: %w", jobledger.ErrMigrationFailed, err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("%w: jobledger/postgres: %w", jobledger.ErrMigrationFailed, err)
	}
	for _, r := range results {
		s.logger.Info().Str("migration", r.Source.Path).Dur("took", r.Duration).Msg("migration applied")
	}
	return nil
}
