// Package migrations applies the embedded account schema with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

var dialects = map[string]database.Dialect{
	"sqlite":   database.DialectSQLite3,
	"postgres": database.DialectPostgres,
}

// Up applies every pending migration for the given driver ("sqlite" or "postgres")
// and returns the number of migrations applied.
func Up(ctx context.Context, db *sql.DB, driver string) (int, error) {
	dialect, ok := dialects[driver]
	if !ok {
		return 0, fmt.Errorf("unsupported migration driver %q", driver)
	}

	fsys, err := fs.Sub(files, driver)
	if err != nil {
		return 0, fmt.Errorf("migration files for %s: %w", driver, err)
	}

	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return 0, fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}
	return len(results), nil
}
