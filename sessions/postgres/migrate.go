package postgres

import (
	"context"
	"database/sql"

	"github.com/khentdev/FitThreads-sub000/migrations"
	"github.com/pressly/goose/v3"
)

// RunMigrations applies the embedded schema migrations for the session store.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}
