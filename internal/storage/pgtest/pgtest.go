// README: Test helper that connects to KAMUIT_TEST_DSN, applies migrations and truncates tables.
package pgtest

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"kamuit/internal/infra"
	"kamuit/internal/logging"
	"kamuit/migrations"
)

// Open skips the calling test unless KAMUIT_TEST_DSN is set.
func Open(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("KAMUIT_TEST_DSN")
	if dsn == "" {
		t.Skip("KAMUIT_TEST_DSN not set")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(db.Close)

	if err := infra.RunMigrations(ctx, db, migrations.FS, logging.Discard()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if _, err := db.Exec(ctx, "TRUNCATE TABLE location_snapshots, detour_scores, rides, driver_profiles"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return db
}
