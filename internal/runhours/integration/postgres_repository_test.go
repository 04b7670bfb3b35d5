package integration_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"asset-runhours/internal/runhours/domain"
	runhourrepo "asset-runhours/internal/runhours/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestPostgresRunHourRepository_UpsertForceAndWatermark(t *testing.T) {
	db := openDB(t)
	defer db.Close()

	if err := applyMigrations(db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	ctx := context.Background()
	assetID := "AC_PG_IT_001"
	cleanupAsset(ctx, db, assetID)
	defer cleanupAsset(ctx, db, assetID)

	repo := runhourrepo.NewRunHourRepository(db)
	if _, err := repo.Watermark(ctx, assetID); !errors.Is(err, domain.ErrNoWatermark) {
		t.Fatalf("expected ErrNoWatermark, got %v", err)
	}

	r := domain.DateRange{Start: domain.NewDate(2024, 1, 10), End: domain.NewDate(2024, 1, 12)}
	records := buildRecords(t, assetID, r, 1000)
	if err := repo.UpsertBatch(ctx, assetID, records); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// Idempotent by key.
	if err := repo.UpsertBatch(ctx, assetID, records); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	count, err := repo.CountRows(ctx, assetID)
	if err != nil || count != 3 {
		t.Fatalf("expected 3 rows, got %d err=%v", count, err)
	}

	watermark, err := repo.Watermark(ctx, assetID)
	if err != nil || watermark != r.End {
		t.Fatalf("watermark mismatch: %s err=%v", watermark, err)
	}
	exists, err := repo.Exists(ctx, assetID, domain.NewDate(2024, 1, 11))
	if err != nil || !exists {
		t.Fatalf("expected 2024-01-11 to exist, err=%v", err)
	}

	replacement := buildRecords(t, assetID, r, 5000)
	if err := repo.ForceReplace(ctx, assetID, r, replacement); err != nil {
		t.Fatalf("force replace: %v", err)
	}
	listed, err := repo.ListRange(ctx, []string{assetID}, r)
	if err != nil {
		t.Fatalf("list range: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("expected 3 rows after force, got %d", len(listed))
	}
	for _, rec := range listed {
		if rec.OnDurationMs != 5000 || rec.OnDurationMs+rec.OffDurationMs != domain.MsPerDay {
			t.Fatalf("unexpected record after force: %+v", rec)
		}
	}

	single, err := domain.NewRunHourRecord(assetID, r.Start, 7000)
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	if err := repo.Upsert(ctx, single); err != nil {
		t.Fatalf("single upsert: %v", err)
	}
	listed, err = repo.ListRange(ctx, []string{assetID}, domain.DateRange{Start: r.Start, End: r.Start})
	if err != nil || len(listed) != 1 || listed[0].OnDurationMs != 7000 {
		t.Fatalf("single upsert should overwrite: %+v err=%v", listed, err)
	}
}

func TestPostgresRunHourRepository_InvalidForceKeepsRows(t *testing.T) {
	db := openDB(t)
	defer db.Close()

	if err := applyMigrations(db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	ctx := context.Background()
	assetID := "AC_PG_IT_002"
	cleanupAsset(ctx, db, assetID)
	defer cleanupAsset(ctx, db, assetID)

	repo := runhourrepo.NewRunHourRepository(db)
	r := domain.DateRange{Start: domain.NewDate(2024, 2, 1), End: domain.NewDate(2024, 2, 2)}
	if err := repo.UpsertBatch(ctx, assetID, buildRecords(t, assetID, r, 1)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// An invalid batch is rejected before anything is deleted.
	bad := buildRecords(t, assetID, r, 1)
	bad[1].OffDurationMs = domain.MsPerDay
	bad[1].OnDurationMs = domain.MsPerDay
	if err := repo.ForceReplace(ctx, assetID, r, bad); err == nil {
		t.Fatalf("expected invalid batch error")
	}
	count, err := repo.CountRows(ctx, assetID)
	if err != nil || count != 2 {
		t.Fatalf("rows must survive a failed replace, got %d err=%v", count, err)
	}
}

func buildRecords(t *testing.T, assetID string, r domain.DateRange, onMs int64) []domain.RunHourRecord {
	t.Helper()
	var out []domain.RunHourRecord
	for _, day := range r.Dates() {
		rec, err := domain.NewRunHourRecord(assetID, day, onMs)
		if err != nil {
			t.Fatalf("new record: %v", err)
		}
		out = append(out, rec)
	}
	return out
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	return db
}

func applyMigrations(db *sql.DB) error {
	content, err := os.ReadFile(filepath.Join(projectRoot(), "migrations", "001_run_hours.sql"))
	if err != nil {
		return err
	}
	_, err = db.Exec(string(content))
	return err
}

func cleanupAsset(ctx context.Context, db *sql.DB, assetID string) {
	_, _ = db.ExecContext(ctx, "DELETE FROM run_hours WHERE asset_id = $1", assetID)
}

func projectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return filepath.Clean(filepath.Join(dir, "..", "..", ".."))
}
