package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"asset-runhours/internal/runhours/domain"
)

const defaultRunHourTable = "run_hours"

// RunHourRepository stores one row per (asset_id, local_date).
type RunHourRepository struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

// NewRunHourRepository creates a repository using the default table name.
func NewRunHourRepository(db *sql.DB, opts ...RepositoryOption) *RunHourRepository {
	repo := &RunHourRepository{
		db:    db,
		table: defaultRunHourTable,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RepositoryOption configures the repository.
type RepositoryOption func(*RunHourRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *RunHourRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Table returns the backing table name.
func (r *RunHourRepository) Table() string { return r.table }

// Watermark returns the latest stored local date for assetID, or
// domain.ErrNoWatermark when the asset has no rows.
func (r *RunHourRepository) Watermark(ctx context.Context, assetID string) (domain.Date, error) {
	if assetID == "" {
		return domain.Date{}, domain.ErrEmptyAssetID
	}
	query := fmt.Sprintf(`SELECT MAX(local_date) FROM %s WHERE asset_id = $1`, r.table)
	var latest sql.NullTime
	if err := r.db.QueryRowContext(ctx, query, assetID).Scan(&latest); err != nil {
		return domain.Date{}, err
	}
	if !latest.Valid {
		return domain.Date{}, domain.ErrNoWatermark
	}
	return domain.DateOf(latest.Time), nil
}

// Exists reports whether a row is stored for (assetID, day).
func (r *RunHourRepository) Exists(ctx context.Context, assetID string, day domain.Date) (bool, error) {
	if assetID == "" {
		return false, domain.ErrEmptyAssetID
	}
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE asset_id = $1 AND local_date = $2::date)`, r.table)
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, assetID, day.String()).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Upsert writes a single record idempotently.
func (r *RunHourRepository) Upsert(ctx context.Context, record domain.RunHourRecord) error {
	return r.UpsertBatch(ctx, record.AssetID, []domain.RunHourRecord{record})
}

// UpsertBatch writes all records of one span in a single transaction.
func (r *RunHourRepository) UpsertBatch(ctx context.Context, assetID string, records []domain.RunHourRecord) error {
	if err := validateBatch(assetID, records); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := r.insert(ctx, tx, records); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ForceReplace deletes stored rows in dr and inserts records in one transaction.
func (r *RunHourRepository) ForceReplace(ctx context.Context, assetID string, dr domain.DateRange, records []domain.RunHourRecord) error {
	if err := validateBatch(assetID, records); err != nil {
		return err
	}
	for _, rec := range records {
		if !dr.Contains(rec.LocalDate) {
			return fmt.Errorf("run hour repo: record %s outside %s", rec.LocalDate, dr)
		}
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE asset_id = $1 AND local_date BETWEEN $2::date AND $3::date`, r.table)
	if _, err := tx.ExecContext(ctx, deleteQuery, assetID, dr.Start.String(), dr.End.String()); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := r.insert(ctx, tx, records); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *RunHourRepository) insert(ctx context.Context, tx *sql.Tx, records []domain.RunHourRecord) error {
	query := fmt.Sprintf(`
INSERT INTO %s (asset_id, local_date, on_duration_ms, off_duration_ms, updated_at)
VALUES ($1, $2::date, $3, $4, $5)
ON CONFLICT (asset_id, local_date) DO UPDATE SET
	on_duration_ms = EXCLUDED.on_duration_ms,
	off_duration_ms = EXCLUDED.off_duration_ms,
	updated_at = EXCLUDED.updated_at`, r.table)

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	updatedAt := r.now()
	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec.AssetID, rec.LocalDate.String(), rec.OnDurationMs, rec.OffDurationMs, updatedAt); err != nil {
			return fmt.Errorf("run hour repo: insert %s %s: %w", rec.AssetID, rec.LocalDate, err)
		}
	}
	return nil
}

// ListRange returns stored records for assetIDs within dr ordered by asset and date.
func (r *RunHourRepository) ListRange(ctx context.Context, assetIDs []string, dr domain.DateRange) ([]domain.RunHourRecord, error) {
	if len(assetIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
SELECT asset_id, local_date, on_duration_ms, off_duration_ms
FROM %s
WHERE asset_id = ANY($1)
	AND local_date BETWEEN $2::date AND $3::date
ORDER BY asset_id ASC, local_date ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, assetIDs, dr.Start.String(), dr.End.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.RunHourRecord
	for rows.Next() {
		var (
			rec       domain.RunHourRecord
			localDate time.Time
		)
		if err := rows.Scan(&rec.AssetID, &localDate, &rec.OnDurationMs, &rec.OffDurationMs); err != nil {
			return nil, err
		}
		rec.LocalDate = domain.DateOf(localDate)
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CountRows returns the number of stored rows for assetID.
func (r *RunHourRepository) CountRows(ctx context.Context, assetID string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE asset_id = $1`, r.table)
	var count int
	if err := r.db.QueryRowContext(ctx, query, assetID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func validateBatch(assetID string, records []domain.RunHourRecord) error {
	if assetID == "" {
		return domain.ErrEmptyAssetID
	}
	for _, rec := range records {
		if rec.AssetID != assetID {
			return errors.New("run hour repo: record asset mismatch")
		}
		if err := rec.Validate(); err != nil {
			return err
		}
	}
	return nil
}
