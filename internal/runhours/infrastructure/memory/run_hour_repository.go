package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"asset-runhours/internal/runhours/domain"
)

type recordKey struct {
	assetID string
	day     domain.Date
}

// RunHourRepository is an in-memory run-hour store for demo/testing.
type RunHourRepository struct {
	mu      sync.RWMutex
	data    map[recordKey]domain.RunHourRecord
	writes  int
	calls   int
	failErr error
}

// NewRunHourRepository constructs a repository.
func NewRunHourRepository() *RunHourRepository {
	return &RunHourRepository{data: make(map[recordKey]domain.RunHourRecord)}
}

// FailWith makes every subsequent call return err; nil clears it.
func (r *RunHourRepository) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failErr = err
}

// Writes returns the number of rows written so far.
func (r *RunHourRepository) Writes() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.writes
}

// WriteCalls returns the number of UpsertBatch and ForceReplace calls.
func (r *RunHourRepository) WriteCalls() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.calls
}

// Watermark returns the latest stored date for assetID.
func (r *RunHourRepository) Watermark(ctx context.Context, assetID string) (domain.Date, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.failErr != nil {
		return domain.Date{}, r.failErr
	}
	var latest domain.Date
	found := false
	for key := range r.data {
		if key.assetID != assetID {
			continue
		}
		if !found || key.day.After(latest) {
			latest = key.day
			found = true
		}
	}
	if !found {
		return domain.Date{}, domain.ErrNoWatermark
	}
	return latest, nil
}

// Exists reports whether a record is stored for (assetID, day).
func (r *RunHourRepository) Exists(ctx context.Context, assetID string, day domain.Date) (bool, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.failErr != nil {
		return false, r.failErr
	}
	_, ok := r.data[recordKey{assetID: assetID, day: day}]
	return ok, nil
}

// UpsertBatch stores records, replacing any with the same key.
func (r *RunHourRepository) UpsertBatch(ctx context.Context, assetID string, records []domain.RunHourRecord) error {
	_ = ctx
	if err := validateBatch(assetID, records); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	r.calls++
	for _, rec := range records {
		r.data[recordKey{assetID: assetID, day: rec.LocalDate}] = rec
		r.writes++
	}
	return nil
}

// ForceReplace deletes the range and stores records atomically.
func (r *RunHourRepository) ForceReplace(ctx context.Context, assetID string, dr domain.DateRange, records []domain.RunHourRecord) error {
	_ = ctx
	if err := validateBatch(assetID, records); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	r.calls++
	for key := range r.data {
		if key.assetID == assetID && dr.Contains(key.day) {
			delete(r.data, key)
		}
	}
	for _, rec := range records {
		r.data[recordKey{assetID: assetID, day: rec.LocalDate}] = rec
		r.writes++
	}
	return nil
}

// ListRange returns stored records for assetIDs within dr, ordered by asset then date.
func (r *RunHourRepository) ListRange(ctx context.Context, assetIDs []string, dr domain.DateRange) ([]domain.RunHourRecord, error) {
	_ = ctx
	wanted := make(map[string]struct{}, len(assetIDs))
	for _, id := range assetIDs {
		wanted[id] = struct{}{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.failErr != nil {
		return nil, r.failErr
	}
	var out []domain.RunHourRecord
	for key, rec := range r.data {
		if _, ok := wanted[key.assetID]; !ok || !dr.Contains(key.day) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AssetID != out[j].AssetID {
			return out[i].AssetID < out[j].AssetID
		}
		return out[i].LocalDate.Before(out[j].LocalDate)
	})
	return out, nil
}

// Count returns the number of stored rows.
func (r *RunHourRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

// Get returns the stored record for (assetID, day).
func (r *RunHourRepository) Get(assetID string, day domain.Date) (domain.RunHourRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.data[recordKey{assetID: assetID, day: day}]
	return rec, ok
}

func validateBatch(assetID string, records []domain.RunHourRecord) error {
	if assetID == "" {
		return domain.ErrEmptyAssetID
	}
	for _, rec := range records {
		if rec.AssetID != assetID {
			return fmt.Errorf("memory run hours: record asset %q in batch for %q", rec.AssetID, assetID)
		}
		if err := rec.Validate(); err != nil {
			return err
		}
	}
	return nil
}
