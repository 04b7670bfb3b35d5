package domain

import "fmt"

// RunHourRecord is the durable per-day result for one asset.
// OnDurationMs + OffDurationMs always equals MsPerDay.
type RunHourRecord struct {
	AssetID       string
	LocalDate     Date
	OnDurationMs  int64
	OffDurationMs int64
}

// NewRunHourRecord derives the OFF duration from onMs.
func NewRunHourRecord(assetID string, day Date, onMs int64) (RunHourRecord, error) {
	if assetID == "" {
		return RunHourRecord{}, ErrEmptyAssetID
	}
	if onMs < 0 || onMs > MsPerDay {
		return RunHourRecord{}, fmt.Errorf("%w: %d", ErrInvalidDuration, onMs)
	}
	return RunHourRecord{
		AssetID:       assetID,
		LocalDate:     day,
		OnDurationMs:  onMs,
		OffDurationMs: MsPerDay - onMs,
	}, nil
}

// Validate checks the record invariants.
func (r RunHourRecord) Validate() error {
	if r.AssetID == "" {
		return ErrEmptyAssetID
	}
	if r.LocalDate.IsZero() {
		return ErrInvalidDate
	}
	if r.OnDurationMs < 0 || r.OnDurationMs > MsPerDay || r.OnDurationMs+r.OffDurationMs != MsPerDay {
		return fmt.Errorf("%w: on=%d off=%d", ErrInvalidDuration, r.OnDurationMs, r.OffDurationMs)
	}
	return nil
}

// OnHours returns the ON duration in hours.
func (r RunHourRecord) OnHours() float64 {
	return float64(r.OnDurationMs) / float64(3_600_000)
}

// BuildRecords produces one record per day of the aggregated range.
// skip, when non-nil, filters out days that must not be written.
func BuildRecords(assetID string, result AggregationResult, skip func(Date) bool) ([]RunHourRecord, error) {
	var records []RunHourRecord
	for _, day := range result.Range.Dates() {
		if skip != nil && skip(day) {
			continue
		}
		record, err := NewRunHourRecord(assetID, day, result.OnMs(day))
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}
