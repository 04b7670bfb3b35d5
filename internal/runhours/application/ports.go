package application

import (
	"context"
	"time"

	"asset-runhours/internal/runhours/domain"
)

// EventSource reads raw state events partitioned by UTC date.
type EventSource interface {
	// FetchDayEvents returns the events of one UTC partition, empty when there are none.
	FetchDayEvents(ctx context.Context, assetID string, utcDate domain.Date) ([]domain.StateEvent, error)
	// ProbeDayHasData reports whether the UTC partition holds at least one row.
	ProbeDayHasData(ctx context.Context, assetID string, utcDate domain.Date) (bool, error)
}

// RunHourStore persists daily run-hour records.
type RunHourStore interface {
	// Watermark returns the latest stored local date or domain.ErrNoWatermark.
	Watermark(ctx context.Context, assetID string) (domain.Date, error)
	Exists(ctx context.Context, assetID string, day domain.Date) (bool, error)
	UpsertBatch(ctx context.Context, assetID string, records []domain.RunHourRecord) error
	ForceReplace(ctx context.Context, assetID string, r domain.DateRange, records []domain.RunHourRecord) error
}

// RunHourReader reads stored records back for reporting.
type RunHourReader interface {
	ListRange(ctx context.Context, assetIDs []string, r domain.DateRange) ([]domain.RunHourRecord, error)
}

// RecordPublisher announces persisted records downstream.
type RecordPublisher interface {
	PublishRunHours(ctx context.Context, records []domain.RunHourRecord) error
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Asset is one monitored asset to process.
type Asset struct {
	ID          string
	DisplayName string
	// CreatedOn bounds earliest-log discovery; nil when unknown.
	CreatedOn *domain.Date
}
