package interfaces

import (
	"context"
	"errors"
	"log"

	"asset-runhours/internal/runhours/domain"
)

// LoggingPublisher logs persisted run-hour records.
type LoggingPublisher struct {
	logger *log.Logger
}

// NewLoggingPublisher constructs a logging publisher.
func NewLoggingPublisher(logger *log.Logger) *LoggingPublisher {
	if logger == nil {
		logger = log.Default()
	}
	return &LoggingPublisher{logger: logger}
}

// PublishRunHours logs one line per record.
func (p *LoggingPublisher) PublishRunHours(ctx context.Context, records []domain.RunHourRecord) error {
	_ = ctx
	if p == nil {
		return errors.New("runhours publisher: nil publisher")
	}
	for _, rec := range records {
		p.logger.Printf("runhours record: asset_id=%s day=%s on_ms=%d off_ms=%d on_hours=%.2f",
			rec.AssetID, rec.LocalDate, rec.OnDurationMs, rec.OffDurationMs, rec.OnHours())
	}
	return nil
}
