package application

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"asset-runhours/internal/observability/metrics"
)

// DefaultWorkers is the asset concurrency when none is configured.
const DefaultWorkers = 4

// AssetProcessor computes one asset.
type AssetProcessor interface {
	ProcessAsset(ctx context.Context, asset Asset, req RunRequest) AssetOutcome
}

// BatchReport is the outcome of one batch over many assets.
type BatchReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Request    RunRequest
	Outcomes   []AssetOutcome
}

// Count returns the number of outcomes with status.
func (r BatchReport) Count(status string) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// DaysWritten sums written days over all assets.
func (r BatchReport) DaysWritten() int {
	total := 0
	for _, o := range r.Outcomes {
		total += o.DaysWritten()
	}
	return total
}

// Events sums folded events over all assets.
func (r BatchReport) Events() int {
	total := 0
	for _, o := range r.Outcomes {
		total += o.Events()
	}
	return total
}

// EventDays sums days with events over all assets.
func (r BatchReport) EventDays() int {
	total := 0
	for _, o := range r.Outcomes {
		total += o.EventDays()
	}
	return total
}

// ProcessedAssetIDs lists assets that were not failed, in outcome order.
func (r BatchReport) ProcessedAssetIDs() []string {
	var ids []string
	for _, o := range r.Outcomes {
		if o.Status != StatusFailed {
			ids = append(ids, o.AssetID)
		}
	}
	return ids
}

// Result is the batch-level metrics label: failed when any asset failed.
func (r BatchReport) Result() string {
	if r.Count(StatusFailed) > 0 {
		return StatusFailed
	}
	return StatusSucceeded
}

// BatchRunner processes assets on a bounded worker pool. One asset's failure
// never cancels the others.
type BatchRunner struct {
	processor AssetProcessor
	workers   int
	clock     Clock
	logger    *log.Logger
}

// NewBatchRunner constructs a BatchRunner.
func NewBatchRunner(processor AssetProcessor, workers int, clock Clock, logger *log.Logger) (*BatchRunner, error) {
	if processor == nil {
		return nil, errors.New("runhours batch: nil processor")
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &BatchRunner{processor: processor, workers: workers, clock: clock, logger: logger}, nil
}

// Run processes every asset once. Duplicate ids are processed once; outcomes
// keep the input order.
func (b *BatchRunner) Run(ctx context.Context, assets []Asset, req RunRequest) BatchReport {
	report := BatchReport{
		RunID:     uuid.NewString(),
		StartedAt: b.clock.Now(),
		Request:   req,
	}

	unique := make([]Asset, 0, len(assets))
	seen := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		if _, ok := seen[a.ID]; ok {
			b.logf("warn: runhours duplicate asset ignored: run_id=%s asset_id=%s", report.RunID, a.ID)
			continue
		}
		seen[a.ID] = struct{}{}
		unique = append(unique, a)
	}

	b.logf("runhours batch start: run_id=%s assets=%d workers=%d force=%t range=%s",
		report.RunID, len(unique), b.workers, req.Force, describeRequest(req))

	outcomes := make([]AssetOutcome, len(unique))
	var g errgroup.Group
	g.SetLimit(b.workers)
	for i, asset := range unique {
		i, asset := i, asset
		g.Go(func() error {
			if ctx.Err() != nil {
				outcomes[i] = AssetOutcome{AssetID: asset.ID, Status: StatusFailed, Err: ctx.Err()}
				return nil
			}
			outcomes[i] = b.processor.ProcessAsset(ctx, asset, req)
			return nil
		})
	}
	_ = g.Wait()

	report.Outcomes = outcomes
	report.FinishedAt = b.clock.Now()
	metrics.ObserveBatch(report.Result(), report.FinishedAt, report.FinishedAt.Sub(report.StartedAt))

	for _, o := range report.Outcomes {
		if o.Status == StatusFailed {
			b.logf("error: runhours asset failed: run_id=%s asset_id=%s err=%v", report.RunID, o.AssetID, o.Err)
		}
	}
	b.logf("runhours batch done: run_id=%s succeeded=%d skipped=%d failed=%d days_written=%d events=%d event_days=%d duration=%s",
		report.RunID, report.Count(StatusSucceeded), report.Count(StatusSkipped), report.Count(StatusFailed),
		report.DaysWritten(), report.Events(), report.EventDays(), report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	return report
}

func (b *BatchRunner) logf(format string, args ...any) {
	if b.logger == nil {
		return
	}
	b.logger.Printf(format, args...)
}

func describeRequest(req RunRequest) string {
	switch {
	case req.UserStart == nil:
		return "auto"
	case req.UserEnd == nil:
		return req.UserStart.String()
	default:
		return req.UserStart.String() + ".." + req.UserEnd.String()
	}
}
