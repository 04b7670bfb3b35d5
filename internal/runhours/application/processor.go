package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"asset-runhours/internal/observability/metrics"
	"asset-runhours/internal/runhours/domain"
)

// Asset run statuses.
const (
	StatusSucceeded = metrics.ResultSucceeded
	StatusSkipped   = metrics.ResultSkipped
	StatusFailed    = metrics.ResultFailed
)

// ProcessorConfig tunes per-asset processing.
type ProcessorConfig struct {
	Fetch        RetryPolicy
	ProbeTimeout time.Duration
	WriteTimeout time.Duration
	MaxDaysBack  int
	Debug        bool
}

// RunRequest is the user input shared by every asset of a run.
type RunRequest struct {
	UserStart *domain.Date
	UserEnd   *domain.Date
	Force     bool
}

// SpanOutcome summarizes one computed span.
type SpanOutcome struct {
	Span           domain.Span
	Events         int
	EventDays      int
	Anomalies      int
	AutoTerminated bool
	FetchFailures  int
	Written        int
	Skipped        int
	Err            error
}

// AssetOutcome summarizes one asset run.
type AssetOutcome struct {
	AssetID  string
	Status   string
	Plan     domain.Plan
	Spans    []SpanOutcome
	Err      error
	Duration time.Duration
}

// DaysWritten sums written days over all spans.
func (o AssetOutcome) DaysWritten() int {
	total := 0
	for _, s := range o.Spans {
		total += s.Written
	}
	return total
}

// DaysSkipped sums days skipped because they were already stored.
func (o AssetOutcome) DaysSkipped() int {
	total := 0
	for _, s := range o.Spans {
		total += s.Skipped
	}
	return total
}

// Events sums folded events over all spans.
func (o AssetOutcome) Events() int {
	total := 0
	for _, s := range o.Spans {
		total += s.Events
	}
	return total
}

// EventDays sums local days with at least one event.
func (o AssetOutcome) EventDays() int {
	total := 0
	for _, s := range o.Spans {
		total += s.EventDays
	}
	return total
}

// Anomalies sums dropped events over all spans.
func (o AssetOutcome) Anomalies() int {
	total := 0
	for _, s := range o.Spans {
		total += s.Anomalies
	}
	return total
}

// Processor runs resolve, aggregate and persist for one asset at a time.
type Processor struct {
	engine    *domain.Engine
	events    EventSource
	store     RunHourStore
	publisher RecordPublisher
	clock     Clock
	logger    *log.Logger
	cfg       ProcessorConfig
}

// NewProcessor constructs a Processor. publisher may be nil.
func NewProcessor(engine *domain.Engine, events EventSource, store RunHourStore, publisher RecordPublisher, clock Clock, logger *log.Logger, cfg ProcessorConfig) (*Processor, error) {
	if engine == nil {
		return nil, errors.New("runhours processor: nil engine")
	}
	if events == nil {
		return nil, errors.New("runhours processor: nil event source")
	}
	if store == nil {
		return nil, errors.New("runhours processor: nil store")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if cfg.MaxDaysBack <= 0 {
		cfg.MaxDaysBack = domain.DefaultMaxDaysBack
	}
	return &Processor{
		engine:    engine,
		events:    events,
		store:     store,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
		cfg:       cfg,
	}, nil
}

// ProcessAsset resolves the asset's plan and computes every span in order.
// A failed span stops the remaining spans of that asset.
func (p *Processor) ProcessAsset(ctx context.Context, asset Asset, req RunRequest) AssetOutcome {
	started := p.clock.Now()
	outcome := AssetOutcome{AssetID: asset.ID}
	finish := func(status string, err error) AssetOutcome {
		outcome.Status = status
		outcome.Err = err
		outcome.Duration = p.clock.Now().Sub(started)
		metrics.ObserveAssetRun(status, outcome.Duration)
		return outcome
	}

	if asset.ID == "" {
		return finish(StatusFailed, domain.ErrEmptyAssetID)
	}

	resolveReq := domain.ResolveRequest{
		AssetID:   asset.ID,
		UserStart: req.UserStart,
		UserEnd:   req.UserEnd,
		Force:     req.Force,
		Yesterday: p.engine.Zone().Yesterday(started),
	}
	if !req.Force {
		watermark, err := p.watermark(ctx, asset.ID)
		if err != nil {
			p.logf("error: runhours watermark lookup failed: asset_id=%s err=%v", asset.ID, err)
			return finish(StatusFailed, err)
		}
		resolveReq.Watermark = watermark
	}

	plan, err := domain.ResolveRange(ctx, resolveReq, p.earliestLogFinder(asset))
	if err != nil {
		p.logf("error: runhours resolve failed: asset_id=%s err=%v", asset.ID, err)
		return finish(StatusFailed, err)
	}
	outcome.Plan = plan
	if plan.Empty() {
		p.logf("runhours asset skipped: asset_id=%s reason=%q", asset.ID, plan.Reason)
		return finish(StatusSkipped, nil)
	}

	for _, span := range plan.Spans {
		spanOutcome := p.runSpan(ctx, asset.ID, span)
		outcome.Spans = append(outcome.Spans, spanOutcome)
		if spanOutcome.Err != nil {
			p.logf("error: runhours span failed: asset_id=%s range=%s err=%v", asset.ID, span.Range, spanOutcome.Err)
			return finish(StatusFailed, spanOutcome.Err)
		}
	}
	return finish(StatusSucceeded, nil)
}

func (p *Processor) watermark(ctx context.Context, assetID string) (*domain.Date, error) {
	storeCtx, cancel := withTimeout(ctx, p.cfg.WriteTimeout)
	defer cancel()
	day, err := p.store.Watermark(storeCtx, assetID)
	if errors.Is(err, domain.ErrNoWatermark) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}
	return &day, nil
}

func (p *Processor) earliestLogFinder(asset Asset) domain.EarliestLogFinder {
	return func(ctx context.Context, scanEnd domain.Date) (domain.Date, error) {
		req := domain.DiscoveryRequest{
			AssetID:     asset.ID,
			CreatedOn:   asset.CreatedOn,
			ScanEnd:     scanEnd,
			MaxDaysBack: p.cfg.MaxDaysBack,
			OnProbeError: func(day domain.Date, err error) {
				metrics.IncFetchError("probe")
				p.logf("warn: runhours probe failed: asset_id=%s utc_date=%s err=%v", asset.ID, day, err)
			},
		}
		day, err := domain.DiscoverEarliestLog(ctx, req, func(ctx context.Context, day domain.Date) (bool, error) {
			probeCtx, cancel := withTimeout(ctx, p.cfg.ProbeTimeout)
			defer cancel()
			return p.events.ProbeDayHasData(probeCtx, asset.ID, day)
		})
		if err == nil {
			p.logf("runhours earliest log discovered: asset_id=%s date=%s", asset.ID, day)
		}
		return day, err
	}
}

func (p *Processor) runSpan(ctx context.Context, assetID string, span domain.Span) SpanOutcome {
	out := SpanOutcome{Span: span}
	zone := p.engine.Zone()

	var events []domain.StateEvent
	for _, utcDate := range zone.PartitionDates(span.Range) {
		dayEvents, err := p.fetchDay(ctx, assetID, utcDate)
		if err != nil {
			if ctx.Err() != nil {
				out.Err = ctx.Err()
				return out
			}
			// Degrade to "no logs that day" and keep going.
			out.FetchFailures++
			metrics.IncFetchError("fetch")
			p.logf("error: runhours fetch failed: asset_id=%s utc_date=%s err=%v", assetID, utcDate, err)
			continue
		}
		events = append(events, dayEvents...)
	}

	result := p.engine.Aggregate(span.Range, events)
	out.Events = result.EventCount
	out.EventDays = len(result.EventDays)
	out.Anomalies = len(result.Anomalies)
	metrics.AddEventsProcessed(result.EventCount)
	for _, a := range result.Anomalies {
		metrics.IncAnomaly(string(a.Kind))
		p.logf("warn: runhours event dropped: asset_id=%s kind=%s at=%s state=%s",
			assetID, a.Kind, a.Event.At.UTC().Format(time.RFC3339), a.Event.State)
	}
	if result.AutoTerminated != nil {
		out.AutoTerminated = true
		metrics.IncAutoTerminated()
		p.logf("warn: runhours hanging on auto-terminated: asset_id=%s open=%s close=%s",
			assetID, result.AutoTerminated.Start.UTC().Format(time.RFC3339), result.AutoTerminated.End.UTC().Format(time.RFC3339))
	}

	var skip func(domain.Date) bool
	if !span.Force {
		existing, err := p.existingDays(ctx, assetID, span.Range)
		if err != nil {
			out.Err = err
			return out
		}
		out.Skipped = len(existing)
		skip = func(day domain.Date) bool {
			_, ok := existing[day]
			return ok
		}
	}

	records, err := domain.BuildRecords(assetID, result, skip)
	if err != nil {
		out.Err = err
		return out
	}

	if err := p.persist(ctx, assetID, span, records); err != nil {
		out.Err = err
		return out
	}
	out.Written = len(records)
	mode := metrics.ModeUpsert
	if span.Force {
		mode = metrics.ModeForce
	}
	metrics.AddDaysWritten(mode, out.Written)
	metrics.AddDaysSkipped(out.Skipped)

	p.logf("runhours span done: asset_id=%s range=%s force=%t backfill=%t events=%d anomalies=%d written=%d skipped=%d",
		assetID, span.Range, span.Force, span.Backfill, out.Events, out.Anomalies, out.Written, out.Skipped)

	if p.publisher != nil && len(records) > 0 {
		if err := p.publisher.PublishRunHours(ctx, records); err != nil {
			metrics.IncPublishError()
			p.logf("warn: runhours publish failed: asset_id=%s range=%s err=%v", assetID, span.Range, err)
		}
	}
	return out
}

func (p *Processor) fetchDay(ctx context.Context, assetID string, utcDate domain.Date) ([]domain.StateEvent, error) {
	var events []domain.StateEvent
	err := p.cfg.Fetch.do(ctx, func(attemptCtx context.Context) error {
		fetched, err := p.events.FetchDayEvents(attemptCtx, assetID, utcDate)
		if err != nil {
			p.debugf("runhours fetch attempt failed: asset_id=%s utc_date=%s err=%v", assetID, utcDate, err)
			return err
		}
		events = fetched
		return nil
	})
	return events, err
}

func (p *Processor) existingDays(ctx context.Context, assetID string, r domain.DateRange) (map[domain.Date]struct{}, error) {
	existing := make(map[domain.Date]struct{})
	for _, day := range r.Dates() {
		storeCtx, cancel := withTimeout(ctx, p.cfg.WriteTimeout)
		ok, err := p.store.Exists(storeCtx, assetID, day)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("exists %s: %w", day, err)
		}
		if ok {
			existing[day] = struct{}{}
		}
	}
	return existing, nil
}

func (p *Processor) persist(ctx context.Context, assetID string, span domain.Span, records []domain.RunHourRecord) error {
	storeCtx, cancel := withTimeout(ctx, p.cfg.WriteTimeout)
	defer cancel()
	if span.Force {
		if err := p.store.ForceReplace(storeCtx, assetID, span.Range, records); err != nil {
			return fmt.Errorf("force replace %s: %w", span.Range, err)
		}
		return nil
	}
	if len(records) == 0 {
		return nil
	}
	if err := p.store.UpsertBatch(storeCtx, assetID, records); err != nil {
		return fmt.Errorf("upsert %s: %w", span.Range, err)
	}
	return nil
}

func (p *Processor) logf(format string, args ...any) {
	if p.logger == nil {
		return
	}
	p.logger.Printf(format, args...)
}

func (p *Processor) debugf(format string, args ...any) {
	if !p.cfg.Debug {
		return
	}
	p.logf("debug: "+format, args...)
}
