package application

import (
	"context"
	"log"
	"time"

	"asset-runhours/internal/runhours/domain"
)

// AssetLister returns the assets to process in one batch.
type AssetLister func(ctx context.Context) ([]Asset, error)

// Scheduler triggers the auto-incremental batch once a day.
type Scheduler struct {
	runner   *BatchRunner
	assets   AssetLister
	zone     domain.Zone
	dailyAt  string
	logger   *log.Logger
	onReport func(ctx context.Context, report BatchReport)
	lastRun  domain.Date
}

// NewScheduler constructs a Scheduler. dailyAt is HH:MM in zone.
func NewScheduler(runner *BatchRunner, assets AssetLister, zone domain.Zone, dailyAt string, logger *log.Logger) *Scheduler {
	return &Scheduler{
		runner:  runner,
		assets:  assets,
		zone:    zone,
		dailyAt: dailyAt,
		logger:  logger,
	}
}

// OnReport registers a hook called after every scheduled batch.
func (s *Scheduler) OnReport(fn func(ctx context.Context, report BatchReport)) {
	s.onReport = fn
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.runner == nil || s.assets == nil {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !s.shouldRun(now) {
				continue
			}
			s.runOnce(ctx, now)
		}
	}
}

func (s *Scheduler) shouldRun(now time.Time) bool {
	hour, minute, err := parseDailyAt(s.dailyAt)
	if err != nil {
		return false
	}
	local := now.In(s.zone.Location())
	if s.lastRun == s.zone.DayOf(now) {
		return false
	}
	return local.Hour() == hour && local.Minute() == minute
}

func (s *Scheduler) runOnce(ctx context.Context, now time.Time) {
	s.lastRun = s.zone.DayOf(now)
	assets, err := s.assets(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("runhours schedule error: err=%v", err)
		}
		return
	}
	report := s.runner.Run(ctx, assets, RunRequest{})
	if s.onReport != nil {
		s.onReport(ctx, report)
	}
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
