package domain

import (
	"context"
	"fmt"
)

// DefaultMaxDaysBack is the discovery probe budget.
const DefaultMaxDaysBack = 365

// DayProbe reports whether the UTC partition for day holds any log.
type DayProbe func(ctx context.Context, day Date) (bool, error)

// DiscoveryRequest bounds an earliest-log scan.
type DiscoveryRequest struct {
	AssetID     string
	CreatedOn   *Date
	ScanEnd     Date
	MaxDaysBack int
	// OnProbeError is called when a single probe fails; the scan continues.
	OnProbeError func(day Date, err error)
}

// DiscoverEarliestLog probes days ascending from
// max(CreatedOn, ScanEnd-MaxDaysBack) to ScanEnd and returns the first day with
// data. Log presence is not contiguous, so the scan is linear rather than a
// bisection.
func DiscoverEarliestLog(ctx context.Context, req DiscoveryRequest, probe DayProbe) (Date, error) {
	if probe == nil {
		return Date{}, fmt.Errorf("runhours discovery: nil probe")
	}
	maxDaysBack := req.MaxDaysBack
	if maxDaysBack <= 0 {
		maxDaysBack = DefaultMaxDaysBack
	}
	start := req.ScanEnd.AddDays(-maxDaysBack)
	if req.CreatedOn != nil && req.CreatedOn.After(start) {
		start = *req.CreatedOn
	}

	for day := start; !day.After(req.ScanEnd); day = day.AddDays(1) {
		if err := ctx.Err(); err != nil {
			return Date{}, err
		}
		ok, err := probe(ctx, day)
		if err != nil {
			if req.OnProbeError != nil {
				req.OnProbeError(day, err)
			}
			continue
		}
		if ok {
			return day, nil
		}
	}
	return Date{}, fmt.Errorf("%w: asset=%s scan=%s..%s", ErrNoLogsFound, req.AssetID, start, req.ScanEnd)
}
