package domain

import (
	"context"
	"errors"
	"fmt"
)

// Span is one concrete range to compute.
type Span struct {
	Range DateRange
	// Force replaces stored records in the range instead of skipping them.
	Force bool
	// Backfill marks the gap span scheduled ahead of a user range.
	Backfill bool
}

// Plan is the ordered list of spans for one asset. An empty plan means there
// is nothing to compute, which is not an error.
type Plan struct {
	AssetID string
	Spans   []Span
	// Reason explains an empty plan.
	Reason string
}

// Empty reports whether the plan has no spans.
func (p Plan) Empty() bool { return len(p.Spans) == 0 }

// ResolveRequest carries everything the resolver needs for one asset.
type ResolveRequest struct {
	AssetID   string
	Watermark *Date
	UserStart *Date
	UserEnd   *Date
	Force     bool
	Yesterday Date
}

// EarliestLogFinder returns the first day with logs on or before scanEnd, or
// ErrNoLogsFound.
type EarliestLogFinder func(ctx context.Context, scanEnd Date) (Date, error)

// ResolveRange decides which days to compute for one asset.
//
// Force ignores the watermark. Without force the watermark only moves forward:
// the default span runs from the day after the watermark to yesterday, and a
// user range starting past the watermark gets the gap scheduled first as a
// non-forced backfill span. Days up to the watermark are never recomputed
// without force.
func ResolveRange(ctx context.Context, req ResolveRequest, find EarliestLogFinder) (Plan, error) {
	plan := Plan{AssetID: req.AssetID}
	if req.AssetID == "" {
		return plan, ErrEmptyAssetID
	}
	if req.UserStart == nil && req.UserEnd != nil {
		return plan, errors.New("runhours resolver: end date without start date")
	}
	if req.UserStart != nil && req.UserEnd != nil && req.UserEnd.Before(*req.UserStart) {
		return plan, fmt.Errorf("%w: %s > %s", ErrInvalidRange, *req.UserStart, *req.UserEnd)
	}

	if req.Force {
		start, end := req.Yesterday, req.Yesterday
		if req.UserStart != nil {
			start, end = *req.UserStart, *req.UserStart
		}
		if req.UserEnd != nil {
			end = *req.UserEnd
		}
		return plan.with(Span{Range: DateRange{Start: start, End: end}, Force: true}), nil
	}

	if req.UserStart == nil {
		end := req.Yesterday
		var start Date
		if req.Watermark != nil {
			start = req.Watermark.AddDays(1)
		} else {
			if find == nil {
				return plan, errors.New("runhours resolver: nil earliest log finder")
			}
			found, err := find(ctx, end)
			if errors.Is(err, ErrNoLogsFound) {
				plan.Reason = "no logs found"
				return plan, nil
			}
			if err != nil {
				return plan, err
			}
			start = found
		}
		return plan.with(Span{Range: DateRange{Start: start, End: end}}), nil
	}

	end := *req.UserStart
	if req.UserEnd != nil {
		end = *req.UserEnd
	}
	start := *req.UserStart
	if req.Watermark != nil {
		next := req.Watermark.AddDays(1)
		if next.Before(start) {
			plan = plan.with(Span{Range: DateRange{Start: next, End: start.AddDays(-1)}, Backfill: true})
		} else {
			start = next
		}
	}
	return plan.with(Span{Range: DateRange{Start: start, End: end}}), nil
}

// with appends span unless it is empty.
func (p Plan) with(span Span) Plan {
	if span.Range.End.Before(span.Range.Start) {
		if p.Empty() {
			p.Reason = fmt.Sprintf("nothing to compute: start %s after end %s", span.Range.Start, span.Range.End)
		}
		return p
	}
	p.Spans = append(p.Spans, span)
	return p
}
