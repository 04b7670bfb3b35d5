package domain

import (
	"errors"
	"sort"
	"time"
)

// DefaultHangingOnCap bounds an ON interval that never sees its closing OFF.
const DefaultHangingOnCap = 24 * time.Hour

// DailyDuration maps local days to accumulated ON milliseconds, kept in date order.
// It belongs to a single aggregation and is never shared across assets or runs.
type DailyDuration struct {
	days []Date
	ms   map[Date]int64
}

// NewDailyDuration returns an empty accumulator.
func NewDailyDuration() *DailyDuration {
	return &DailyDuration{ms: make(map[Date]int64)}
}

// Add credits ms to day. Values saturate at MsPerDay.
func (d *DailyDuration) Add(day Date, ms int64) {
	if ms <= 0 {
		return
	}
	current, ok := d.ms[day]
	if !ok {
		d.insert(day)
	}
	current += ms
	if current > MsPerDay {
		current = MsPerDay
	}
	d.ms[day] = current
}

// Get returns the ON milliseconds credited to day.
func (d *DailyDuration) Get(day Date) int64 { return d.ms[day] }

// Days returns the credited days ascending.
func (d *DailyDuration) Days() []Date {
	out := make([]Date, len(d.days))
	copy(out, d.days)
	return out
}

// Len returns the number of credited days.
func (d *DailyDuration) Len() int { return len(d.days) }

// Total returns the sum over all days.
func (d *DailyDuration) Total() int64 {
	var total int64
	for _, day := range d.days {
		total += d.ms[day]
	}
	return total
}

func (d *DailyDuration) insert(day Date) {
	n := len(d.days)
	if n == 0 || d.days[n-1].Before(day) {
		d.days = append(d.days, day)
		return
	}
	idx := sort.Search(n, func(i int) bool { return !d.days[i].Before(day) })
	d.days = append(d.days, Date{})
	copy(d.days[idx+1:], d.days[idx:])
	d.days[idx] = day
}

// DistributeInterval splits [start, end) at local midnights and credits each piece
// to its local day. Cost is proportional to the number of days spanned.
func DistributeInterval(zone Zone, start, end time.Time, acc *DailyDuration) {
	for t0 := start; t0.Before(end); {
		next := zone.NextMidnight(t0)
		stop := next
		if end.Before(next) {
			stop = end
		}
		acc.Add(zone.DayOf(t0), stop.Sub(t0).Milliseconds())
		t0 = next
	}
}

// AnomalyKind classifies a discarded event.
type AnomalyKind string

const (
	AnomalyRepeatedOn  AnomalyKind = "repeated_on"
	AnomalyRepeatedOff AnomalyKind = "repeated_off"
	AnomalyOutOfOrder  AnomalyKind = "out_of_order"
)

// Anomaly records an event that was dropped without changing state.
type Anomaly struct {
	Kind  AnomalyKind
	Event StateEvent
}

// Interval is a half-open span of instants.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Duration returns End - Start.
func (i Interval) Duration() time.Duration { return i.End.Sub(i.Start) }

// AggregationResult is the outcome of folding one span of events.
type AggregationResult struct {
	Range      DateRange
	Durations  *DailyDuration
	EventDays  map[Date]struct{}
	EventCount int
	Anomalies  []Anomaly
	// AutoTerminated is the synthesized interval for an ON state left open at
	// the end of the range; nil when every ON was closed by an OFF.
	AutoTerminated *Interval
}

// HasEvents reports whether day had at least one event.
func (r AggregationResult) HasEvents(day Date) bool {
	_, ok := r.EventDays[day]
	return ok
}

// OnMs returns the ON milliseconds to record for day. Days without events are
// presumed fully OFF.
func (r AggregationResult) OnMs(day Date) int64 {
	if !r.HasEvents(day) || r.Durations == nil {
		return 0
	}
	on := r.Durations.Get(day)
	if on > MsPerDay {
		return MsPerDay
	}
	return on
}

// Engine folds ordered state events into per-day ON durations.
type Engine struct {
	zone       Zone
	hangingCap time.Duration
}

// NewEngine builds an engine for zone. A non-positive cap uses DefaultHangingOnCap.
func NewEngine(zone Zone, hangingCap time.Duration) (*Engine, error) {
	if zone.loc == nil {
		return nil, errors.New("runhours engine: zone not initialized")
	}
	if hangingCap <= 0 {
		hangingCap = DefaultHangingOnCap
	}
	return &Engine{zone: zone, hangingCap: hangingCap}, nil
}

// Zone returns the engine's zone.
func (e *Engine) Zone() Zone { return e.zone }

// HangingCap returns the auto-termination cap.
func (e *Engine) HangingCap() time.Duration { return e.hangingCap }

// Aggregate sorts events and folds them over r in one pass.
func (e *Engine) Aggregate(r DateRange, events []StateEvent) AggregationResult {
	sorted := make([]StateEvent, len(events))
	copy(sorted, events)
	SortEvents(sorted)

	fold := e.Begin(r)
	for _, ev := range sorted {
		fold.Observe(ev)
	}
	return fold.Finish()
}

// Begin starts an incremental fold over r. Events must then be observed in
// ascending time order.
func (e *Engine) Begin(r DateRange) *Fold {
	start, end := e.zone.Window(r)
	return &Fold{
		engine:      e,
		windowStart: start,
		windowEnd:   end,
		result: AggregationResult{
			Range:     r,
			Durations: NewDailyDuration(),
			EventDays: make(map[Date]struct{}),
		},
	}
}

// Fold holds the ON/OFF state machine for one span. The state carries across
// day boundaries and is only reset by Finish.
type Fold struct {
	engine      *Engine
	windowStart time.Time
	windowEnd   time.Time
	on          bool
	onSince     time.Time
	last        time.Time
	seen        bool
	finished    bool
	result      AggregationResult
}

// Observe applies one event. It returns the anomaly when the event was dropped.
// Events outside the span window are ignored.
func (f *Fold) Observe(ev StateEvent) (Anomaly, bool) {
	if f.finished {
		return Anomaly{}, false
	}
	if ev.At.Before(f.windowStart) || !ev.At.Before(f.windowEnd) {
		return Anomaly{}, false
	}
	if f.seen && ev.At.Before(f.last) {
		return f.drop(AnomalyOutOfOrder, ev), true
	}
	f.seen = true
	f.last = ev.At
	f.result.EventCount++
	f.result.EventDays[f.engine.zone.DayOf(ev.At)] = struct{}{}

	switch ev.State {
	case StateOn:
		if f.on {
			return f.drop(AnomalyRepeatedOn, ev), true
		}
		f.on = true
		f.onSince = ev.At
	case StateOff:
		if !f.on {
			return f.drop(AnomalyRepeatedOff, ev), true
		}
		DistributeInterval(f.engine.zone, f.onSince, ev.At, f.result.Durations)
		f.on = false
		f.onSince = time.Time{}
	}
	return Anomaly{}, false
}

// Finish closes a hanging ON at min(window end, open + cap) and returns the result.
// Anything past the cap is discarded.
func (f *Fold) Finish() AggregationResult {
	if f.finished {
		return f.result
	}
	f.finished = true
	if f.on {
		closeAt := f.onSince.Add(f.engine.hangingCap)
		if f.windowEnd.Before(closeAt) {
			closeAt = f.windowEnd
		}
		DistributeInterval(f.engine.zone, f.onSince, closeAt, f.result.Durations)
		f.result.AutoTerminated = &Interval{Start: f.onSince, End: closeAt}
		f.on = false
	}
	return f.result
}

func (f *Fold) drop(kind AnomalyKind, ev StateEvent) Anomaly {
	a := Anomaly{Kind: kind, Event: ev}
	f.result.Anomalies = append(f.result.Anomalies, a)
	return a
}
