package domain

import (
	"testing"
	"time"
)

const msPerHour = int64(3_600_000)

func newTestEngine(t *testing.T) (*Engine, Zone) {
	t.Helper()
	zone := mustZone(t, "+04:00")
	engine, err := NewEngine(zone, 0)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine, zone
}

func localAt(zone Zone, day Date, hour, minute int) time.Time {
	return zone.StartOf(day).Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute).UTC()
}

func TestAggregateSplitsIntervalAtLocalMidnight(t *testing.T) {
	engine, zone := newTestEngine(t)
	d := NewDate(2024, 1, 10)
	r := DateRange{Start: d, End: d.AddDays(1)}

	result := engine.Aggregate(r, []StateEvent{
		{At: localAt(zone, d, 23, 0), State: StateOn},
		{At: localAt(zone, d.AddDays(1), 1, 0), State: StateOff},
	})

	if got := result.OnMs(d); got != msPerHour {
		t.Fatalf("day D on ms: got=%d want=%d", got, msPerHour)
	}
	if got := result.OnMs(d.AddDays(1)); got != msPerHour {
		t.Fatalf("day D+1 on ms: got=%d want=%d", got, msPerHour)
	}
	if result.AutoTerminated != nil {
		t.Fatalf("closed interval must not be auto-terminated")
	}
}

func TestAggregateStateCarriesAcrossDays(t *testing.T) {
	engine, zone := newTestEngine(t)
	d := NewDate(2024, 3, 1)
	r := DateRange{Start: d, End: d.AddDays(2)}

	result := engine.Aggregate(r, []StateEvent{
		{At: localAt(zone, d, 20, 0), State: StateOn},
		{At: localAt(zone, d.AddDays(1), 12, 0), State: StateOn},
		{At: localAt(zone, d.AddDays(2), 6, 0), State: StateOff},
	})

	if got := result.Durations.Get(d); got != 4*msPerHour {
		t.Fatalf("day 1: got %d", got)
	}
	if got := result.Durations.Get(d.AddDays(1)); got != MsPerDay {
		t.Fatalf("day 2: got %d", got)
	}
	if got := result.Durations.Get(d.AddDays(2)); got != 6*msPerHour {
		t.Fatalf("day 3: got %d", got)
	}
	if len(result.Anomalies) != 1 || result.Anomalies[0].Kind != AnomalyRepeatedOn {
		t.Fatalf("expected one repeated_on anomaly, got %+v", result.Anomalies)
	}
}

func TestAggregateDropsRepeatedOff(t *testing.T) {
	engine, zone := newTestEngine(t)
	d := NewDate(2024, 3, 1)
	r := DateRange{Start: d, End: d}

	result := engine.Aggregate(r, []StateEvent{
		{At: localAt(zone, d, 1, 0), State: StateOff},
		{At: localAt(zone, d, 2, 0), State: StateOn},
		{At: localAt(zone, d, 3, 0), State: StateOff},
		{At: localAt(zone, d, 4, 0), State: StateOff},
	})

	if got := result.OnMs(d); got != msPerHour {
		t.Fatalf("on ms: got %d", got)
	}
	if len(result.Anomalies) != 2 {
		t.Fatalf("expected 2 anomalies, got %d", len(result.Anomalies))
	}
	for _, a := range result.Anomalies {
		if a.Kind != AnomalyRepeatedOff {
			t.Fatalf("unexpected anomaly kind %s", a.Kind)
		}
	}
	if result.EventCount != 4 {
		t.Fatalf("event count: got %d", result.EventCount)
	}
}

func TestAggregateCapsHangingOn(t *testing.T) {
	engine, zone := newTestEngine(t)
	d := NewDate(2024, 5, 1)
	r := DateRange{Start: d, End: d.AddDays(2)}

	// Day 3 has an event so its credit would be visible if the cap leaked.
	result := engine.Aggregate(r, []StateEvent{
		{At: localAt(zone, d, 10, 0), State: StateOn},
		{At: localAt(zone, d.AddDays(2), 9, 0), State: StateOn},
	})

	if result.AutoTerminated == nil {
		t.Fatalf("expected auto-terminated interval")
	}
	if got := result.AutoTerminated.Duration(); got != 24*time.Hour {
		t.Fatalf("auto-terminated duration: got %s", got)
	}
	if got := result.Durations.Get(d); got != 14*msPerHour {
		t.Fatalf("day 1: got %d", got)
	}
	if got := result.Durations.Get(d.AddDays(1)); got != 10*msPerHour {
		t.Fatalf("day 2: got %d", got)
	}
	if got := result.OnMs(d.AddDays(2)); got != 0 {
		t.Fatalf("remainder beyond cap must be discarded, got %d", got)
	}
	if result.Durations.Total() != 24*msPerHour {
		t.Fatalf("total: got %d", result.Durations.Total())
	}
}

func TestAggregateHangingOnClosedAtRangeEnd(t *testing.T) {
	engine, zone := newTestEngine(t)
	d := NewDate(2024, 5, 1)
	r := DateRange{Start: d, End: d}

	result := engine.Aggregate(r, []StateEvent{{At: localAt(zone, d, 18, 0), State: StateOn}})

	if result.AutoTerminated == nil {
		t.Fatalf("expected auto-terminated interval")
	}
	if !result.AutoTerminated.End.Equal(zone.StartOf(d.AddDays(1))) {
		t.Fatalf("close should be range end, got %s", result.AutoTerminated.End)
	}
	if got := result.OnMs(d); got != 6*msPerHour {
		t.Fatalf("on ms: got %d", got)
	}
}

func TestAggregateIgnoresEventsOutsideWindowAndOutOfOrder(t *testing.T) {
	engine, zone := newTestEngine(t)
	d := NewDate(2024, 6, 1)
	r := DateRange{Start: d, End: d}

	fold := engine.Begin(r)
	fold.Observe(StateEvent{At: localAt(zone, d.AddDays(-1), 22, 0), State: StateOn})
	fold.Observe(StateEvent{At: localAt(zone, d, 8, 0), State: StateOn})
	if _, dropped := fold.Observe(StateEvent{At: localAt(zone, d, 7, 0), State: StateOff}); !dropped {
		t.Fatalf("out-of-order event should be dropped")
	}
	fold.Observe(StateEvent{At: localAt(zone, d, 9, 30), State: StateOff})
	fold.Observe(StateEvent{At: localAt(zone, d.AddDays(1), 0, 0), State: StateOn})
	result := fold.Finish()

	if got := result.OnMs(d); got != 90*60*1000 {
		t.Fatalf("on ms: got %d", got)
	}
	if result.EventCount != 2 {
		t.Fatalf("event count: got %d", result.EventCount)
	}
	if result.AutoTerminated != nil {
		t.Fatalf("event at window end must be ignored")
	}
}

func TestBuildRecordsKeepsDayInvariant(t *testing.T) {
	engine, zone := newTestEngine(t)
	d := NewDate(2024, 7, 1)
	r := DateRange{Start: d, End: d.AddDays(3)}

	// ON from day 1 to day 3 with no event on day 2: day 2 is presumed OFF.
	result := engine.Aggregate(r, []StateEvent{
		{At: localAt(zone, d, 12, 0), State: StateOn},
		{At: localAt(zone, d.AddDays(2), 3, 0), State: StateOff},
	})
	records, err := BuildRecords("AC_001", result, nil)
	if err != nil {
		t.Fatalf("build records: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}
	for _, rec := range records {
		if rec.OnDurationMs+rec.OffDurationMs != MsPerDay {
			t.Fatalf("day invariant broken for %s: %+v", rec.LocalDate, rec)
		}
		if err := rec.Validate(); err != nil {
			t.Fatalf("validate %s: %v", rec.LocalDate, err)
		}
	}
	if records[0].OnDurationMs != 12*msPerHour {
		t.Fatalf("day 1 on: got %d", records[0].OnDurationMs)
	}
	if records[1].OnDurationMs != 0 || records[3].OnDurationMs != 0 {
		t.Fatalf("days without events must be 0: %+v %+v", records[1], records[3])
	}
	if records[2].OnDurationMs != 3*msPerHour {
		t.Fatalf("day 3 on: got %d", records[2].OnDurationMs)
	}

	skipped, err := BuildRecords("AC_001", result, func(day Date) bool { return day == d })
	if err != nil {
		t.Fatalf("build records with skip: %v", err)
	}
	if len(skipped) != 3 {
		t.Fatalf("expected 3 records after skip, got %d", len(skipped))
	}
}

func TestDailyDurationOrderedAndSaturated(t *testing.T) {
	acc := NewDailyDuration()
	acc.Add(NewDate(2024, 1, 3), 10)
	acc.Add(NewDate(2024, 1, 1), 10)
	acc.Add(NewDate(2024, 1, 2), MsPerDay)
	acc.Add(NewDate(2024, 1, 2), 5)
	acc.Add(NewDate(2024, 1, 4), 0)

	days := acc.Days()
	if len(days) != 3 {
		t.Fatalf("expected 3 days, got %v", days)
	}
	for i := 1; i < len(days); i++ {
		if !days[i-1].Before(days[i]) {
			t.Fatalf("days not ordered: %v", days)
		}
	}
	if got := acc.Get(NewDate(2024, 1, 2)); got != MsPerDay {
		t.Fatalf("saturation: got %d", got)
	}
}

func TestNewRunHourRecordRejectsOutOfRange(t *testing.T) {
	if _, err := NewRunHourRecord("", NewDate(2024, 1, 1), 0); err == nil {
		t.Fatalf("expected error for empty asset id")
	}
	if _, err := NewRunHourRecord("AC_001", NewDate(2024, 1, 1), MsPerDay+1); err == nil {
		t.Fatalf("expected error for duration above one day")
	}
	rec, err := NewRunHourRecord("AC_001", NewDate(2024, 1, 1), MsPerDay)
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	if rec.OffDurationMs != 0 || rec.OnHours() != 24 {
		t.Fatalf("unexpected record %+v", rec)
	}
}
