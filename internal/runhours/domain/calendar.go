package domain

import (
	"fmt"
	"strings"
	"time"
)

// MsPerDay is the length of one local calendar day in milliseconds.
const MsPerDay int64 = 24 * 60 * 60 * 1000

const dateLayout = "2006-01-02"

// Date is a civil calendar date without a location.
// Whether it is a local day or a UTC partition day depends on the caller.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate builds a normalized date (2024-01-32 becomes 2024-02-01).
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(value string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(value))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return DateOf(t), nil
}

// IsZero reports whether d is the zero date.
func (d Date) IsZero() bool { return d == Date{} }

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.midnightUTC().AddDate(0, 0, n))
}

// Before reports whether d is strictly before o.
func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }

// After reports whether d is strictly after o.
func (d Date) After(o Date) bool { return d.Compare(o) > 0 }

// Compare returns -1, 0 or +1.
func (d Date) Compare(o Date) int {
	return d.midnightUTC().Compare(o.midnightUTC())
}

// DaysUntil returns the number of days from d to o (negative when o is earlier).
func (d Date) DaysUntil(o Date) int {
	return int(o.midnightUTC().Sub(d.midnightUTC()) / (24 * time.Hour))
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string { return d.midnightUTC().Format(dateLayout) }

// MidnightUTC returns the date's midnight in UTC, the key used for UTC partitions.
func (d Date) MidnightUTC() time.Time { return d.midnightUTC() }

func (d Date) midnightUTC() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// DateRange is an inclusive span of calendar dates.
type DateRange struct {
	Start Date
	End   Date
}

// NewDateRange validates start <= end.
func NewDateRange(start, end Date) (DateRange, error) {
	if end.Before(start) {
		return DateRange{}, fmt.Errorf("%w: %s > %s", ErrInvalidRange, start, end)
	}
	return DateRange{Start: start, End: end}, nil
}

// Days returns the number of days in the range.
func (r DateRange) Days() int { return r.Start.DaysUntil(r.End) + 1 }

// Contains reports whether d lies in the range.
func (r DateRange) Contains(d Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// Dates lists every date in the range ascending.
func (r DateRange) Dates() []Date {
	if r.End.Before(r.Start) {
		return nil
	}
	dates := make([]Date, 0, r.Days())
	for d := r.Start; !d.After(r.End); d = d.AddDays(1) {
		dates = append(dates, d)
	}
	return dates
}

func (r DateRange) String() string { return r.Start.String() + ".." + r.End.String() }

// Zone is the fixed UTC offset used for local-day bucketing.
// It is an immutable value; there is no process-wide timezone.
type Zone struct {
	loc    *time.Location
	offset time.Duration
}

// NewZone builds a fixed zone. Offsets must be whole minutes within (-24h, 24h).
func NewZone(offset time.Duration) (Zone, error) {
	if offset%time.Minute != 0 || offset <= -24*time.Hour || offset >= 24*time.Hour {
		return Zone{}, fmt.Errorf("%w: %s", ErrInvalidOffset, offset)
	}
	return Zone{
		loc:    time.FixedZone("UTC"+formatOffset(offset), int(offset/time.Second)),
		offset: offset,
	}, nil
}

// ParseZone accepts "+04:00", "-0530", "Z" or "UTC".
func ParseZone(value string) (Zone, error) {
	value = strings.TrimSpace(value)
	switch strings.ToUpper(value) {
	case "", "Z", "UTC":
		return NewZone(0)
	}
	for _, layout := range []string{"-07:00", "-0700", "-07"} {
		if t, err := time.Parse(layout, value); err == nil {
			_, seconds := t.Zone()
			return NewZone(time.Duration(seconds) * time.Second)
		}
	}
	return Zone{}, fmt.Errorf("%w: %q", ErrInvalidOffset, value)
}

// Location returns the fixed location.
func (z Zone) Location() *time.Location {
	if z.loc == nil {
		return time.UTC
	}
	return z.loc
}

// Offset returns the offset from UTC.
func (z Zone) Offset() time.Duration { return z.offset }

func (z Zone) String() string { return "UTC" + formatOffset(z.offset) }

// StartOf returns local midnight of d as an instant.
func (z Zone) StartOf(d Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, z.Location())
}

// DayOf returns the local date containing t.
func (z Zone) DayOf(t time.Time) Date { return DateOf(t.In(z.Location())) }

// NextMidnight returns the first local midnight strictly after t.
func (z Zone) NextMidnight(t time.Time) time.Time {
	return z.StartOf(z.DayOf(t).AddDays(1))
}

// Window returns the half-open instant window [start, end) covered by r.
func (z Zone) Window(r DateRange) (time.Time, time.Time) {
	return z.StartOf(r.Start), z.StartOf(r.End.AddDays(1))
}

// PartitionDates lists the UTC dates whose partitions overlap the local window of r.
func (z Zone) PartitionDates(r DateRange) []Date {
	start, end := z.Window(r)
	first := DateOf(start.UTC())
	last := DateOf(end.Add(-time.Nanosecond).UTC())
	return DateRange{Start: first, End: last}.Dates()
}

// Today returns the local date of now.
func (z Zone) Today(now time.Time) Date { return z.DayOf(now) }

// Yesterday returns the local date before now's local date.
func (z Zone) Yesterday(now time.Time) Date { return z.DayOf(now).AddDays(-1) }

func formatOffset(offset time.Duration) string {
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	hours := int(offset / time.Hour)
	minutes := int((offset % time.Hour) / time.Minute)
	return fmt.Sprintf("%s%02d:%02d", sign, hours, minutes)
}
