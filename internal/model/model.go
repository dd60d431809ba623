package model

import (
	"fmt"
	"sort"
	"time"
)

// Date is a calendar date with no time-of-day or zone attached. It is a
// comparable value type so it can key the per-day maps below.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses an ISO-8601 date string (2006-01-02).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("model: parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Midnight returns the start of the date in the given location.
func (d Date) Midnight(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// At returns the instant at the given whole hour of the date in loc.
func (d Date) At(hour int, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, hour, 0, 0, 0, loc)
}

// AddDays returns the date n calendar days later (n may be negative).
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC))
}

func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

func (d Date) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Interval is one busy block reported by a feed: a half-open [Start, End)
// span during which the feed considers the time occupied. Degenerate zero-
// or negative-length intervals are allowed and simply never block anything.
type Interval struct {
	Start   time.Time
	End     time.Time
	Summary string
}

// BusyMap holds one feed's busy blocks keyed by local calendar date.
// It is rebuilt from scratch on every pass and never mutated after the
// per-date interval slices have been sorted.
type BusyMap map[Date][]Interval

// SlotSet is a set of free one-hour slot start instants, keyed by Unix
// seconds so equal instants collapse regardless of wall-clock
// representation.
type SlotSet map[int64]time.Time

func (s SlotSet) Add(t time.Time) {
	s[t.Unix()] = t
}

func (s SlotSet) Has(t time.Time) bool {
	_, ok := s[t.Unix()]
	return ok
}

// Sorted returns the slots in ascending order.
func (s SlotSet) Sorted() []time.Time {
	out := make([]time.Time, 0, len(s))
	for _, t := range s {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// FreeSlotMap holds one feed's free slots per date. A date key with an
// empty set means the feed reported that day and found no free time; a
// missing key means the feed did not report the day at all. The
// intersection step depends on that distinction.
type FreeSlotMap map[Date]SlotSet

// CommonFreeSlotMap is the terminal artifact: per date, the ascending
// slot starts free across every configured feed. Only dates with at
// least one surviving slot appear.
type CommonFreeSlotMap map[Date][]time.Time

// Dates returns the map's keys in ascending order.
func (m CommonFreeSlotMap) Dates() []Date {
	out := make([]Date, 0, len(m))
	for d := range m {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
