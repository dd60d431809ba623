package ics

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "freeslotd/internal/log"
)

// expandOccurrenceCap is a safety cap against runaway rules (e.g. a
// FREQ=MINUTELY rule with no bound inside a wide window).
const expandOccurrenceCap = 5000

// RecurrenceError indicates a recurrence rule or bound that could not be
// expanded. The owning event is skipped; the rest of the feed survives.
type RecurrenceError struct {
	UID  string
	Rule string
	Err  error
}

func (e *RecurrenceError) Error() string {
	return fmt.Sprintf("ics: recurrence %q (uid %s): %v", e.Rule, e.UID, e.Err)
}

func (e *RecurrenceError) Unwrap() error { return e.Err }

// Expand produces the concrete occurrence starts of a recurring event
// within [windowStart, windowEnd], both inclusive.
//
// All recurrence arithmetic runs on naive wall-clock values: the anchor
// start is stripped of its zone into a synthetic UTC, stepped there, and
// each result is relocalized into loc with time.Date, which resolves DST
// gap and overlap times deterministically instead of failing. A weekly
// 10:00 event therefore stays at 10:00 local on both sides of a DST
// transition.
//
// The UNTIL bound gets the same treatment. A floating UNTIL (no Z
// marker) is wall-clock by definition and is used as written; a Z-marked
// UNTIL is first converted to loc wall-clock, so the bound keeps meaning
// the authored local time even when the UTC offset changes between the
// anchor and the bound.
//
// EXDATE values are matched by wall-clock equality, since exceptions are
// authored in local time. RDATE values are extra occurrences on top of
// whatever the rule generates; a COUNT bound applies to rule-generated
// occurrences only.
//
// The lower window bound is stretched back by the anchor duration so an
// occurrence starting before the window but still running into it is not
// missed. Zero occurrences is a valid result, not an error.
func Expand(ev Event, loc *time.Location, windowStart, windowEnd time.Time) ([]time.Time, error) {
	opt, err := rrule.StrToROption(ev.RawRRule)
	if err != nil {
		return nil, &RecurrenceError{UID: ev.UID, Rule: ev.RawRRule, Err: err}
	}

	anchor := ev.Start.In(loc)
	opt.Dtstart = stripZone(anchor)

	if until, ok, err := untilBound(ev.RawRRule, loc); err != nil {
		return nil, &RecurrenceError{UID: ev.UID, Rule: ev.RawRRule, Err: err}
	} else if ok {
		opt.Until = until
	}

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, &RecurrenceError{UID: ev.UID, Rule: ev.RawRRule, Err: err}
	}

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(stripZone(ex.In(loc)))
	}
	for _, rd := range ev.RDates {
		set.RDate(stripZone(rd.In(loc)))
	}

	dur := ev.End.Sub(ev.Start)
	if dur < 0 {
		dur = 0
	}
	lo := stripZone(windowStart.Add(-dur).In(loc))
	hi := stripZone(windowEnd.In(loc))

	naive := set.Between(lo, hi, true)
	if len(naive) > expandOccurrenceCap {
		appLog.Warn("recurrence expansion truncated", "uid", ev.UID, "cap", expandOccurrenceCap)
		naive = naive[:expandOccurrenceCap]
	}

	out := make([]time.Time, 0, len(naive))
	for _, n := range naive {
		out = append(out, localize(n, loc))
	}
	return out, nil
}

// untilBound extracts and reinterprets the rule's UNTIL value into the
// naive wall-clock space the expansion runs in. Returns ok=false when the
// rule has no UNTIL part.
func untilBound(rawRule string, loc *time.Location) (time.Time, bool, error) {
	val := ""
	for _, part := range strings.Split(rawRule, ";") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(part), "UNTIL="); ok {
			val = v
			break
		}
	}
	if val == "" {
		return time.Time{}, false, nil
	}

	switch {
	case strings.HasSuffix(val, "Z"):
		t, err := time.Parse("20060102T150405Z", val)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("bad UNTIL value %q: %w", val, err)
		}
		return stripZone(t.In(loc)), true, nil
	case strings.Contains(val, "T"):
		// Floating: already wall-clock.
		t, err := time.Parse("20060102T150405", val)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("bad UNTIL value %q: %w", val, err)
		}
		return t.UTC(), true, nil
	default:
		t, err := time.Parse("20060102", val)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("bad UNTIL value %q: %w", val, err)
		}
		return t.UTC(), true, nil
	}
}

// stripZone rebuilds t's wall-clock reading in UTC, discarding its zone.
func stripZone(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// localize rebuilds a naive wall-clock value in loc. For instants falling
// into a DST gap or overlap, time.Date picks one offset deterministically.
func localize(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}
