package freeslot

import (
	"sort"
	"time"

	"freeslotd/internal/ics"
	appLog "freeslotd/internal/log"
	"freeslotd/internal/model"
)

// recurrenceIDTolerance bounds how far an override's RECURRENCE-ID may
// drift from the occurrence start it targets. Feeds that round-trip
// through other calendar software can lose sub-second precision.
const recurrenceIDTolerance = time.Second

// busyInterval carries the owning UID alongside the interval while the
// map is under construction, so overrides can find their series.
type busyInterval struct {
	model.Interval
	uid string
}

// BuildBusyMap folds one feed's decoded events into per-day busy blocks
// for the lookahead window starting at now's local date.
//
// Rules, in order:
//   - events carrying a RECURRENCE-ID are set aside as overrides
//   - cancelled base events are dropped
//   - all-day and multi-day events are dropped entirely when
//     ignoreAllDay is set
//   - recurring events contribute one block per occurrence, each with
//     the anchor event's duration
//   - non-recurring multi-day events are split into one block per
//     covered date (true start to midnight, full middle days, midnight
//     to true end)
//   - everything else contributes its single block
//
// Overrides are applied after every base event has been expanded, so the
// result does not depend on the order feeds emit master and override
// components. A non-cancelling override contributes its own interval.
func BuildBusyMap(events []ics.Event, loc *time.Location, now time.Time, lookaheadDays int, ignoreAllDay bool) model.BusyMap {
	windowStart := model.DateOf(now.In(loc)).Midnight(loc)
	windowEnd := windowStart.AddDate(0, 0, lookaheadDays)

	var blocks []busyInterval
	var overrides []ics.Event

	for _, ev := range events {
		if ev.RecurrenceID != nil {
			overrides = append(overrides, ev)
			continue
		}
		if ev.Cancelled {
			continue
		}
		blocks = append(blocks, expandToBlocks(ev, loc, windowStart, windowEnd, ignoreAllDay)...)
	}

	for _, ov := range overrides {
		blocks = applyOverride(blocks, ov, loc, windowStart, windowEnd, ignoreAllDay)
	}

	m := make(model.BusyMap)
	for _, b := range blocks {
		d := model.DateOf(b.Start.In(loc))
		m[d] = append(m[d], b.Interval)
	}
	for d := range m {
		ivs := m[d]
		sort.Slice(ivs, func(i, j int) bool { return ivs[i].Start.Before(ivs[j].Start) })
	}
	return m
}

func expandToBlocks(ev ics.Event, loc *time.Location, windowStart, windowEnd time.Time, ignoreAllDay bool) []busyInterval {
	multiDay := model.DateOf(ev.End.In(loc)) != model.DateOf(ev.Start.In(loc))
	if ignoreAllDay && (ev.AllDay || multiDay) {
		return nil
	}

	if ev.RawRRule != "" {
		starts, err := ics.Expand(ev, loc, windowStart, windowEnd)
		if err != nil {
			// One bad rule must not take the feed down.
			appLog.Warn("recurring event skipped", "uid", ev.UID, "err", err)
			return nil
		}
		dur := ev.End.Sub(ev.Start)
		if dur < 0 {
			dur = 0
		}
		out := make([]busyInterval, 0, len(starts))
		for _, s := range starts {
			out = append(out, busyInterval{
				Interval: model.Interval{Start: s, End: s.Add(dur), Summary: ev.Summary},
				uid:      ev.UID,
			})
		}
		return out
	}

	if multiDay {
		return splitMultiDay(ev, loc)
	}

	return []busyInterval{{
		Interval: model.Interval{Start: ev.Start, End: ev.End, Summary: ev.Summary},
		uid:      ev.UID,
	}}
}

// splitMultiDay turns a span crossing midnight into per-date blocks. The
// last date's block runs midnight to the true end, which for the common
// exclusive-DTEND all-day shape is zero-width and blocks nothing.
func splitMultiDay(ev ics.Event, loc *time.Location) []busyInterval {
	startDate := model.DateOf(ev.Start.In(loc))
	endDate := model.DateOf(ev.End.In(loc))

	var out []busyInterval
	for d := startDate; !endDate.Before(d); d = d.AddDays(1) {
		bs := d.Midnight(loc)
		be := d.AddDays(1).Midnight(loc)
		if d == startDate {
			bs = ev.Start
		}
		if d == endDate {
			be = ev.End
		}
		out = append(out, busyInterval{
			Interval: model.Interval{Start: bs, End: be, Summary: ev.Summary},
			uid:      ev.UID,
		})
	}
	return out
}

// applyOverride removes the series occurrence the override's
// RECURRENCE-ID points at, then inserts the override's own interval
// unless the override is a cancellation.
func applyOverride(blocks []busyInterval, ov ics.Event, loc *time.Location, windowStart, windowEnd time.Time, ignoreAllDay bool) []busyInterval {
	rid := *ov.RecurrenceID

	kept := blocks[:0]
	for _, b := range blocks {
		if b.uid == ov.UID && withinTolerance(b.Start, rid) {
			continue
		}
		kept = append(kept, b)
	}

	if ov.Cancelled {
		return kept
	}
	return append(kept, expandToBlocks(ov, loc, windowStart, windowEnd, ignoreAllDay)...)
}

func withinTolerance(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= recurrenceIDTolerance
}
