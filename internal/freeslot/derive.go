package freeslot

import (
	"time"

	"freeslotd/internal/model"
)

// slotSize is the fixed free-slot granularity.
const slotSize = time.Hour

// DeriveFree scans each date of the lookahead window in one-hour steps
// over [startOfDay, endOfDay) and collects the steps no busy interval
// overlaps.
//
// Every scanned date gets an entry, including days with no free time at
// all: the intersection step needs to tell "feed reported a fully busy
// day" apart from "feed did not report the day". Weekend dates are
// skipped outright when excludeWeekends is set.
func DeriveFree(busy model.BusyMap, loc *time.Location, now time.Time, startOfDay, endOfDay, lookaheadDays int, excludeWeekends bool) model.FreeSlotMap {
	out := make(model.FreeSlotMap)
	today := model.DateOf(now.In(loc))

	for i := 0; i < lookaheadDays; i++ {
		d := today.AddDays(i)
		if excludeWeekends && d.IsWeekend() {
			continue
		}

		dayEnd := d.At(endOfDay, loc)
		slots := make(model.SlotSet)
		for t := d.At(startOfDay, loc); !t.Add(slotSize).After(dayEnd); t = t.Add(slotSize) {
			if !overlapsAny(busy[d], t, t.Add(slotSize)) {
				slots.Add(t)
			}
		}
		out[d] = slots
	}
	return out
}

// overlapsAny applies the open-interval overlap test: a busy block
// excludes a slot iff it starts before the slot ends and ends after the
// slot starts. Blocks merely touching a slot boundary do not count, and
// zero- or negative-length blocks can never match.
func overlapsAny(blocks []model.Interval, slotStart, slotEnd time.Time) bool {
	for _, b := range blocks {
		if !b.End.After(b.Start) {
			continue
		}
		if b.Start.Before(slotEnd) && b.End.After(slotStart) {
			return true
		}
	}
	return false
}
