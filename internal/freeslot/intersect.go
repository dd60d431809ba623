package freeslot

import (
	"time"

	"freeslotd/internal/model"
)

// Intersect combines per-feed free-slot maps into the slots free in
// every feed.
//
// A date enters the result only when every feed's map carries the date
// key: a feed that failed to report a day (failed fetch, out of its
// window) must not default to "free", so its absence drops the date for
// everyone. A feed that reported a fully busy day carries the key with
// an empty set and intersects the date down to nothing.
//
// On the current date, slots at or before the current hour are trimmed;
// the comparison uses a wall-clock hour-truncated now. Only dates with a
// non-empty surviving set are recorded, sorted ascending.
func Intersect(perFeed []model.FreeSlotMap, loc *time.Location, now time.Time, includeCurrentDay bool) model.CommonFreeSlotMap {
	common := make(model.CommonFreeSlotMap)
	if len(perFeed) == 0 {
		return common
	}

	nowLocal := now.In(loc)
	today := model.DateOf(nowLocal)

	dates := make(map[model.Date]struct{})
	for _, m := range perFeed {
		for d := range m {
			dates[d] = struct{}{}
		}
	}

	for d := range dates {
		if !includeCurrentDay && d == today {
			continue
		}

		shared, ok := sharedSlots(perFeed, d)
		if !ok {
			continue
		}

		if d == today {
			cutoff := hourFloor(nowLocal)
			for k, t := range shared {
				if !t.After(cutoff) {
					delete(shared, k)
				}
			}
		}

		if len(shared) > 0 {
			common[d] = shared.Sorted()
		}
	}
	return common
}

// sharedSlots intersects all feeds' slot sets for one date. ok is false
// when any feed lacks the date key.
func sharedSlots(perFeed []model.FreeSlotMap, d model.Date) (model.SlotSet, bool) {
	first, ok := perFeed[0][d]
	if !ok {
		return nil, false
	}

	shared := make(model.SlotSet, len(first))
	for k, t := range first {
		shared[k] = t
	}

	for _, m := range perFeed[1:] {
		s, ok := m[d]
		if !ok {
			return nil, false
		}
		for k := range shared {
			if _, ok := s[k]; !ok {
				delete(shared, k)
			}
		}
	}
	return shared, true
}

// hourFloor truncates to the start of t's wall-clock hour. time.Truncate
// would round against UTC and misbehave in zones with non-whole-hour
// offsets.
func hourFloor(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}
