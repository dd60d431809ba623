package freeslot

import (
	"testing"
	"time"

	"freeslotd/internal/ics"
	"freeslotd/internal/model"
)

func utcDay(y int, m time.Month, d int) model.Date {
	return model.Date{Year: y, Month: m, Day: d}
}

// June 2025: the 1st is a Sunday, the 4th a Wednesday.
var busyNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func TestBuildBusyMapSingleEvent(t *testing.T) {
	events := []ics.Event{{
		UID:     "e1",
		Summary: "Dentist",
		Start:   time.Date(2025, 6, 4, 10, 0, 0, 0, time.UTC),
		End:     time.Date(2025, 6, 4, 11, 0, 0, 0, time.UTC),
	}}

	m := BuildBusyMap(events, time.UTC, busyNow, 7, true)
	ivs := m[utcDay(2025, time.June, 4)]
	if len(ivs) != 1 {
		t.Fatalf("expected 1 interval, got %d", len(ivs))
	}
	if got, want := ivs[0].Summary, "Dentist"; got != want {
		t.Fatalf("summary mismatch: got %q want %q", got, want)
	}
}

func TestBuildBusyMapDropsCancelledBase(t *testing.T) {
	events := []ics.Event{{
		UID:       "e1",
		Cancelled: true,
		Start:     time.Date(2025, 6, 4, 10, 0, 0, 0, time.UTC),
		End:       time.Date(2025, 6, 4, 11, 0, 0, 0, time.UTC),
	}}

	m := BuildBusyMap(events, time.UTC, busyNow, 7, true)
	if len(m) != 0 {
		t.Fatalf("cancelled event produced busy blocks: %v", m)
	}
}

func TestBuildBusyMapIgnoreAllDay(t *testing.T) {
	events := []ics.Event{
		{
			UID:    "allday",
			AllDay: true,
			Start:  time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC),
			End:    time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			UID:   "span",
			Start: time.Date(2025, 6, 4, 14, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 6, 6, 10, 0, 0, 0, time.UTC),
		},
	}

	m := BuildBusyMap(events, time.UTC, busyNow, 7, true)
	if len(m) != 0 {
		t.Fatalf("all-day and multi-day events should be ignored, got %v", m)
	}
}

func TestBuildBusyMapSplitsMultiDay(t *testing.T) {
	events := []ics.Event{{
		UID:     "span",
		Summary: "Conference",
		Start:   time.Date(2025, 6, 4, 14, 0, 0, 0, time.UTC),
		End:     time.Date(2025, 6, 6, 10, 0, 0, 0, time.UTC),
	}}

	m := BuildBusyMap(events, time.UTC, busyNow, 7, false)

	first := m[utcDay(2025, time.June, 4)]
	if len(first) != 1 || !first[0].Start.Equal(time.Date(2025, 6, 4, 14, 0, 0, 0, time.UTC)) ||
		!first[0].End.Equal(time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("first-day block mismatch: %v", first)
	}

	middle := m[utcDay(2025, time.June, 5)]
	if len(middle) != 1 || !middle[0].Start.Equal(time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC)) ||
		!middle[0].End.Equal(time.Date(2025, 6, 6, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("middle-day block should cover the full day: %v", middle)
	}

	last := m[utcDay(2025, time.June, 6)]
	if len(last) != 1 || !last[0].Start.Equal(time.Date(2025, 6, 6, 0, 0, 0, 0, time.UTC)) ||
		!last[0].End.Equal(time.Date(2025, 6, 6, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("last-day block mismatch: %v", last)
	}
}

func TestBuildBusyMapRecurringEvent(t *testing.T) {
	events := []ics.Event{{
		UID:      "weekly",
		Summary:  "Standup",
		Start:    time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 6, 3, 9, 30, 0, 0, time.UTC),
		RawRRule: "FREQ=WEEKLY;COUNT=4",
	}}

	m := BuildBusyMap(events, time.UTC, busyNow, 14, true)

	for _, day := range []int{3, 10} {
		ivs := m[utcDay(2025, time.June, day)]
		if len(ivs) != 1 {
			t.Fatalf("expected 1 block on June %d, got %d", day, len(ivs))
		}
		if got, want := ivs[0].End.Sub(ivs[0].Start), 30*time.Minute; got != want {
			t.Fatalf("occurrence duration mismatch on June %d: got %v", day, got)
		}
	}
	if _, ok := m[utcDay(2025, time.June, 17)]; ok {
		t.Fatal("occurrence outside the lookahead window should be absent")
	}
}

func TestBuildBusyMapBadRuleSkipsEventOnly(t *testing.T) {
	events := []ics.Event{
		{
			UID:      "broken",
			Start:    time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC),
			End:      time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC),
			RawRRule: "FREQ=NONSENSE",
		},
		{
			UID:   "fine",
			Start: time.Date(2025, 6, 4, 10, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 6, 4, 11, 0, 0, 0, time.UTC),
		},
	}

	m := BuildBusyMap(events, time.UTC, busyNow, 7, true)
	if len(m) != 1 {
		t.Fatalf("expected only the healthy event's date, got %v", m)
	}
	if _, ok := m[utcDay(2025, time.June, 4)]; !ok {
		t.Fatal("healthy event lost alongside the broken one")
	}
}

func overrideFixture() ([]ics.Event, ics.Event) {
	base := []ics.Event{{
		UID:      "series",
		Summary:  "Sync",
		Start:    time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC),
		RawRRule: "FREQ=WEEKLY;COUNT=2",
	}}
	rid := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	override := ics.Event{
		UID:          "series",
		Summary:      "Sync (moved)",
		Start:        time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC),
		End:          time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC),
		RecurrenceID: &rid,
	}
	return base, override
}

func TestBuildBusyMapOverrideReplacesOccurrence(t *testing.T) {
	base, override := overrideFixture()

	m := BuildBusyMap(append(base, override), time.UTC, busyNow, 14, true)

	ivs := m[utcDay(2025, time.June, 10)]
	if len(ivs) != 1 {
		t.Fatalf("expected exactly 1 block on the overridden date, got %d: %v", len(ivs), ivs)
	}
	if !ivs[0].Start.Equal(time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC)) {
		t.Fatalf("override interval missing, got %v", ivs[0])
	}
	if len(m[utcDay(2025, time.June, 3)]) != 1 {
		t.Fatal("untouched occurrence lost")
	}
}

func TestBuildBusyMapOverrideOrderIndependent(t *testing.T) {
	base, override := overrideFixture()

	overrideFirst := BuildBusyMap([]ics.Event{override, base[0]}, time.UTC, busyNow, 14, true)
	baseFirst := BuildBusyMap([]ics.Event{base[0], override}, time.UTC, busyNow, 14, true)

	if len(overrideFirst) != len(baseFirst) {
		t.Fatalf("maps differ by date count: %d vs %d", len(overrideFirst), len(baseFirst))
	}
	for d, want := range baseFirst {
		got := overrideFirst[d]
		if len(got) != len(want) {
			t.Fatalf("date %v differs: %v vs %v", d, got, want)
		}
		for i := range want {
			if !got[i].Start.Equal(want[i].Start) || !got[i].End.Equal(want[i].End) {
				t.Fatalf("date %v interval %d differs: %v vs %v", d, i, got[i], want[i])
			}
		}
	}
}

func TestBuildBusyMapCancellingOverrideRemovesOccurrence(t *testing.T) {
	base, override := overrideFixture()
	override.Cancelled = true

	m := BuildBusyMap(append(base, override), time.UTC, busyNow, 14, true)

	if ivs := m[utcDay(2025, time.June, 10)]; len(ivs) != 0 {
		t.Fatalf("cancelled occurrence still busy: %v", ivs)
	}
	if len(m[utcDay(2025, time.June, 3)]) != 1 {
		t.Fatal("cancellation bled into another occurrence")
	}
}

func TestBuildBusyMapOverrideToleratesSubSecondDrift(t *testing.T) {
	base, override := overrideFixture()
	drifted := override.RecurrenceID.Add(500 * time.Millisecond)
	override.RecurrenceID = &drifted

	m := BuildBusyMap(append(base, override), time.UTC, busyNow, 14, true)

	ivs := m[utcDay(2025, time.June, 10)]
	if len(ivs) != 1 || !ivs[0].Start.Equal(time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC)) {
		t.Fatalf("drifted RECURRENCE-ID failed to match its occurrence: %v", ivs)
	}
}
