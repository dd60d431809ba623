package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "freeslotd/internal/log"
)

// defaultSummary is the display text used when a VEVENT has no SUMMARY.
const defaultSummary = "No Title"

// Event is one VEVENT decoded from a feed, before recurrence expansion
// and busy-block normalization. All instants are already converted into
// the engine's configured zone; floating values were attached to it.
type Event struct {
	UID     string
	Summary string

	Start  time.Time
	End    time.Time
	AllDay bool

	// Cancelled is set for STATUS:CANCELLED components. A cancelled
	// base event is dropped; a cancelled override suppresses one
	// occurrence of its series.
	Cancelled bool

	RawRRule string
	ExDates  []time.Time
	RDates   []time.Time

	// RecurrenceID marks this event as an override (or cancellation) of
	// the one occurrence of its series starting at this instant.
	RecurrenceID *time.Time
}

// Parse decodes a raw ICS payload into Events, normalized into loc.
//
//   - Only VEVENT components are considered.
//   - All-day events are detected via VALUE=DATE or a bare YYYYMMDD value.
//   - TZID parameters are resolved with time.LoadLocation, falling back
//     to loc for zones the host database does not know.
//   - A component that cannot be decoded is logged and skipped; the rest
//     of the feed survives.
//
// A body that is not ICS at all yields a *FormatError.
func Parse(body []byte, loc *time.Location) ([]Event, error) {
	if len(body) == 0 {
		return nil, &FormatError{Reason: "empty calendar body"}
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, &FormatError{Reason: "unparseable calendar data", Err: err}
	}

	events := make([]Event, 0)

	for _, comp := range cal.Events() {
		ev, perr := decodeVEvent(comp, loc)
		if perr != nil {
			// Log and skip this event, but keep parsing others.
			appLog.Warn("ics vevent skipped", "err", perr)
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "event_count", len(events))
	return events, nil
}

func decodeVEvent(ve *ical.VEvent, loc *time.Location) (Event, error) {
	var out Event

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	out.Summary = defaultSummary
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil && p.Value != "" {
		out.Summary = p.Value
	}

	if p := ve.GetProperty("STATUS"); p != nil && strings.EqualFold(strings.TrimSpace(p.Value), "CANCELLED") {
		out.Cancelled = true
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil || dtStart.Value == "" {
		return out, errors.New("missing DTSTART")
	}
	start, allDay, err := decodeTimeProp(dtStart, loc)
	if err != nil {
		return out, err
	}
	out.Start = start.In(loc)
	out.AllDay = allDay

	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil && dtEnd.Value != "" {
		end, _, err := decodeTimeProp(dtEnd, loc)
		if err != nil {
			return out, err
		}
		out.End = end.In(loc)
	} else if allDay {
		// DATE events without DTEND occupy their single day.
		out.End = out.Start.AddDate(0, 0, 1)
	} else {
		// Zero-duration; tolerated downstream, never blocks a slot.
		out.End = out.Start
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	// EXDATE can appear multiple times and carry comma-separated lists.
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		out.ExDates = append(out.ExDates, decodeTimeList(p, loc)...)
	}

	// RDATE: explicit extra occurrences. PERIOD-form values are skipped.
	for _, p := range ve.GetProperties("RDATE") {
		out.RDates = append(out.RDates, decodeTimeList(p, loc)...)
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil && p.Value != "" {
		rid, _, err := decodeTimeProp(p, loc)
		if err != nil {
			return out, err
		}
		ridLocal := rid.In(loc)
		out.RecurrenceID = &ridLocal
	}

	return out, nil
}

// decodeTimeProp decodes a DATE or DATE-TIME property honoring its
// VALUE and TZID parameters. Reported alongside is whether the value was
// date-only.
func decodeTimeProp(p *ical.IANAProperty, loc *time.Location) (time.Time, bool, error) {
	tzid := ""
	forceDate := false
	if p.ICalParameters != nil {
		if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			forceDate = true
		}
		if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
			tzid = tzs[0]
		}
	}
	t, dateOnly, err := parseTimeValue(p.Value, tzid, loc)
	return t, dateOnly || forceDate, err
}

// decodeTimeList decodes a possibly comma-separated EXDATE/RDATE value.
// Unparseable entries are dropped; an exception date we cannot read must
// not take the whole event down.
func decodeTimeList(p *ical.IANAProperty, loc *time.Location) []time.Time {
	tzid := ""
	if p.ICalParameters != nil {
		if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
			tzid = tzs[0]
		}
	}

	var out []time.Time
	for _, part := range strings.Split(p.Value, ",") {
		part = strings.TrimSpace(part)
		if part == "" || strings.Contains(part, "/") {
			continue
		}
		if t, _, err := parseTimeValue(part, tzid, loc); err == nil {
			out = append(out, t.In(loc))
		}
	}
	return out
}

// parseTimeValue parses the three ICS time shapes:
//
//	20250101           date-only, midnight in loc
//	20250101T090000Z   absolute UTC instant
//	20250101T090000    wall time in the TZID zone, or floating in loc
func parseTimeValue(v, tzid string, loc *time.Location) (time.Time, bool, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false, errors.New("empty time value")
	}

	if !strings.Contains(v, "T") {
		t, err := time.ParseInLocation("20060102", v, loc)
		return t, true, err
	}

	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse("20060102T150405Z", v)
		return t, false, err
	}

	zone := loc
	if tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			zone = l
		} else {
			appLog.Warn("unknown TZID, using configured zone", "tzid", tzid)
		}
	}
	t, err := time.ParseInLocation("20060102T150405", v, zone)
	return t, false, err
}
