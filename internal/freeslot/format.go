package freeslot

import (
	"strconv"
	"strings"
	"time"

	"freeslotd/internal/model"
)

// Format renders the common free-slot map as the user-facing text block:
// the header line followed by one line per date, earliest first.
//
//	I'm free at the following times...
//	Mon 1st Sep: 9am, 10am, 2pm
func Format(m model.CommonFreeSlotMap, headerText string) string {
	var b strings.Builder
	b.WriteString(headerText)

	for _, d := range m.Dates() {
		b.WriteString("\n")
		b.WriteString(formatDateLine(d, m[d]))
	}
	return b.String()
}

func formatDateLine(d model.Date, slots []time.Time) string {
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)

	parts := make([]string, 0, len(slots))
	for _, s := range slots {
		parts = append(parts, formatSlot(s))
	}

	return t.Format("Mon") + " " + ordinal(d.Day) + t.Format(" Jan") + ": " + strings.Join(parts, ", ")
}

// formatSlot renders a slot start in 12-hour lowercase form without a
// leading zero or minutes: 9am, 12pm, 3pm.
func formatSlot(t time.Time) string {
	return strings.ToLower(t.Format("3PM"))
}

// ordinal renders 1 -> "1st", 2 -> "2nd", 11 -> "11th".
func ordinal(n int) string {
	suffix := "th"
	if n%100 < 11 || n%100 > 13 {
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return strconv.Itoa(n) + suffix
}
