package timetable

import (
	"time"

	ical "github.com/arran4/golang-ical"
)

const (
	productID = "-//screentime-core//timetable//EN"

	// floatingLayout is an iCalendar local time with no zone, so recurring
	// lessons keep their wall-clock time across DST changes.
	floatingLayout = "20060102T150405"
)

// ExportICS renders events as an iCalendar document with one recurring
// VEVENT per event.
func ExportICS(events []Event, stamp time.Time) (string, error) {
	if len(events) == 0 {
		return "", ErrNoEntries
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, e := range events {
		ev := cal.AddEvent(e.UID)
		ev.SetDtStampTime(stamp)
		ev.SetProperty(ical.ComponentPropertyDtStart, e.Start.Format(floatingLayout))
		ev.SetProperty(ical.ComponentPropertyDtEnd, e.End.Format(floatingLayout))
		ev.SetSummary(e.Title)
		if e.Location != "" {
			ev.SetLocation(e.Location)
		}
		ev.SetProperty(ical.ComponentPropertyRrule, e.RRule)
	}
	return cal.Serialize(), nil
}
