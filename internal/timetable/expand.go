package timetable

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
)

// uidNamespace scopes event UIDs so re-importing a timetable yields the
// same UIDs and calendar apps update events instead of duplicating them.
var uidNamespace = uuid.MustParse("6f1d3a2c-5b7e-4c1a-9d8f-2e4b6a8c0d13")

// MaxWeeks is the longest term Expand accepts.
const MaxWeeks = 104

// ExpandOptions controls weekly expansion.
type ExpandOptions struct {
	// From selects the term's first week (the Monday on or before it).
	From time.Time
	// Weeks is the number of weekly occurrences per entry.
	Weeks int
	// Location is the timezone the times are in. Nil means time.Local.
	Location *time.Location
}

// Event is an entry placed on the calendar with its weekly recurrence.
type Event struct {
	UID         string      `json:"uid"`
	Title       string      `json:"title"`
	Location    string      `json:"location,omitempty"`
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
	RRule       string      `json:"rrule"`
	Occurrences []time.Time `json:"occurrences"`
}

// Expand places each entry in the first week of the term and repeats it
// weekly. Entries without a weekday fall on From's weekday.
//
// Parameters:
//   - entries: Parsed timetable entries
//   - opts: Term start, length and timezone
//
// Returns:
//   - []Event: One event per entry, in input order
//   - error: ErrInvalidWeeks (outside 1..MaxWeeks), ErrNoEntries, or an rrule failure
func Expand(entries []Entry, opts ExpandOptions) ([]Event, error) {
	if opts.Weeks <= 0 || opts.Weeks > MaxWeeks {
		return nil, ErrInvalidWeeks
	}
	if len(entries) == 0 {
		return nil, ErrNoEntries
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	from := opts.From.In(loc)
	monday := startOfWeek(from)

	events := make([]Event, 0, len(entries))
	for _, e := range entries {
		day := from
		if e.HasWeekday {
			day = monday.AddDate(0, 0, (int(e.Weekday)+6)%7)
		}
		start := time.Date(day.Year(), day.Month(), day.Day(), int(e.Start)/60, int(e.Start)%60, 0, 0, loc)
		end := time.Date(day.Year(), day.Month(), day.Day(), int(e.End)/60, int(e.End)%60, 0, 0, loc)

		r, err := rrule.NewRRule(rrule.ROption{Freq: rrule.WEEKLY, Count: opts.Weeks, Dtstart: start})
		if err != nil {
			return nil, fmt.Errorf("building recurrence for line %d: %w", e.Line, err)
		}
		rule := rrule.ROption{Freq: rrule.WEEKLY, Count: opts.Weeks}

		events = append(events, Event{
			UID:         eventUID(e, start),
			Title:       e.Title,
			Location:    e.Location,
			Start:       start,
			End:         end,
			RRule:       rule.RRuleString(),
			Occurrences: r.All(),
		})
	}
	return events, nil
}

func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	d := t.AddDate(0, 0, -offset)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, t.Location())
}

func eventUID(e Entry, start time.Time) string {
	key := fmt.Sprintf("%s|%s|%s|%s", start.Format("2006-01-02T15:04"), e.End, e.Title, e.Location)
	return uuid.NewSHA1(uidNamespace, []byte(key)).String() + "@screentime"
}
