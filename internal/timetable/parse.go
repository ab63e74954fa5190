package timetable

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const dayPattern = `mon(?:day)?|tue(?:s(?:day)?)?|wed(?:nesday)?|thu(?:r(?:s(?:day)?)?)?|fri(?:day)?|sat(?:urday)?|sun(?:day)?`

var (
	headerRe = regexp.MustCompile(`(?i)^\s*(` + dayPattern + `)\s*[:.]?\s*$`)

	lineRe = regexp.MustCompile(`(?i)^\s*(?:(` + dayPattern + `)\b[\s,:.]*)?` +
		`(\d{1,2})[:.](\d{2})\s*(?:-|–|—|to)\s*(\d{1,2})[:.](\d{2})` +
		`\s*[-:,]?\s*(.*?)\s*$`)

	locationRe = regexp.MustCompile(`(?i)^(.*?)\s*(?:@\s*|\b(room|rm)\b\.?\s*)(.+)$`)
)

// TimeOfDay is minutes since midnight.
type TimeOfDay int

// String formats t as HH:MM.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Entry is one recognised timetable line.
type Entry struct {
	// Weekday is only meaningful when HasWeekday is set.
	Weekday    time.Weekday `json:"weekday"`
	HasWeekday bool         `json:"has_weekday"`
	Start      TimeOfDay    `json:"start"`
	End        TimeOfDay    `json:"end"`
	Title      string       `json:"title"`
	Location   string       `json:"location,omitempty"`
	// Line is the 1-based source line number.
	Line int `json:"line"`
}

// Overlaps reports whether e and o share a weekday and their times intersect.
func (e Entry) Overlaps(o Entry) bool {
	if e.HasWeekday != o.HasWeekday || (e.HasWeekday && e.Weekday != o.Weekday) {
		return false
	}
	return e.Start < o.End && o.Start < e.End
}

// ParseResult holds the recognised entries and what was skipped.
type ParseResult struct {
	Entries []Entry `json:"entries"`
	// Skipped counts non-blank lines that matched nothing.
	Skipped      int   `json:"skipped"`
	SkippedLines []int `json:"skipped_lines,omitempty"`
}

// Parse extracts timetable entries from text, one per line.
func Parse(text string) ParseResult {
	res := ParseResult{Entries: []Entry{}}

	var (
		day    time.Weekday
		hasDay bool
	)
	// Lines of any length are accepted; the request body limit bounds them.
	for i, line := range strings.Split(text, "\n") {
		lineNo := i + 1
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if m := headerRe.FindStringSubmatch(line); m != nil {
			day, hasDay = weekday(m[1]), true
			continue
		}

		e, ok := parseLine(line)
		if !ok {
			res.Skipped++
			res.SkippedLines = append(res.SkippedLines, lineNo)
			continue
		}
		if !e.HasWeekday && hasDay {
			e.Weekday, e.HasWeekday = day, true
		}
		e.Line = lineNo
		res.Entries = append(res.Entries, e)
	}
	return res
}

func parseLine(line string) (Entry, bool) {
	m := lineRe.FindStringSubmatch(line)
	if m == nil {
		return Entry{}, false
	}

	start, ok1 := timeOfDay(m[2], m[3])
	end, ok2 := timeOfDay(m[4], m[5])
	if !ok1 || !ok2 || end <= start {
		return Entry{}, false
	}

	title, location := splitLocation(m[6])
	if title == "" {
		return Entry{}, false
	}

	e := Entry{Start: start, End: end, Title: title, Location: location}
	if m[1] != "" {
		e.Weekday, e.HasWeekday = weekday(m[1]), true
	}
	return e, true
}

// splitLocation separates "Maths Room 12" into "Maths" and "Room 12".
func splitLocation(rest string) (title, location string) {
	m := locationRe.FindStringSubmatch(rest)
	if m == nil {
		return strings.TrimSpace(rest), ""
	}
	title = strings.TrimSpace(m[1])
	location = strings.TrimSpace(m[3])
	if m[2] != "" {
		location = "Room " + location
	}
	if title == "" {
		return strings.TrimSpace(rest), ""
	}
	return title, location
}

func timeOfDay(h, m string) (TimeOfDay, bool) {
	hh, err := strconv.Atoi(h)
	if err != nil || hh > 23 {
		return 0, false
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm > 59 {
		return 0, false
	}
	return TimeOfDay(hh*60 + mm), true
}

func weekday(s string) time.Weekday {
	switch strings.ToLower(s)[:3] {
	case "mon":
		return time.Monday
	case "tue":
		return time.Tuesday
	case "wed":
		return time.Wednesday
	case "thu":
		return time.Thursday
	case "fri":
		return time.Friday
	case "sat":
		return time.Saturday
	default:
		return time.Sunday
	}
}
