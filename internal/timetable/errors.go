package timetable

import "errors"

// Sentinel errors for the timetable package.
var (
	// ErrInvalidWeeks is returned when a term has no weeks or more than MaxWeeks.
	ErrInvalidWeeks = errors.New("timetable: term weeks out of range")

	// ErrNoEntries is returned when there is nothing to expand or export.
	ErrNoEntries = errors.New("timetable: no entries")
)
