// Package timetable turns recognised timetable text into calendar events.
//
// The input is OCR output with one lesson per line, for example:
//
//	Monday
//	09:00 - 10:00 Maths Room 12
//	10.15 to 11.15 English @ Library
//	Tue 13:00–14:00 Science Lab Rm 4
//
// A line that holds only a weekday sets the day for the lines after it.
// Lines that do not match are skipped and counted.
//
// Parsed entries are expanded weekly over a term (Expand), checked for
// overlaps (Conflicts) and exported as iCalendar (ExportICS).
package timetable
