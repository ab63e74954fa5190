package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/screentime-core/internal/timetable"
)

// timetableRequest is the body of the timetable endpoints.
type timetableRequest struct {
	Text string `json:"text"`
	// From is the term start date (YYYY-MM-DD). Empty means today.
	From string `json:"from,omitempty"`
	// Weeks overrides timetable.term_weeks.
	Weeks int `json:"weeks,omitempty"`
}

// timetableResponse is the body of POST /timetable/parse.
type timetableResponse struct {
	Entries      []timetable.Entry    `json:"entries"`
	Skipped      int                  `json:"skipped"`
	SkippedLines []int                `json:"skipped_lines,omitempty"`
	Conflicts    []timetable.Conflict `json:"conflicts"`
	Events       []timetable.Event    `json:"events"`
}

// handleParseTimetable parses pasted timetable text and previews the
// calendar events it would produce.
func (s *Server) handleParseTimetable(w http.ResponseWriter, r *http.Request) {
	parsed, events, ok := s.expandTimetable(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, timetableResponse{
		Entries:      parsed.Entries,
		Skipped:      parsed.Skipped,
		SkippedLines: parsed.SkippedLines,
		Conflicts:    timetable.Conflicts(parsed.Entries),
		Events:       events,
	})
}

// handleExportTimetable returns the timetable as an iCalendar file.
func (s *Server) handleExportTimetable(w http.ResponseWriter, r *http.Request) {
	_, events, ok := s.expandTimetable(w, r)
	if !ok {
		return
	}

	ics, err := timetable.ExportICS(events, s.now())
	if err != nil {
		s.logger.Error("exporting timetable", "error", err)
		writeInternalError(w, "failed to export calendar")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="timetable.ics"`)
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write([]byte(ics))
}

// expandTimetable decodes the request, parses the text and expands it
// into weekly events. It writes the error response itself.
func (s *Server) expandTimetable(w http.ResponseWriter, r *http.Request) (timetable.ParseResult, []timetable.Event, bool) {
	var req timetableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return timetable.ParseResult{}, nil, false
	}

	loc, err := s.ttCfg.Location()
	if err != nil {
		s.logger.Error("loading timetable timezone", "timezone", s.ttCfg.Timezone, "error", err)
		writeInternalError(w, "invalid timetable timezone")
		return timetable.ParseResult{}, nil, false
	}

	from := s.now().In(loc)
	if req.From != "" {
		from, err = time.ParseInLocation("2006-01-02", req.From, loc)
		if err != nil {
			writeBadRequest(w, "from must be a date in YYYY-MM-DD form")
			return timetable.ParseResult{}, nil, false
		}
	}
	weeks := req.Weeks
	if weeks == 0 {
		weeks = s.ttCfg.TermWeeks
	}

	parsed := timetable.Parse(req.Text)
	events, err := timetable.Expand(parsed.Entries, timetable.ExpandOptions{
		From:     from,
		Weeks:    weeks,
		Location: loc,
	})
	switch {
	case errors.Is(err, timetable.ErrNoEntries):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, "no timetable entries recognised")
		return parsed, nil, false
	case errors.Is(err, timetable.ErrInvalidWeeks):
		writeBadRequest(w, fmt.Sprintf("weeks must be between 1 and %d", timetable.MaxWeeks))
		return parsed, nil, false
	case err != nil:
		s.logger.Error("expanding timetable", "error", err)
		writeInternalError(w, "failed to expand timetable")
		return parsed, nil, false
	}
	return parsed, events, true
}
