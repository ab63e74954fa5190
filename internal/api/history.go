package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/screentime-core/internal/override"
)

// validHistoryEvents are the accepted ?event= filters.
var validHistoryEvents = map[string]bool{
	"applied":   true,
	"reverted":  true,
	"cancelled": true,
}

// handleListHistory returns a page of override history, newest first.
//
// Query parameters: limit (default 50, max 200), offset, event.
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "history is not available")
		return
	}

	q := r.URL.Query()
	var f override.HistoryFilter
	var ok bool
	if f.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if f.Offset, ok = intParam(w, q.Get("offset"), "offset"); !ok {
		return
	}
	if ev := q.Get("event"); ev != "" {
		if !validHistoryEvents[ev] {
			writeBadRequest(w, "event must be applied, reverted or cancelled")
			return
		}
		f.Event = ev
	}

	page, err := s.history.List(r.Context(), f)
	if err != nil {
		s.logger.Error("listing override history", "error", err)
		writeInternalError(w, "failed to list history")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// intParam parses an optional non-negative integer query parameter.
func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeBadRequest(w, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
