package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/nerrad567/screentime-core/internal/override"
	"github.com/nerrad567/screentime-core/internal/restriction"
)

// handleGetOverride returns the active override and restrictions in force.
func (s *Server) handleGetOverride(w http.ResponseWriter, r *http.Request) {
	st, err := s.controller.Status(r.Context())
	if err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handlePostOverride applies a command with the same JSON shape the TCP
// receiver accepts.
func (s *Server) handlePostOverride(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	cmd, err := override.Decode(body)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	res, err := s.controller.Dispatch(r.Context(), cmd, override.SourceAPI)
	if err != nil {
		s.logger.Warn("override command rejected", "action", cmd.Action, "error", err)
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleCancelOverride ends the active override early.
func (s *Server) handleCancelOverride(w http.ResponseWriter, r *http.Request) {
	res, err := s.controller.Dispatch(r.Context(), override.Command{Action: override.ActionCancelOverride}, override.SourceAPI)
	if err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleGetRestrictions returns only the restriction set.
func (s *Server) handleGetRestrictions(w http.ResponseWriter, r *http.Request) {
	st, err := s.controller.Status(r.Context())
	if err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st.Restrictions)
}

// handlePutRestrictions replaces the restriction set and returns the
// resulting status. During an override the new set applies when it ends.
func (s *Server) handlePutRestrictions(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	var state restriction.State
	if err := json.Unmarshal(body, &state); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.controller.SetRestrictions(r.Context(), state); err != nil {
		writeControllerError(w, err)
		return
	}

	st, err := s.controller.Status(r.Context())
	if err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// readBody reads the request body, answering 413 when it exceeds the
// size limit and 400 when it is empty.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "request body too large")
			return nil, false
		}
		writeBadRequest(w, "reading request body")
		return nil, false
	}
	if len(body) == 0 {
		writeBadRequest(w, "request body is required")
		return nil, false
	}
	return body, true
}

// writeControllerError maps controller errors to HTTP responses.
func writeControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, override.ErrNoActiveOverride):
		writeError(w, http.StatusConflict, ErrCodeConflict, "no active override")
	case errors.Is(err, override.ErrMalformedCommand),
		errors.Is(err, override.ErrMissingAction),
		errors.Is(err, override.ErrUnknownAction),
		errors.Is(err, override.ErrInvalidCustomAction):
		writeBadRequest(w, err.Error())
	case errors.Is(err, restriction.ErrInvalidGoal):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
	case errors.Is(err, override.ErrClosed), errors.Is(err, override.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "override controller unavailable")
	default:
		writeInternalError(w, "override operation failed")
	}
}
