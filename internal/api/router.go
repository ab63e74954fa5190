package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// No auth required
		r.Get("/health", s.handleHealth)
		r.Post("/auth/pair", s.handlePair)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/override", s.handleGetOverride)
			r.Post("/override", s.handlePostOverride)
			r.Delete("/override", s.handleCancelOverride)

			r.Get("/restrictions", s.handleGetRestrictions)
			r.Put("/restrictions", s.handlePutRestrictions)

			r.Get("/history", s.handleListHistory)

			r.Post("/timetable/parse", s.handleParseTimetable)
			r.Post("/timetable/ics", s.handleExportTimetable)

			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}
