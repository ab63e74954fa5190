// Package api provides the HTTP API and WebSocket stream for the screen
// time agent.
//
// Companion apps use it to read and change the override state, manage
// the restriction set, browse override history and import timetables.
// Every override event is relayed to WebSocket clients as it happens.
//
// The server follows the same lifecycle pattern as the other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Protected routes require a Bearer token from POST /api/v1/auth/pair
// when security.require_token is set.
package api
