package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/screentime-core/internal/auth"
)

// pairRequest is the body of POST /auth/pair.
type pairRequest struct {
	Passphrase string `json:"passphrase"`
	DeviceName string `json:"device_name"`
}

// pairResponse carries the issued companion token.
type pairResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handlePair exchanges the household passphrase for a companion token.
func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	req.DeviceName = strings.TrimSpace(req.DeviceName)
	if req.Passphrase == "" || req.DeviceName == "" {
		writeBadRequest(w, "passphrase and device_name are required")
		return
	}

	p := auth.Pairing{
		Hash:   s.secCfg.PairingHash,
		Secret: s.secCfg.JWT.Secret,
		TTL:    time.Duration(s.secCfg.JWT.TokenTTL) * time.Hour,
		Now:    s.now,
	}
	token, expires, err := p.Pair(req.Passphrase, req.DeviceName)
	switch {
	case errors.Is(err, auth.ErrPairingDisabled):
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "pairing is disabled")
		return
	case errors.Is(err, auth.ErrInvalidPassphrase):
		s.logger.Warn("pairing rejected", "device", req.DeviceName, "remote", r.RemoteAddr)
		writeUnauthorized(w, "invalid passphrase")
		return
	case err != nil:
		s.logger.Error("pairing failed", "device", req.DeviceName, "error", err)
		writeInternalError(w, "pairing failed")
		return
	}

	s.logger.Info("companion paired", "device", req.DeviceName, "expires_at", expires)
	writeJSON(w, http.StatusOK, pairResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expires,
	})
}

// claimsFromContext returns the verified token claims, or nil when the
// request was not authenticated.
func claimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(ctxKeyClaims).(*auth.Claims) //nolint:errcheck // nil when absent
	return claims
}
