package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenIssuer = "screentimed"

	// ScopeCompanion is the only scope issued today.
	ScopeCompanion = "companion"

	defaultTokenTTL = 30 * 24 * time.Hour
)

// Claims are the JWT claims carried by a companion token.
type Claims struct {
	jwt.RegisteredClaims
	DeviceName string `json:"device_name"`
	Scope      string `json:"scope"`
}

// IssueToken signs a companion token for deviceName.
//
// Parameters:
//   - secret: HS256 signing key
//   - deviceName: Companion device label, carried in the token
//   - ttl: Lifetime; <= 0 selects 30 days
//   - now: Issue time
//
// Returns:
//   - string: Signed token
//   - time.Time: Expiry
//   - error: ErrMissingSecret or a signing failure
func IssueToken(secret, deviceName string, ttl time.Duration, now time.Time) (string, time.Time, error) {
	if secret == "" {
		return "", time.Time{}, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	expires := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   "companion-" + uuid.NewString()[:8],
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
		DeviceName: deviceName,
		Scope:      ScopeCompanion,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expires, nil
}

// ParseToken verifies a companion token's signature, expiry, issuer and
// scope, and returns its claims.
func ParseToken(tokenString, secret string) (*Claims, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Scope != ScopeCompanion {
		return nil, fmt.Errorf("%w: unexpected scope %q", ErrTokenInvalid, claims.Scope)
	}
	return claims, nil
}
