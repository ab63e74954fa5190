package auth

import "errors"

// Sentinel errors for the auth package.
var (
	// ErrInvalidPassphrase is returned when pairing with the wrong passphrase.
	ErrInvalidPassphrase = errors.New("auth: invalid passphrase")

	// ErrPairingDisabled is returned when no pairing hash is configured.
	ErrPairingDisabled = errors.New("auth: pairing disabled")

	// ErrInvalidHash is returned for a malformed PHC hash string.
	ErrInvalidHash = errors.New("auth: invalid passphrase hash")

	// ErrTokenInvalid is returned for a token that fails verification.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrMissingSecret is returned when signing or verifying without a secret.
	ErrMissingSecret = errors.New("auth: jwt secret not configured")
)
