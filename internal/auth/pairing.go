package auth

import (
	"fmt"
	"time"
)

// Pairing exchanges the household passphrase for a companion token.
type Pairing struct {
	// Hash is the Argon2id PHC hash of the passphrase. Empty disables pairing.
	Hash string
	// Secret signs issued tokens.
	Secret string
	// TTL is the token lifetime.
	TTL time.Duration
	// Now returns the issue time. Nil means time.Now.
	Now func() time.Time
}

// Pair checks passphrase and issues a token for deviceName.
func (p Pairing) Pair(passphrase, deviceName string) (string, time.Time, error) {
	if p.Hash == "" {
		return "", time.Time{}, ErrPairingDisabled
	}

	ok, err := VerifyPassphrase(passphrase, p.Hash)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("verifying passphrase: %w", err)
	}
	if !ok {
		return "", time.Time{}, ErrInvalidPassphrase
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return IssueToken(p.Secret, deviceName, p.TTL, now())
}
