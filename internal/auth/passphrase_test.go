package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestHashPassphrase_RoundTrip(t *testing.T) {
	passphrase := "correct-horse-battery-staple"

	hash, err := HashPassphrase(passphrase)
	if err != nil {
		t.Fatalf("HashPassphrase() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("hash should start with $argon2id$, got %q", hash)
	}

	ok, err := VerifyPassphrase(passphrase, hash)
	if err != nil {
		t.Fatalf("VerifyPassphrase() error = %v", err)
	}
	if !ok {
		t.Error("VerifyPassphrase() should return true for the correct passphrase")
	}

	ok, err = VerifyPassphrase("wrong-passphrase", hash)
	if err != nil {
		t.Fatalf("VerifyPassphrase() error = %v", err)
	}
	if ok {
		t.Error("VerifyPassphrase() should return false for a wrong passphrase")
	}
}

func TestHashPassphrase_UniqueSalts(t *testing.T) {
	hash1, err := HashPassphrase("same")
	if err != nil {
		t.Fatalf("HashPassphrase() error = %v", err)
	}
	hash2, err := HashPassphrase("same")
	if err != nil {
		t.Fatalf("HashPassphrase() error = %v", err)
	}
	if hash1 == hash2 {
		t.Error("two hashes of the same passphrase should have different salts")
	}
}

func TestHashPassphrase_PHCFormat(t *testing.T) {
	hash, err := HashPassphrase("test")
	if err != nil {
		t.Fatalf("HashPassphrase() error = %v", err)
	}

	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		t.Fatalf("PHC format should have 6 $-delimited parts, got %d: %q", len(parts), hash)
	}
	if parts[2] != "v=19" {
		t.Errorf("version should be v=19, got %q", parts[2])
	}
	if parts[3] != "m=65536,t=3,p=1" {
		t.Errorf("params should be m=65536,t=3,p=1, got %q", parts[3])
	}
}

func TestVerifyPassphrase_InvalidFormat(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"not PHC", "plaintext"},
		{"wrong algorithm", "$bcrypt$v=19$m=65536,t=3,p=1$c2FsdA$aGFzaA"},
		{"too few parts", "$argon2id$v=19$m=65536,t=3,p=1"},
		{"bad version", "$argon2id$v=16$m=65536,t=3,p=1$c2FsdA$aGFzaA"},
		{"bad base64", "$argon2id$v=19$m=65536,t=3,p=1$!!!$aGFzaA"},
		{"empty hash", "$argon2id$v=19$m=65536,t=3,p=1$c2FsdA$"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifyPassphrase("passphrase", tt.hash)
			if !errors.Is(err, ErrInvalidHash) {
				t.Errorf("VerifyPassphrase() error = %v, want ErrInvalidHash", err)
			}
		})
	}
}
