// Package auth authenticates companion apps against the agent's HTTP API.
//
// Pairing is a one-time exchange: the companion presents the household
// passphrase, which is checked against an Argon2id hash from the config,
// and receives an HS256 JWT. Protected routes then accept that token as
// a Bearer credential until it expires.
//
// Generate the hash to put in config.yaml with:
//
//	screentimed hash-passphrase
package auth
