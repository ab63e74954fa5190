// Package logging provides structured logging for the screen time agent.
//
// It wraps log/slog so every component logs the same way: JSON in
// production, text while developing, with service and version attached.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Component("receiver").Info("listening", "port", 8765)
//
// Never log the pairing passphrase, JWT secret, or bearer tokens.
package logging
