package receiver

import "errors"

// Sentinel errors for the receiver package.
var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("receiver: already started")

	// ErrPayloadTooLarge is returned when a command exceeds the payload limit.
	ErrPayloadTooLarge = errors.New("receiver: payload too large")

	// ErrEmptyPayload is returned when a connection closes without sending anything.
	ErrEmptyPayload = errors.New("receiver: empty payload")
)
