package restriction

import "errors"

var (
	// ErrKeyNotFound is returned by Store.Get for an absent key.
	ErrKeyNotFound = errors.New("restriction: key not found")

	// ErrInvalidValue is returned when a stored value cannot be decoded.
	ErrInvalidValue = errors.New("restriction: invalid stored value")

	// ErrInvalidGoal is returned for negative goal thresholds.
	ErrInvalidGoal = errors.New("restriction: goal minutes must not be negative")
)
