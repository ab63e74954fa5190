package override

import "errors"

var (
	// ErrUnknownAction is returned when a command names an action that
	// does not exist.
	ErrUnknownAction = errors.New("override: unknown action")

	// ErrMissingAction is returned when a command has no action.
	ErrMissingAction = errors.New("override: action is required")

	// ErrInvalidCustomAction is returned when custom_action is not one of
	// disableAllLimits, unblockAllApps or emergencyOverride.
	ErrInvalidCustomAction = errors.New("override: invalid custom_action")

	// ErrMalformedCommand is returned when a payload is not valid command JSON.
	ErrMalformedCommand = errors.New("override: malformed command")

	// ErrNoActiveOverride is returned when cancelling with nothing active.
	ErrNoActiveOverride = errors.New("override: no active override")

	// ErrClosed is returned by Controller methods after Close.
	ErrClosed = errors.New("override: controller closed")

	// ErrNotStarted is returned by Controller methods before Start.
	ErrNotStarted = errors.New("override: controller not started")
)
