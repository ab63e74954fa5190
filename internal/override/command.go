package override

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nerrad567/screentime-core/internal/restriction"
)

// Decode parses one command payload.
//
// Returns ErrMalformedCommand for anything that is not a JSON object,
// wrapping ErrUnknownAction, ErrMissingAction or ErrInvalidCustomAction
// when the object is well formed but the actions are not.
func Decode(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrMalformedCommand, err)
	}
	if err := cmd.Validate(); err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrMalformedCommand, err)
	}
	return cmd, nil
}

// Validate checks the action fields. Duration and reason are free.
func (c Command) Validate() error {
	switch {
	case c.Action == "":
		return ErrMissingAction
	case !c.Action.Valid():
		return fmt.Errorf("%w: %q", ErrUnknownAction, c.Action)
	case c.CustomAction != "" && !c.CustomAction.direct():
		return fmt.Errorf("%w: %q", ErrInvalidCustomAction, c.CustomAction)
	}
	return nil
}

// Resolve returns the action that will actually be carried out.
//
// customOverride uses custom_action when set. Without it the reason is
// matched case-insensitively: "work" or "emergency" selects
// emergencyOverride, "app" selects unblockAllApps, anything else
// disableAllLimits. Other actions resolve to themselves.
func Resolve(c Command) Action {
	if c.Action != ActionCustomOverride {
		return c.Action
	}
	if c.CustomAction.direct() {
		return c.CustomAction
	}
	return classifyReason(c.Reason)
}

func classifyReason(reason string) Action {
	r := strings.ToLower(reason)
	switch {
	case strings.Contains(r, "work"), strings.Contains(r, "emergency"):
		return ActionEmergencyOverride
	case strings.Contains(r, "app"):
		return ActionUnblockAllApps
	default:
		return ActionDisableAllLimits
	}
}

// lift returns the restrictions left in force while effective is active.
func lift(effective Action, s restriction.State) restriction.State {
	if effective == ActionUnblockAllApps {
		return s.WithoutBlockLists()
	}
	return restriction.State{}
}
