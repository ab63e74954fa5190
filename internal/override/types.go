package override

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/screentime-core/internal/restriction"
)

// Action is an override command verb. Wire values are camelCase.
type Action string

const (
	ActionDisableAllLimits  Action = "disableAllLimits"
	ActionUnblockAllApps    Action = "unblockAllApps"
	ActionEmergencyOverride Action = "emergencyOverride"
	ActionCustomOverride    Action = "customOverride"
	ActionCancelOverride    Action = "cancelOverride"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionDisableAllLimits, ActionUnblockAllApps, ActionEmergencyOverride,
		ActionCustomOverride, ActionCancelOverride:
		return true
	}
	return false
}

// direct reports whether a lifts restrictions without further resolution.
func (a Action) direct() bool {
	return a == ActionDisableAllLimits || a == ActionUnblockAllApps || a == ActionEmergencyOverride
}

// UnmarshalJSON rejects unknown actions. The empty string is accepted so
// an absent custom_action decodes cleanly.
func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s != "" && !Action(s).Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
	*a = Action(s)
	return nil
}

// Command is one override instruction from a companion app.
type Command struct {
	// ID is assigned on receipt when empty.
	ID           string `json:"id,omitempty"`
	Action       Action `json:"action"`
	Duration     int    `json:"duration"` // minutes
	Reason       string `json:"reason,omitempty"`
	CustomAction Action `json:"custom_action,omitempty"`
}

// Source identifies how a command reached the agent.
type Source string

const (
	SourceTCP     Source = "tcp"
	SourceMQTT    Source = "mqtt"
	SourceAPI     Source = "api"
	SourceStartup Source = "startup"
	SourceTimer   Source = "timer"
)

// ActiveOverride is the persisted record of the override in force.
type ActiveOverride struct {
	CommandID       string    `json:"command_id"`
	Action          Action    `json:"action"`
	EffectiveAction Action    `json:"effective_action"`
	Reason          string    `json:"reason,omitempty"`
	Source          Source    `json:"source"`
	DurationMinutes int       `json:"duration_minutes"`
	StartedAt       time.Time `json:"started_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Remaining returns the time left at now, never negative.
func (a ActiveOverride) Remaining(now time.Time) time.Duration {
	if d := a.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Status is a point-in-time view of the controller.
type Status struct {
	Active       *ActiveOverride   `json:"active"`
	Restrictions restriction.State `json:"restrictions"`
}

// Result describes what Dispatch did.
type Result struct {
	CommandID       string    `json:"command_id"`
	Action          Action    `json:"action"`
	EffectiveAction Action    `json:"effective_action"`
	ExpiresAt       time.Time `json:"expires_at,omitzero"`
	// Superseded is true when the command replaced an override that was
	// still active.
	Superseded bool `json:"superseded"`
}

// EventType names an override lifecycle event.
type EventType string

const (
	EventApplied             EventType = "override.applied"
	EventReverted            EventType = "override.reverted"
	EventCancelled           EventType = "override.cancelled"
	EventRestrictionsUpdated EventType = "restrictions.updated"
)

// Short returns the type without its prefix ("applied").
func (t EventType) Short() string {
	switch t {
	case EventApplied:
		return "applied"
	case EventReverted:
		return "reverted"
	case EventCancelled:
		return "cancelled"
	case EventRestrictionsUpdated:
		return "updated"
	}
	return string(t)
}

// Event is published to subscribers after every state change.
type Event struct {
	Type            EventType         `json:"type"`
	CommandID       string            `json:"command_id,omitempty"`
	Action          Action            `json:"action,omitempty"`
	EffectiveAction Action            `json:"effective_action,omitempty"`
	Reason          string            `json:"reason,omitempty"`
	Source          Source            `json:"source,omitempty"`
	DurationMinutes int               `json:"duration_minutes,omitempty"`
	ExpiresAt       time.Time         `json:"expires_at,omitzero"`
	Restrictions    restriction.State `json:"restrictions"`
	Timestamp       time.Time         `json:"timestamp"`
}
