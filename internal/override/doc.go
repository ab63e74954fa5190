// Package override implements the override command channel: the command
// model, the legacy reason classifier, and the Controller that owns the
// device's restriction state.
//
// # Commands
//
// A command is a JSON object:
//
//	{"action": "disableAllLimits", "duration": 30, "reason": "homework"}
//
// Actions:
//   - disableAllLimits: clear every restriction
//   - unblockAllApps: clear the block lists, keep goals and downtime
//   - emergencyOverride: clear every restriction, urgent notification
//   - customOverride: one of the above, chosen by custom_action or,
//     without it, by keywords in reason
//   - cancelOverride: restore the pre-override restrictions now
//
// # Controller
//
// All state changes run on the Controller's goroutine. It persists the
// active override and a snapshot of the restrictions it replaced, and
// keeps exactly one reversal timer. A command arriving while another
// override is active replaces the timer and keeps the original snapshot,
// so the eventual reversal restores the state from before the first
// command.
//
// Subscribers receive an Event after every change. History, MQTT, the
// WebSocket hub and InfluxDB all hang off Subscribe.
package override
