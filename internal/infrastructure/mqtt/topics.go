package mqtt

import "fmt"

// TopicRoot is the first level of every topic the agent uses.
const TopicRoot = "screentime"

// Topics builds the per-device topic hierarchy:
//
//	screentime/{device}/status            retained online/offline, LWT
//	screentime/{device}/override/event    applied, reverted, cancelled
//	screentime/{device}/notification      user-facing notifications
//	screentime/{device}/override/command  inbound override commands
type Topics struct {
	Device string
}

// Status returns the retained availability topic.
//
// Example: screentime/kids-ipad/status
func (t Topics) Status() string {
	return fmt.Sprintf("%s/%s/status", TopicRoot, t.Device)
}

// OverrideEvent returns the topic for override lifecycle events.
//
// Example: screentime/kids-ipad/override/event
func (t Topics) OverrideEvent() string {
	return fmt.Sprintf("%s/%s/override/event", TopicRoot, t.Device)
}

// Notification returns the topic for user-facing notifications.
//
// Example: screentime/kids-ipad/notification
func (t Topics) Notification() string {
	return fmt.Sprintf("%s/%s/notification", TopicRoot, t.Device)
}

// OverrideCommand returns the topic a companion publishes commands to.
//
// Example: screentime/kids-ipad/override/command
func (t Topics) OverrideCommand() string {
	return fmt.Sprintf("%s/%s/override/command", TopicRoot, t.Device)
}

// AllDevices matches every topic for every device.
//
// Pattern: screentime/#
func (Topics) AllDevices() string {
	return TopicRoot + "/#"
}
