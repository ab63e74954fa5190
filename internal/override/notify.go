package override

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Notification is the user-facing message for an override event.
type Notification struct {
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Action    Action    `json:"action,omitempty"`
	Urgent    bool      `json:"urgent,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Notifier delivers notifications. Failures are logged by the caller
// and never affect restriction state.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

const notificationTitle = "Screen Time"

// NotificationFor builds the notification for e. It reports false for
// events the user is not told about.
func NotificationFor(e Event) (Notification, bool) {
	n := Notification{Title: notificationTitle, Action: e.EffectiveAction, ExpiresAt: e.ExpiresAt}

	switch e.Type {
	case EventApplied:
		span := minutes(e.DurationMinutes)
		switch e.EffectiveAction {
		case ActionUnblockAllApps:
			n.Body = "All apps unblocked for " + span
		case ActionEmergencyOverride:
			n.Body = "Emergency override active for " + span
			n.Urgent = true
		default:
			n.Body = "All limits disabled for " + span
		}
		if e.Reason != "" {
			n.Body += fmt.Sprintf(" (%s)", e.Reason)
		}
	case EventReverted:
		n.Body = "Override ended. Restrictions are back on"
	case EventCancelled:
		n.Body = "Override cancelled. Restrictions are back on"
	default:
		return Notification{}, false
	}
	return n, true
}

func minutes(n int) string {
	if n == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", n)
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	logger Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs n at info level.
func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	l.logger.Info("notification", "title", n.Title, "body", n.Body, "urgent", n.Urgent)
	return nil
}

// Publisher is the MQTT publishing surface the notifiers need.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

// MQTTNotifier publishes notifications as JSON to a fixed topic.
type MQTTNotifier struct {
	pub   Publisher
	topic string
}

// NewMQTTNotifier creates an MQTTNotifier publishing to topic.
func NewMQTTNotifier(pub Publisher, topic string) *MQTTNotifier {
	return &MQTTNotifier{pub: pub, topic: topic}
}

// Notify publishes n.
func (m *MQTTNotifier) Notify(_ context.Context, n Notification) error {
	if err := m.pub.PublishJSON(m.topic, n); err != nil {
		return fmt.Errorf("publishing notification: %w", err)
	}
	return nil
}

// MultiNotifier fans a notification out to every notifier and joins
// their errors.
type MultiNotifier []Notifier

// Notify calls every notifier, even after a failure.
func (m MultiNotifier) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, nf := range m {
		if err := nf.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EventPublisher returns a listener that publishes each event to topic.
// Publish failures are logged.
func EventPublisher(pub Publisher, topic string, logger Logger) func(Event) {
	return func(e Event) {
		if err := pub.PublishJSON(topic, e); err != nil {
			logger.Warn("publishing override event failed", "type", e.Type, "error", err)
		}
	}
}
