package receiver

import (
	"context"
	"fmt"

	"github.com/nerrad567/screentime-core/internal/override"
)

// NewMQTTCommandHandler returns an MQTT message handler that decodes the
// payload as a command and dispatches it with source mqtt.
//
// Malformed payloads are logged and swallowed so a bad message is not
// reported as a handler failure on every redelivery.
func NewMQTTCommandHandler(d Dispatcher, logger Logger) func(topic string, payload []byte) error {
	if logger == nil {
		logger = noopLogger{}
	}
	return func(topic string, payload []byte) error {
		cmd, err := override.Decode(payload)
		if err != nil {
			logger.Warn("mqtt command dropped", "topic", topic, "error", err)
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		res, err := d.Dispatch(ctx, cmd, override.SourceMQTT)
		if err != nil {
			return fmt.Errorf("dispatching mqtt command: %w", err)
		}
		logger.Info("mqtt command received",
			"topic", topic,
			"command_id", res.CommandID,
			"effective_action", res.EffectiveAction,
		)
		return nil
	}
}
