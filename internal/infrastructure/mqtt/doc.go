// Package mqtt connects the agent to an optional MQTT broker.
//
// The broker is a second delivery path next to the LAN receiver. The agent
// publishes its availability, override lifecycle events and notifications
// under screentime/{device}/, and can accept override commands on
// screentime/{device}/override/command.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Device.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(client.Topics().OverrideEvent(), event)
//
// A retained Last Will on screentime/{device}/status lets subscribers
// tell an unexpected disconnect from a graceful shutdown.
package mqtt
