// Package receiver accepts override commands from companion apps on the
// local network and answers discovery probes.
//
// Two sockets are served:
//   - TCP (default 8765): one JSON command per connection, no framing and
//     no reply. Payloads that do not decode are logged and dropped.
//   - UDP (default 8766): every datagram gets exactly one reply carrying
//     the JSON-encoded DeviceInfo. The probe payload is not interpreted.
//
// Commands can also arrive over MQTT; see NewMQTTCommandHandler.
//
// Decoded commands are passed to a Dispatcher (normally the
// override.Controller), which owns all restriction state.
package receiver
