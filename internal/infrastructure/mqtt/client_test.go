package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/screentime-core/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "screentimed-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// connectOrSkip connects to a local broker, skipping when none is running.
func connectOrSkip(t *testing.T) *Client {
	t.Helper()
	c, err := Connect(testConfig(), "test-device")
	if err != nil {
		t.Skipf("no MQTT broker at 127.0.0.1:1883: %v", err)
	}
	t.Cleanup(func() { c.Close() }) //nolint:errcheck // Test cleanup
	return c
}

func TestTopics(t *testing.T) {
	topics := Topics{Device: "kids-ipad"}

	tests := []struct {
		got  string
		want string
	}{
		{topics.Status(), "screentime/kids-ipad/status"},
		{topics.OverrideEvent(), "screentime/kids-ipad/override/event"},
		{topics.Notification(), "screentime/kids-ipad/notification"},
		{topics.OverrideCommand(), "screentime/kids-ipad/override/command"},
		{topics.AllDevices(), "screentime/#"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestBuildStatus(t *testing.T) {
	var p statusPayload
	if err := json.Unmarshal(buildStatus("kids-ipad", "offline", "graceful_shutdown"), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Status != "offline" || p.Device != "kids-ipad" || p.Reason != "graceful_shutdown" {
		t.Errorf("payload = %+v", p)
	}
	if _, err := time.Parse(time.RFC3339, p.Timestamp); err != nil {
		t.Errorf("timestamp %q not RFC3339: %v", p.Timestamp, err)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "agent"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg, Topics{Device: "kids-ipad"})

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "screentimed-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "agent" {
		t.Errorf("Username = %q, want agent", opts.Username)
	}
	if !opts.WillEnabled || opts.WillTopic != "screentime/kids-ipad/status" || !opts.WillRetained {
		t.Errorf("will = enabled:%v topic:%q retained:%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}

	cfg.Broker.TLS = true
	opts = buildClientOptions(cfg, Topics{Device: "kids-ipad"})
	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig not set")
	}
}

func TestUnconnectedClient(t *testing.T) {
	c := newClient(testConfig(), "kids-ipad")

	if c.IsConnected() {
		t.Error("IsConnected() = true for unconnected client")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
	if err := c.Publish("t", nil, 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() = %v, want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

func TestPublish_Validation(t *testing.T) {
	c := newClient(testConfig(), "kids-ipad")

	if err := c.Publish("", []byte("x"), 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("t", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("qos 3: %v, want ErrInvalidQoS", err)
	}
	big := make([]byte, maxPayloadSize+1)
	if err := c.Publish("t", big, 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("oversized: %v, want ErrPublishFailed", err)
	}
	if err := c.PublishJSON("t", func() {}); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("unencodable: %v, want ErrPublishFailed", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := newClient(testConfig(), "kids-ipad")
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("t", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler: %v, want ErrSubscribeFailed", err)
	}
	if err := c.Subscribe("t", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("unconnected: %v, want ErrNotConnected", err)
	}
	if c.HasSubscription("t") {
		t.Error("failed subscription was tracked")
	}
}

func TestConnect_BrokerRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19999

	if _, err := Connect(cfg, "kids-ipad"); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	c := connectOrSkip(t)

	received := make(chan []byte, 1)
	topic := c.Topics().OverrideCommand()
	err := c.Subscribe(topic, 1, func(_ string, payload []byte) error {
		received <- payload
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !c.HasSubscription(topic) {
		t.Error("subscription not tracked")
	}

	if err := c.PublishJSON(topic, map[string]any{"action": "disableAllLimits", "duration": 5}); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	select {
	case payload := <-received:
		var msg map[string]any
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg["action"] != "disableAllLimits" {
			t.Errorf("action = %v", msg["action"])
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}
