package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/screentime-core/internal/auth"
	"github.com/nerrad567/screentime-core/internal/infrastructure/config"
)

func dialWS(t *testing.T, env *testEnv, query string) (*websocket.Conn, *httptest.Server) {
	t.Helper()
	unsubscribe := env.ctl.Subscribe(env.srv.relayEvent)
	t.Cleanup(unsubscribe)

	ts := httptest.NewServer(env.srv.buildRouter())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v (resp %v)", err, resp)
	}
	t.Cleanup(func() { conn.Close() }) //nolint:errcheck // Test cleanup
	return conn, ts
}

func readWS(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // Test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error: %v", err)
	}
	return msg
}

func TestWebSocket_StatusThenEvents(t *testing.T) {
	env := testServer(t)
	conn, ts := dialWS(t, env, "")

	first := readWS(t, conn)
	if first.Type != WSTypeEvent || first.EventType != WSEventStatus {
		t.Fatalf("first message = %+v, want status event", first)
	}

	resp, err := http.Post(ts.URL+"/api/v1/override", "application/json",
		strings.NewReader(`{"action":"emergencyOverride","duration":10}`))
	if err != nil {
		t.Fatalf("POST /override: %v", err)
	}
	resp.Body.Close() //nolint:errcheck // Test
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST status = %d", resp.StatusCode)
	}

	msg := readWS(t, conn)
	if msg.EventType != "override.applied" {
		t.Fatalf("event_type = %q, want override.applied", msg.EventType)
	}
	payload, _ := msg.Payload.(map[string]any) //nolint:errcheck // Checked below
	if payload["effective_action"] != "emergencyOverride" || payload["source"] != "api" {
		t.Errorf("payload = %v", payload)
	}
}

func TestWebSocket_SubscribeFilters(t *testing.T) {
	env := testServer(t)
	conn, _ := dialWS(t, env, "")
	readWS(t, conn) // status

	send := func(v any) {
		t.Helper()
		if err := conn.WriteJSON(v); err != nil {
			t.Fatalf("WriteJSON() error: %v", err)
		}
	}

	send(WSMessage{Type: WSTypeUnsubscribe, ID: "1", Payload: WSSubscribePayload{Channels: []string{WSChannelAll}}})
	if msg := readWS(t, conn); msg.Type != WSTypeResponse || msg.ID != "1" {
		t.Fatalf("unsubscribe reply = %+v", msg)
	}
	send(WSMessage{Type: WSTypeSubscribe, ID: "2", Payload: WSSubscribePayload{Channels: []string{"override.cancelled"}}})
	if msg := readWS(t, conn); msg.Type != WSTypeResponse || msg.ID != "2" {
		t.Fatalf("subscribe reply = %+v", msg)
	}

	env.srv.hub.Broadcast("override.applied", map[string]string{"skip": "me"})
	env.srv.hub.Broadcast("override.cancelled", map[string]string{"keep": "me"})

	msg := readWS(t, conn)
	if msg.EventType != "override.cancelled" {
		t.Errorf("event_type = %q, want override.cancelled only", msg.EventType)
	}

	send(WSMessage{Type: WSTypePing, ID: "3"})
	if msg := readWS(t, conn); msg.Type != WSTypePong || msg.ID != "3" {
		t.Errorf("ping reply = %+v", msg)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("WriteMessage() error: %v", err)
	}
	if msg := readWS(t, conn); msg.Type != WSTypeError {
		t.Errorf("bad message reply = %+v, want error", msg)
	}
}

func TestWebSocket_TokenQueryParam(t *testing.T) {
	env := testServer(t, withSecurity(config.SecurityConfig{
		RequireToken: true,
		JWT:          config.JWTConfig{Secret: testSecret},
	}))

	ts := httptest.NewServer(env.srv.buildRouter())
	defer ts.Close()
	base := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"

	_, resp, err := websocket.DefaultDialer.Dial(base, nil)
	if err == nil {
		t.Fatal("Dial() without token should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}

	token, _, err := auth.IssueToken(testSecret, "Parent phone", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("IssueToken() error: %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(base+"?token="+token, nil)
	if err != nil {
		t.Fatalf("Dial() with token error: %v", err)
	}
	defer conn.Close() //nolint:errcheck // Test cleanup

	msg := readWS(t, conn)
	if msg.EventType != WSEventStatus {
		t.Errorf("first message = %+v", msg)
	}

	var status struct {
		Active any `json:"active"`
	}
	raw, _ := json.Marshal(msg.Payload) //nolint:errcheck // Round-trip of decoded JSON
	if err := json.Unmarshal(raw, &status); err != nil || status.Active != nil {
		t.Errorf("status payload = %s", raw)
	}
}
