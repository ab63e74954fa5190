package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nerrad567/screentime-core/internal/auth"
	"github.com/nerrad567/screentime-core/internal/clock"
	"github.com/nerrad567/screentime-core/internal/infrastructure/config"
	"github.com/nerrad567/screentime-core/internal/infrastructure/logging"
	"github.com/nerrad567/screentime-core/internal/override"
	"github.com/nerrad567/screentime-core/internal/restriction"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

var testNow = time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	srv     *Server
	ctl     *override.Controller
	clk     *clock.FakeClock
	history *override.SQLiteHistory
}

type envOption func(*Deps)

func withSecurity(sec config.SecurityConfig) envOption {
	return func(d *Deps) { d.Security = sec }
}

func withoutHistory() envOption {
	return func(d *Deps) { d.History = nil }
}

// testServer creates a Server around a real controller on an in-memory
// store and a real history repository on in-memory SQLite.
func testServer(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	store := restriction.NewMemoryStore()
	err := restriction.Save(context.Background(), store, restriction.State{
		BlockedApps:       []string{"com.example.game"},
		BlockedCategories: []string{"social"},
		GoalMinutes:       map[string]int{"games": 45},
		Downtime:          true,
	})
	if err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	env := &testEnv{clk: clock.Fake(testNow)}
	env.ctl = override.NewController(store, env.clk, override.Options{})
	if err := env.ctl.Start(context.Background()); err != nil {
		t.Fatalf("controller Start() error: %v", err)
	}
	t.Cleanup(func() { env.ctl.Close() }) //nolint:errcheck // Test cleanup

	env.history = override.NewSQLiteHistory(setupTestDB(t))

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	deps := Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Timetable:  config.TimetableConfig{Timezone: "UTC", TermWeeks: 4},
		Logger:     log,
		Controller: env.ctl,
		History:    env.history,
		Version:    "test",
		Now:        env.clk.Now,
	}
	for _, o := range opts {
		o(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	env.srv = srv
	return env
}

// setupTestDB creates an in-memory SQLite database with the history schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	_, err = db.Exec(`
		CREATE TABLE override_history (
			id               TEXT PRIMARY KEY,
			command_id       TEXT NOT NULL,
			event            TEXT NOT NULL,
			action           TEXT NOT NULL,
			effective_action TEXT NOT NULL,
			reason           TEXT NOT NULL DEFAULT '',
			duration_minutes INTEGER NOT NULL DEFAULT 0,
			source           TEXT NOT NULL DEFAULT '',
			created_at       TEXT NOT NULL
		) STRICT;`)
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return db
}

func (e *testEnv) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.srv.buildRouter().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
	return v
}

func TestNew_RequiresDependencies(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	if _, err := New(Deps{Controller: nil, Logger: log}); err == nil {
		t.Error("New() without controller should fail")
	}
	env := testServer(t)
	if _, err := New(Deps{Controller: env.ctl}); err == nil {
		t.Error("New() without logger should fail")
	}
}

func TestServer_StartClose(t *testing.T) {
	env := testServer(t)
	ctx := context.Background()

	if err := env.srv.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if err := env.srv.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := env.srv.Start(ctx); err == nil {
		t.Error("second Start() should fail")
	}
	if err := env.srv.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error: %v", err)
	}

	resp, err := http.Get("http://" + env.srv.Addr().String() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close() //nolint:errcheck // Test
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestHealth(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	h := decode[healthResponse](t, w)
	if h.Status != "ok" || h.Version != "test" || h.OverrideActive {
		t.Errorf("health = %+v", h)
	}

	env.ctl.Close() //nolint:errcheck // Simulate a stopped controller
	w = env.do(t, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status after controller close = %d, want 503", w.Code)
	}
}

func TestRequestID_Propagated(t *testing.T) {
	env := testServer(t)
	w := env.do(t, http.MethodGet, "/api/v1/health", "", "X-Request-ID", "abc123")
	if got := w.Header().Get("X-Request-ID"); got != "abc123" {
		t.Errorf("X-Request-ID = %q, want abc123", got)
	}
}

func TestOverride_ApplyStatusCancel(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPost, "/api/v1/override",
		`{"action":"unblockAllApps","duration":20,"reason":"homework"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("POST status = %d, body %s", w.Code, w.Body.String())
	}
	res := decode[override.Result](t, w)
	if res.EffectiveAction != override.ActionUnblockAllApps {
		t.Errorf("EffectiveAction = %q", res.EffectiveAction)
	}
	if want := testNow.Add(20 * time.Minute); !res.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", res.ExpiresAt, want)
	}

	w = env.do(t, http.MethodGet, "/api/v1/override", "")
	st := decode[override.Status](t, w)
	if st.Active == nil || st.Active.Source != override.SourceAPI {
		t.Fatalf("Active = %+v, want api override", st.Active)
	}
	if len(st.Restrictions.BlockedApps) != 0 || st.Restrictions.GoalMinutes["games"] != 45 {
		t.Errorf("restrictions during unblock = %+v", st.Restrictions)
	}

	w = env.do(t, http.MethodDelete, "/api/v1/override", "")
	if w.Code != http.StatusOK {
		t.Fatalf("DELETE status = %d, body %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/api/v1/restrictions", "")
	rs := decode[restriction.State](t, w)
	if len(rs.BlockedApps) != 1 || !rs.Downtime {
		t.Errorf("restrictions after cancel = %+v, want restored", rs)
	}

	w = env.do(t, http.MethodDelete, "/api/v1/override", "")
	if w.Code != http.StatusConflict {
		t.Errorf("second DELETE status = %d, want 409", w.Code)
	}
}

func TestOverride_RevertsOnTimer(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPost, "/api/v1/override", `{"action":"disableAllLimits","duration":5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("POST status = %d", w.Code)
	}
	env.clk.Advance(5 * time.Minute)

	deadline := time.Now().Add(2 * time.Second)
	for {
		st := decode[override.Status](t, env.do(t, http.MethodGet, "/api/v1/override", ""))
		if st.Active == nil {
			if !st.Restrictions.Downtime {
				t.Errorf("restrictions after revert = %+v", st.Restrictions)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("override still active after its duration")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestOverride_BadCommands(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty body", "", http.StatusBadRequest},
		{"not json", "lift everything", http.StatusBadRequest},
		{"unknown action", `{"action":"shutdown"}`, http.StatusBadRequest},
		{"missing action", `{"duration":10}`, http.StatusBadRequest},
		{"bad custom action", `{"action":"customOverride","custom_action":"cancelOverride"}`, http.StatusBadRequest},
		{"too large", `{"action":"unblockAllApps","reason":"` + strings.Repeat("x", maxRequestBodySize) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/override", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}

	st := decode[override.Status](t, env.do(t, http.MethodGet, "/api/v1/override", ""))
	if st.Active != nil || len(st.Restrictions.BlockedApps) != 1 {
		t.Errorf("state changed by rejected commands: %+v", st)
	}
}

func TestRestrictions_Put(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPut, "/api/v1/restrictions",
		`{"blocked_apps":["b","a","a"],"blocked_categories":[],"goal_minutes":{"video":30},"downtime":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body %s", w.Code, w.Body.String())
	}
	st := decode[override.Status](t, w)
	if got := st.Restrictions.BlockedApps; len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("BlockedApps = %v, want [a b]", got)
	}
	if st.Restrictions.GoalMinutes["video"] != 30 {
		t.Errorf("GoalMinutes = %v", st.Restrictions.GoalMinutes)
	}

	w = env.do(t, http.MethodPut, "/api/v1/restrictions", `{"goal_minutes":{"games":-1}}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("negative goal status = %d, want 422", w.Code)
	}

	w = env.do(t, http.MethodPut, "/api/v1/restrictions", `[1,2]`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d, want 400", w.Code)
	}
}

func TestHistory(t *testing.T) {
	env := testServer(t)
	ctx := context.Background()

	for i, ev := range []string{"applied", "reverted", "applied"} {
		err := env.history.Record(ctx, &override.HistoryEntry{
			CommandID:       "cmd-1",
			Event:           ev,
			Action:          override.ActionUnblockAllApps,
			EffectiveAction: override.ActionUnblockAllApps,
			DurationMinutes: 15,
			Source:          override.SourceTCP,
			CreatedAt:       testNow.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Record() error: %v", err)
		}
	}

	w := env.do(t, http.MethodGet, "/api/v1/history?event=applied&limit=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	page := decode[override.HistoryPage](t, w)
	if page.Total != 2 || len(page.Entries) != 1 || page.Limit != 1 {
		t.Errorf("page = %+v, want total 2 with one entry", page)
	}

	for _, q := range []string{"?limit=x", "?offset=-1", "?event=started"} {
		if w := env.do(t, http.MethodGet, "/api/v1/history"+q, ""); w.Code != http.StatusBadRequest {
			t.Errorf("GET /history%s status = %d, want 400", q, w.Code)
		}
	}
}

func TestHistory_Unavailable(t *testing.T) {
	env := testServer(t, withoutHistory())
	if w := env.do(t, http.MethodGet, "/api/v1/history", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestPairAndAuth(t *testing.T) {
	hash, err := auth.HashPassphrase("correct horse")
	if err != nil {
		t.Fatalf("HashPassphrase() error: %v", err)
	}
	env := testServer(t, withSecurity(config.SecurityConfig{
		RequireToken: true,
		PairingHash:  hash,
		JWT:          config.JWTConfig{Secret: testSecret, TokenTTL: 24},
	}))

	if w := env.do(t, http.MethodGet, "/api/v1/override", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/override", "", "Authorization", "Bearer nope"); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/health", ""); w.Code != http.StatusOK {
		t.Errorf("health without token status = %d, want 200", w.Code)
	}

	w := env.do(t, http.MethodPost, "/api/v1/auth/pair", `{"passphrase":"wrong","device_name":"Parent phone"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong passphrase status = %d, want 401", w.Code)
	}
	w = env.do(t, http.MethodPost, "/api/v1/auth/pair", `{"passphrase":"correct horse"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing device status = %d, want 400", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/v1/auth/pair", `{"passphrase":"correct horse","device_name":"Parent phone"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("pair status = %d, body %s", w.Code, w.Body.String())
	}
	pr := decode[pairResponse](t, w)
	if pr.TokenType != "Bearer" || !pr.ExpiresAt.Equal(testNow.Add(24*time.Hour)) {
		t.Errorf("pair response = %+v", pr)
	}

	w = env.do(t, http.MethodGet, "/api/v1/override", "", "Authorization", "Bearer "+pr.Token)
	if w.Code != http.StatusOK {
		t.Errorf("with token status = %d, want 200", w.Code)
	}
}

func TestPair_Disabled(t *testing.T) {
	env := testServer(t, withSecurity(config.SecurityConfig{
		JWT: config.JWTConfig{Secret: testSecret},
	}))
	w := env.do(t, http.MethodPost, "/api/v1/auth/pair", `{"passphrase":"x","device_name":"phone"}`)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

const sampleTimetable = `Monday
09:00-10:00 Maths @ B12
10:00 - 11:00 English
Tue 13:30-14:30 Science room 4
Tue 14:00-15:00 Music
lunch`

func TestTimetable_Parse(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPost, "/api/v1/timetable/parse",
		`{"text":`+jsonString(sampleTimetable)+`,"from":"2026-03-02","weeks":2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	resp := decode[timetableResponse](t, w)
	if len(resp.Entries) != 4 || len(resp.Events) != 4 {
		t.Fatalf("entries = %d, events = %d, want 4 each", len(resp.Entries), len(resp.Events))
	}
	if resp.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", resp.Skipped)
	}
	if len(resp.Conflicts) != 1 {
		t.Errorf("Conflicts = %d, want 1 (Science/Music)", len(resp.Conflicts))
	}
	first := resp.Events[0]
	if want := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC); !first.Start.Equal(want) {
		t.Errorf("first event start = %v, want %v", first.Start, want)
	}
	if len(first.Occurrences) != 2 {
		t.Errorf("occurrences = %d, want 2", len(first.Occurrences))
	}
}

func TestTimetable_Errors(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"bad date", `{"text":"Mon 09:00-10:00 Maths","from":"02/03/2026"}`, http.StatusBadRequest},
		{"negative weeks", `{"text":"Mon 09:00-10:00 Maths","weeks":-2}`, http.StatusBadRequest},
		{"too many weeks", `{"text":"Mon 09:00-10:00 Maths","weeks":2000000}`, http.StatusBadRequest},
		{"nothing recognised", `{"text":"hello"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(t, http.MethodPost, "/api/v1/timetable/parse", tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestTimetable_ICS(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPost, "/api/v1/timetable/ics",
		`{"text":"Wed 09:00-10:00 Maths @ B12","from":"2026-03-02"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	for _, want := range []string{"BEGIN:VCALENDAR", "SUMMARY:Maths", "FREQ=WEEKLY", "COUNT=4", "DTSTART:20260304T090000"} {
		if !strings.Contains(body, want) {
			t.Errorf("ICS missing %q:\n%s", want, body)
		}
	}
}

func jsonString(s string) string {
	b, _ := json.Marshal(s) //nolint:errcheck // Strings always marshal
	return string(b)
}
