package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/screentime-core/internal/auth"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("SCREENTIME_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_InvalidConfigValues verifies validation errors stop startup.
func TestRun_InvalidConfigValues(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := "database:\n  path: \"\"\nreceiver:\n  tcp_port: 0\n"
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("SCREENTIME_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config values")
	}
}

func freeTCPPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free TCP port: %v", err)
	}
	defer ln.Close() //nolint:errcheck // Test helper
	return ln.Addr().(*net.TCPAddr).Port
}

func freeUDPPort(t *testing.T) int {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free UDP port: %v", err)
	}
	defer pc.Close() //nolint:errcheck // Test helper
	return pc.LocalAddr().(*net.UDPAddr).Port
}

// TestRun_EndToEnd starts the agent, sends a TCP command and checks the
// API reports the override, then shuts down cleanly.
func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	tcpPort, udpPort, apiPort := freeTCPPort(t), freeUDPPort(t), freeTCPPort(t)

	content := fmt.Sprintf(`
device:
  id: test-device
  name: Test Tablet
  local_ip: 127.0.0.1
receiver:
  host: 127.0.0.1
  tcp_port: %d
  udp_port: %d
database:
  path: %s
api:
  enabled: true
  host: 127.0.0.1
  port: %d
logging:
  level: error
  format: text
  output: stdout
timetable:
  timezone: UTC
`, tcpPort, udpPort, filepath.Join(dir, "screentime.db"), apiPort)
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("SCREENTIME_CONFIG", configPath)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()
	defer func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("run() error = %v", err)
			}
		case <-time.After(15 * time.Second):
			t.Error("run() did not return after cancel")
		}
	}()

	base := fmt.Sprintf("http://127.0.0.1:%d/api/v1", apiPort)
	waitFor(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close() //nolint:errcheck // Test
		return resp.StatusCode == http.StatusOK
	})

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", tcpPort))
	if err != nil {
		t.Fatalf("dialling command port: %v", err)
	}
	if _, err := conn.Write([]byte(`{"action":"unblockAllApps","duration":10}`)); err != nil {
		t.Fatalf("writing command: %v", err)
	}
	conn.Close() //nolint:errcheck // Test

	waitFor(t, func() bool {
		resp, err := http.Get(base + "/override")
		if err != nil {
			return false
		}
		defer resp.Body.Close() //nolint:errcheck // Test
		var st struct {
			Active *struct {
				Source string `json:"source"`
			} `json:"active"`
		}
		return json.NewDecoder(resp.Body).Decode(&st) == nil && st.Active != nil && st.Active.Source == "tcp"
	})

	probe, err := net.Dial("udp", fmt.Sprintf("127.0.0.1:%d", udpPort))
	if err != nil {
		t.Fatalf("dialling discovery port: %v", err)
	}
	defer probe.Close() //nolint:errcheck // Test
	if _, err := probe.Write([]byte("discover")); err != nil {
		t.Fatalf("sending probe: %v", err)
	}
	probe.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test
	buf := make([]byte, 1024)
	n, err := probe.Read(buf)
	if err != nil {
		t.Fatalf("reading discovery reply: %v", err)
	}
	if !strings.Contains(string(buf[:n]), `"name":"Test Tablet"`) {
		t.Errorf("discovery reply = %s", buf[:n])
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 5s")
		}
		time.Sleep(25 * time.Millisecond)
	}
}

// TestGetConfigPath verifies the default and the environment override.
func TestGetConfigPath(t *testing.T) {
	t.Setenv("SCREENTIME_CONFIG", "")
	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}

	t.Setenv("SCREENTIME_CONFIG", "/custom/path/config.yaml")
	if path := getConfigPath(); path != "/custom/path/config.yaml" {
		t.Errorf("getConfigPath() = %q, want override", path)
	}
}

func TestHashPassphrase(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		stdin   string
		want    string
		wantErr bool
	}{
		{"argument", []string{"correct", "horse"}, "", "correct horse", false},
		{"stdin", nil, "battery staple\n", "battery staple", false},
		{"empty", nil, "\n", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := hashPassphrase(tt.args, strings.NewReader(tt.stdin), &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("hashPassphrase() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			hash := strings.TrimSpace(out.String())
			ok, err := auth.VerifyPassphrase(tt.want, hash)
			if err != nil || !ok {
				t.Errorf("VerifyPassphrase(%q, %q) = %v, %v", tt.want, hash, ok, err)
			}
		})
	}
}
