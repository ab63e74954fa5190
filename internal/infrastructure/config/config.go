package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the screen time agent.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device       DeviceConfig       `yaml:"device"`
	Receiver     ReceiverConfig     `yaml:"receiver"`
	Override     OverrideConfig     `yaml:"override"`
	Database     DatabaseConfig     `yaml:"database"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	API          APIConfig          `yaml:"api"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	Logging      LoggingConfig      `yaml:"logging"`
	Security     SecurityConfig     `yaml:"security"`
	Housekeeping HousekeepingConfig `yaml:"housekeeping"`
	Timetable    TimetableConfig    `yaml:"timetable"`
}

// DeviceConfig describes the device announced to discovery probes.
// Empty fields are filled from the host at startup.
type DeviceConfig struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Model     string `yaml:"model"`
	OSVersion string `yaml:"os_version"`
	// LocalIP pins the advertised address. If empty, the first
	// non-loopback IPv4 address is used.
	LocalIP string `yaml:"local_ip"`
}

// ReceiverConfig contains the local network listener settings.
type ReceiverConfig struct {
	// Host is the bind address for both the TCP and UDP sockets.
	Host string `yaml:"host"`

	// TCPPort accepts one JSON override command per connection.
	TCPPort int `yaml:"tcp_port"`

	// UDPPort answers discovery probes.
	UDPPort int `yaml:"udp_port"`

	// MaxPayload is the largest command accepted, in bytes.
	MaxPayload int `yaml:"max_payload"`

	// ReadTimeout bounds how long a connection may take to deliver its command (seconds).
	ReadTimeout int `yaml:"read_timeout"`

	// MaxConnections limits concurrently handled command connections.
	MaxConnections int `yaml:"max_connections"`
}

// OverrideConfig contains override scheduling settings.
type OverrideConfig struct {
	// DefaultDuration is used when a command carries no positive duration (minutes).
	DefaultDuration int `yaml:"default_duration"`

	// MaxDuration caps any override (minutes).
	MaxDuration int `yaml:"max_duration"`

	// Notifications enables user notifications for override actions.
	Notifications bool `yaml:"notifications"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled bool             `yaml:"enabled"`
	Broker  MQTTBrokerConfig `yaml:"broker"`
	Auth    MQTTAuthConfig   `yaml:"auth"`
	QoS     int              `yaml:"qos"`
	// AcceptCommands subscribes to the override command topic so a
	// companion can deliver commands through the broker instead of TCP.
	AcceptCommands bool                `yaml:"accept_commands"`
	Reconnect      MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains companion authentication settings.
type SecurityConfig struct {
	// RequireToken enforces bearer tokens on protected API routes.
	RequireToken bool `yaml:"require_token"`

	// PairingHash is the argon2id PHC hash of the pairing passphrase.
	PairingHash string `yaml:"pairing_hash"`

	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	// TokenTTL is the companion token lifetime in hours.
	TokenTTL int `yaml:"token_ttl"`
}

// HousekeepingConfig controls history pruning.
type HousekeepingConfig struct {
	// PruneSchedule is a standard five-field cron expression.
	PruneSchedule string `yaml:"prune_schedule"`
	RetentionDays int    `yaml:"retention_days"`
}

// maxTermWeeks matches the longest term the timetable expander accepts.
const maxTermWeeks = 104

// TimetableConfig controls timetable import.
type TimetableConfig struct {
	Timezone  string `yaml:"timezone"`
	TermWeeks int    `yaml:"term_weeks"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SCREENTIME_SECTION_KEY
// For example: SCREENTIME_DATABASE_PATH, SCREENTIME_RECEIVER_TCP_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ID: "screentime-device",
		},
		Receiver: ReceiverConfig{
			Host:           "0.0.0.0",
			TCPPort:        8765,
			UDPPort:        8766,
			MaxPayload:     1024,
			ReadTimeout:    10,
			MaxConnections: 16,
		},
		Override: OverrideConfig{
			DefaultDuration: 15,
			MaxDuration:     24 * 60,
			Notifications:   true,
		},
		Database: DatabaseConfig{
			Path:        "./data/screentime.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "screentimed",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8780,
			Timeouts: APITimeoutConfig{
				Read:  15,
				Write: 15,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				TokenTTL: 24 * 30,
			},
		},
		Housekeeping: HousekeepingConfig{
			PruneSchedule: "0 3 * * *",
			RetentionDays: 30,
		},
		Timetable: TimetableConfig{
			Timezone:  "Local",
			TermWeeks: 12,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SCREENTIME_DEVICE_NAME"); v != "" {
		cfg.Device.Name = v
	}
	if v := os.Getenv("SCREENTIME_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("SCREENTIME_RECEIVER_HOST"); v != "" {
		cfg.Receiver.Host = v
	}
	if v, ok := envInt("SCREENTIME_RECEIVER_TCP_PORT"); ok {
		cfg.Receiver.TCPPort = v
	}
	if v, ok := envInt("SCREENTIME_RECEIVER_UDP_PORT"); ok {
		cfg.Receiver.UDPPort = v
	}
	if v := os.Getenv("SCREENTIME_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SCREENTIME_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SCREENTIME_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("SCREENTIME_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("SCREENTIME_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("SCREENTIME_PAIRING_HASH"); v != "" {
		cfg.Security.PairingHash = v
	}
}

// envInt reads an integer environment variable. Unparsable values are ignored.
func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	}

	if !validPort(c.Receiver.TCPPort) {
		errs = append(errs, "receiver.tcp_port must be between 1 and 65535")
	}
	if !validPort(c.Receiver.UDPPort) {
		errs = append(errs, "receiver.udp_port must be between 1 and 65535")
	}
	if c.Receiver.MaxPayload <= 0 {
		errs = append(errs, "receiver.max_payload must be positive")
	}
	if c.Receiver.MaxConnections <= 0 {
		errs = append(errs, "receiver.max_connections must be positive")
	}

	if c.Override.DefaultDuration <= 0 {
		errs = append(errs, "override.default_duration must be positive")
	}
	if c.Override.MaxDuration < c.Override.DefaultDuration {
		errs = append(errs, "override.max_duration must be at least override.default_duration")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && !validPort(c.API.Port) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// A token requirement is meaningless without a signing secret, and a
	// short secret lets anyone on the LAN forge companion tokens.
	const minJWTSecretLength = 32
	if c.Security.RequireToken {
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required when security.require_token is set (set SCREENTIME_JWT_SECRET)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters")
		}
		if c.Security.PairingHash == "" {
			errs = append(errs, "security.pairing_hash is required when security.require_token is set")
		}
	}

	if c.Housekeeping.RetentionDays < 0 {
		errs = append(errs, "housekeeping.retention_days must not be negative")
	}

	if c.Timetable.TermWeeks <= 0 || c.Timetable.TermWeeks > maxTermWeeks {
		errs = append(errs, fmt.Sprintf("timetable.term_weeks must be between 1 and %d", maxTermWeeks))
	}
	if _, err := c.TimetableLocation(); err != nil {
		errs = append(errs, fmt.Sprintf("timetable.timezone: %v", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

// GetReadTimeout returns the receiver read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Receiver.ReadTimeout) * time.Second
}

// GetDefaultDuration returns the default override duration.
func (c *Config) GetDefaultDuration() time.Duration {
	return time.Duration(c.Override.DefaultDuration) * time.Minute
}

// GetMaxDuration returns the maximum override duration.
func (c *Config) GetMaxDuration() time.Duration {
	return time.Duration(c.Override.MaxDuration) * time.Minute
}

// GetTokenTTL returns the companion token lifetime.
func (c *Config) GetTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.TokenTTL) * time.Hour
}

// GetRetention returns how long override history is kept.
func (c *Config) GetRetention() time.Duration {
	return time.Duration(c.Housekeeping.RetentionDays) * 24 * time.Hour
}

// TimetableLocation resolves the timetable timezone.
func (c *Config) TimetableLocation() (*time.Location, error) {
	return c.Timetable.Location()
}

// Location resolves Timezone. "Local" and "" map to time.Local.
func (t TimetableConfig) Location() (*time.Location, error) {
	switch t.Timezone {
	case "", "Local":
		return time.Local, nil
	default:
		return time.LoadLocation(t.Timezone)
	}
}
