// screentimed is the on-device screen time agent.
//
// It holds the device's restriction set, accepts temporary override
// commands from companion apps on the local network (TCP, with UDP
// discovery), lifts restrictions for the requested duration and restores
// them automatically when the override ends. An HTTP API and WebSocket
// stream expose the same state to paired companions.
//
// Usage:
//
//	screentimed                  run the agent (config from SCREENTIME_CONFIG)
//	screentimed hash-passphrase  print an argon2id hash for security.pairing_hash
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/nerrad567/screentime-core/internal/api"
	"github.com/nerrad567/screentime-core/internal/auth"
	"github.com/nerrad567/screentime-core/internal/clock"
	"github.com/nerrad567/screentime-core/internal/housekeeping"
	"github.com/nerrad567/screentime-core/internal/infrastructure/config"
	"github.com/nerrad567/screentime-core/internal/infrastructure/database"
	"github.com/nerrad567/screentime-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/screentime-core/internal/infrastructure/logging"
	"github.com/nerrad567/screentime-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/screentime-core/internal/override"
	"github.com/nerrad567/screentime-core/internal/receiver"
	"github.com/nerrad567/screentime-core/internal/restriction"
	"github.com/nerrad567/screentime-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// statsInterval is how often receiver counters go to InfluxDB.
const statsInterval = time.Minute

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	if len(os.Args) > 1 && os.Args[1] == "hash-passphrase" {
		err = hashPassphrase(os.Args[2:], os.Stdin, os.Stdout)
	} else {
		err = run(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the agent's lifecycle, separated from main for testability.
//
// Parameters:
//   - ctx: Cancelled on shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting screentimed", "version", version, "commit", commit, "build_date", date)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version).With("device", cfg.Device.ID)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// MQTT (optional): notifications, event feed and remote commands.
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, cfg.Device.ID)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log.Component("mqtt"))
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected", "broker", net.JoinHostPort(cfg.MQTT.Broker.Host, strconv.Itoa(cfg.MQTT.Broker.Port)))
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional): override and receiver telemetry.
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	history := override.NewSQLiteHistory(db.DB)
	controller, err := startController(ctx, cfg, db, history, mqttClient, influxClient, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("stopping override controller")
		controller.Close() //nolint:errcheck // Always nil
	}()

	listener, responder, err := startReceiver(ctx, cfg, controller, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("stopping receiver")
		if closeErr := listener.Close(); closeErr != nil {
			log.Error("error closing command listener", "error", closeErr)
		}
		if closeErr := responder.Close(); closeErr != nil {
			log.Error("error closing discovery responder", "error", closeErr)
		}
	}()

	if mqttClient != nil && cfg.MQTT.AcceptCommands {
		topic := mqttClient.Topics().OverrideCommand()
		handler := receiver.NewMQTTCommandHandler(controller, log.Component("mqtt-commands"))
		if err := mqttClient.Subscribe(topic, byte(cfg.MQTT.QoS), handler); err != nil {
			return fmt.Errorf("subscribing to override commands: %w", err)
		}
		log.Info("accepting override commands over MQTT", "topic", topic)
	}

	if influxClient != nil {
		go reportReceiverStats(ctx, cfg.Device.ID, listener, responder, influxClient)
	}

	if cfg.API.Enabled {
		server, err := api.New(api.Deps{
			Config:     cfg.API,
			WS:         cfg.WebSocket,
			Security:   cfg.Security,
			Timetable:  cfg.Timetable,
			Logger:     log.Component("api"),
			Controller: controller,
			History:    history,
			Version:    version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if cfg.Housekeeping.RetentionDays > 0 {
		sched, err := housekeeping.NewScheduler(history, cfg.Housekeeping.PruneSchedule, cfg.GetRetention())
		if err != nil {
			return fmt.Errorf("configuring housekeeping: %w", err)
		}
		sched.SetLogger(log.Component("housekeeping"))
		if err := sched.Start(); err != nil {
			return fmt.Errorf("starting housekeeping: %w", err)
		}
		defer sched.Stop()
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred closes run in reverse: housekeeping, API, receiver,
	// controller, InfluxDB, MQTT, database.
	return nil
}

// startController builds the override controller, wires its notifiers
// and event listeners, and starts it. Start resumes or reverts an
// override left over from a previous run.
func startController(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	history override.HistoryRepository,
	mqttClient *mqtt.Client,
	influxClient *influxdb.Client,
	log *logging.Logger,
) (*override.Controller, error) {
	store := restriction.NewSQLiteStore(db.DB)
	ctlLog := log.Component("override")

	controller := override.NewController(store, clock.Real(), override.Options{
		DefaultDuration: cfg.GetDefaultDuration(),
		MaxDuration:     cfg.GetMaxDuration(),
		Notify:          cfg.Override.Notifications,
	})
	controller.SetLogger(ctlLog)

	notifiers := override.MultiNotifier{override.NewLogNotifier(ctlLog)}
	if mqttClient != nil {
		topics := mqttClient.Topics()
		notifiers = append(notifiers, override.NewMQTTNotifier(mqttClient, topics.Notification()))
		controller.Subscribe(override.EventPublisher(mqttClient, topics.OverrideEvent(), ctlLog))
	}
	controller.SetNotifier(notifiers)
	controller.Subscribe(override.RecordHistory(history, ctlLog))

	if influxClient != nil {
		deviceID := cfg.Device.ID
		controller.Subscribe(func(e override.Event) {
			if e.Type == override.EventRestrictionsUpdated {
				return
			}
			influxClient.WriteOverrideEvent(influxdb.OverridePoint{
				DeviceID:        deviceID,
				Event:           e.Type.Short(),
				Action:          string(e.EffectiveAction),
				Source:          string(e.Source),
				DurationMinutes: e.DurationMinutes,
				Time:            e.Timestamp,
			})
		})
	}

	if err := controller.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting override controller: %w", err)
	}
	st, err := controller.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading override status: %w", err)
	}
	log.Info("override controller started",
		"override_active", st.Active != nil,
		"blocked_apps", len(st.Restrictions.BlockedApps),
	)
	return controller, nil
}

// startReceiver starts the TCP command listener and the UDP discovery
// responder.
func startReceiver(ctx context.Context, cfg *config.Config, d receiver.Dispatcher, log *logging.Logger) (*receiver.Listener, *receiver.Responder, error) {
	recvLog := log.Component("receiver")

	listener := receiver.NewListener(receiver.ListenerConfig{
		Addr:           net.JoinHostPort(cfg.Receiver.Host, strconv.Itoa(cfg.Receiver.TCPPort)),
		MaxPayload:     cfg.Receiver.MaxPayload,
		ReadTimeout:    cfg.GetReadTimeout(),
		MaxConnections: cfg.Receiver.MaxConnections,
	}, d)
	listener.SetLogger(recvLog)
	if err := listener.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("starting command listener: %w", err)
	}

	info := receiver.CollectDeviceInfo(cfg.Device)
	responder, err := receiver.NewResponder(net.JoinHostPort(cfg.Receiver.Host, strconv.Itoa(cfg.Receiver.UDPPort)), info)
	if err != nil {
		listener.Close() //nolint:errcheck // Startup failure path
		return nil, nil, fmt.Errorf("creating discovery responder: %w", err)
	}
	responder.SetLogger(recvLog)
	if err := responder.Start(ctx); err != nil {
		listener.Close() //nolint:errcheck // Startup failure path
		return nil, nil, fmt.Errorf("starting discovery responder: %w", err)
	}
	log.Info("receiver started", "device_name", info.Name, "local_ip", info.LocalIP)
	return listener, responder, nil
}

// reportReceiverStats writes receiver counters to InfluxDB until ctx ends.
func reportReceiverStats(ctx context.Context, deviceID string, l *receiver.Listener, r *receiver.Responder, c *influxdb.Client) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s := l.Stats()
			c.WriteReceiverStats(influxdb.ReceiverPoint{
				DeviceID:  deviceID,
				Accepted:  s.Accepted,
				Rejected:  s.Rejected,
				Discovery: r.Replies(),
				Time:      now,
			})
		}
	}
}

// getConfigPath returns SCREENTIME_CONFIG if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("SCREENTIME_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// mqttClient and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// hashPassphrase prints the argon2id hash of the passphrase given as an
// argument, or of the first line of in when there is none.
func hashPassphrase(args []string, in io.Reader, out io.Writer) error {
	passphrase := strings.Join(args, " ")
	if passphrase == "" {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("reading passphrase: %w", err)
		}
		passphrase = strings.TrimRight(line, "\r\n")
	}
	if passphrase == "" {
		return errors.New("passphrase is empty")
	}

	hash, err := auth.HashPassphrase(passphrase)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}
