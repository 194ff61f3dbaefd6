package main

import (
	"context"
	"fmt"
	"time"

	"github.com/houseflow/lighthouse/internal/api"
	"github.com/houseflow/lighthouse/internal/auth"
	"github.com/houseflow/lighthouse/internal/bridge"
	"github.com/houseflow/lighthouse/internal/device"
	"github.com/houseflow/lighthouse/internal/fulfillment"
	"github.com/houseflow/lighthouse/internal/infrastructure/config"
	"github.com/houseflow/lighthouse/internal/infrastructure/database"
	"github.com/houseflow/lighthouse/internal/infrastructure/influxdb"
	"github.com/houseflow/lighthouse/internal/infrastructure/logging"
	"github.com/houseflow/lighthouse/internal/infrastructure/mqtt"
	"github.com/houseflow/lighthouse/internal/tunnel"
	_ "github.com/houseflow/lighthouse/migrations"
)

const (
	// tokenPruneInterval is how often expired refresh tokens are deleted.
	tokenPruneInterval = time.Hour

	// shutdownTimeout bounds closing all device sessions.
	shutdownTimeout = 10 * time.Second
)

// run is the hub's serve loop, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting lighthouse",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database ready", "path", cfg.Database.Path)

	issuer := auth.NewTokenIssuer(
		cfg.Security.JWT.AccessSecret,
		cfg.Security.JWT.RefreshSecret,
		cfg.GetAccessTokenTTL(),
		cfg.GetRefreshTokenTTL(),
	)
	authService := auth.NewService(auth.NewUserRepository(db.DB), auth.NewTokenStore(db.DB), issuer)
	go pruneTokensLoop(ctx, authService, log.Component("auth"))

	devices := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	devices.SetLogger(log.Component("device"))

	hub := tunnel.New(tunnel.Options{
		RequestTimeout: cfg.GetRequestTimeout(),
		MaxPending:     cfg.Tunnel.MaxPending,
		Logger:         log.Component("tunnel"),
	})

	checks := map[string]api.HealthChecker{"database": db}
	clients := map[string]api.ConnectionStatus{}

	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := startMQTT(ctx, cfg, hub, log)
		if mqttErr != nil {
			return mqttErr
		}
		defer mqttClient.shutdown()
		checks["mqtt"] = mqttClient.client
		clients["mqtt"] = mqttClient.client
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := startInfluxDB(ctx, cfg, hub, log)
		if influxErr != nil {
			return influxErr
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		checks["influxdb"] = influxClient
		clients["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	// Registered after the bridges so sessions close, and their offline
	// events are published, before the bridges stop.
	defer func() {
		log.Info("closing device sessions", "sessions", hub.Registry().Count())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := hub.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Warn("device sessions did not close in time", "error", shutdownErr)
		}
	}()

	server, err := api.New(api.Deps{
		Config:     cfg.API,
		Tunnel:     cfg.Tunnel,
		Logger:     log.Component("api"),
		Auth:       authService,
		Devices:    devices,
		DeviceAuth: device.NewAuthenticator(devices),
		Hub:        hub,
		Fulfillment: fulfillment.NewService(devices, hub, fulfillment.Options{
			Logger: log.Component("fulfillment"),
		}),
		Checks:  checks,
		Clients: clients,
		DB:      db,
		Version: version,
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

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal",
		"hub_id", cfg.Hub.ID,
		"tunnel_path", cfg.Tunnel.Path,
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// mqttStack is the MQTT client with the bridges running on it.
type mqttStack struct {
	client       *mqtt.Client
	commands     *bridge.CommandBridge
	presence     *bridge.PresencePublisher
	stopPresence context.CancelFunc
	log          *logging.Logger
}

func startMQTT(ctx context.Context, cfg *config.Config, hub *tunnel.Tunnel, log *logging.Logger) (*mqttStack, error) {
	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttLog := log.Component("mqtt")
	client.SetLogger(mqttLog)
	client.SetOnConnect(func() {
		mqttLog.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		mqttLog.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	bridgeLog := log.Component("bridge")

	// Presence outlives ctx so offline events from the final session
	// shutdown are still published.
	presenceCtx, stopPresence := context.WithCancel(context.WithoutCancel(ctx))
	presence := bridge.NewPresencePublisher(client, client.Topics(), client.QoS(), bridgeLog)
	presence.Start(presenceCtx)
	hub.Registry().AddListener(presence)

	commands := bridge.NewCommandBridge(client, client, hub, bridge.CommandBridgeOptions{
		Topics: client.Topics(),
		QoS:    client.QoS(),
		Logger: bridgeLog,
	})
	if err := commands.Start(ctx); err != nil {
		stopPresence()
		presence.Wait()
		client.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("starting MQTT command bridge: %w", err)
	}

	return &mqttStack{
		client:       client,
		commands:     commands,
		presence:     presence,
		stopPresence: stopPresence,
		log:          log,
	}, nil
}

func (m *mqttStack) shutdown() {
	if err := m.commands.Stop(); err != nil {
		m.log.Warn("error stopping MQTT command bridge", "error", err)
	}
	m.stopPresence()
	m.presence.Wait()

	m.log.Info("disconnecting from MQTT")
	if err := m.client.Close(); err != nil {
		m.log.Error("error closing MQTT", "error", err)
	}
}

func startInfluxDB(ctx context.Context, cfg *config.Config, hub *tunnel.Tunnel, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(cfg.InfluxDB)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)

	telemetry := bridge.NewTelemetry(client)
	hub.Registry().AddListener(telemetry)
	hub.AddObserver(telemetry)

	interval := time.Duration(cfg.InfluxDB.FlushInterval) * time.Second
	go sessionCountLoop(ctx, client, hub, cfg.Hub.ID, interval)

	return client, nil
}

// sessionCountLoop records the number of connected devices every interval.
func sessionCountLoop(ctx context.Context, client *influxdb.Client, hub *tunnel.Tunnel, hubID string, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			client.WriteSessionCount(hubID, hub.Registry().Count())
		}
	}
}

// pruneTokensLoop deletes expired refresh tokens every tokenPruneInterval.
func pruneTokensLoop(ctx context.Context, svc *auth.Service, log *logging.Logger) {
	ticker := time.NewTicker(tokenPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.PruneExpired(ctx)
			if err != nil {
				log.Warn("pruning expired refresh tokens", "error", err)
				continue
			}
			if n > 0 {
				log.Debug("pruned expired refresh tokens", "count", n)
			}
		}
	}
}

func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, c := range checks {
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
