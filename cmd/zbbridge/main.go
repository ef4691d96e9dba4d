// zbbridge exposes Tasmota lights and Zigbee devices behind a Tasmota Zigbee
// bridge to a home-automation hub.
//
// It connects to the MQTT broker the devices publish on, keeps a reconciled
// view of every configured accessory, and serves that view over HTTP and
// WebSocket. Accepted value changes are also written to a SQLite audit
// trail, InfluxDB (optional) and Prometheus metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/accessory"
	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/api"
	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/history"
	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/infrastructure/config"
	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/infrastructure/database"
	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/infrastructure/influxdb"
	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/infrastructure/logging"
	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/infrastructure/metrics"
	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/infrastructure/mqtt"
	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/router"
	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/migrations"
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

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled.
// It is separated from main for testability.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting zbbridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	defer log.Close()
	log.Info("configuration loaded",
		"path", configPath,
		"accessories", len(cfg.Accessories),
		"level", cfg.Logging.Level,
	)

	collector := metrics.New()
	checks := make(map[string]api.HealthChecker)

	// Value history (optional)
	var recorder *history.Recorder
	var historyRepo history.Repository
	if cfg.Database.Enabled {
		db, openErr := database.Open(ctx, cfg.Database)
		if openErr != nil {
			return fmt.Errorf("opening database: %w", openErr)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database ready", "path", db.Path())

		repo := history.NewSQLiteRepository(db.DB)
		historyRepo = repo
		recorder = history.NewRecorder(repo,
			history.WithRetention(cfg.HistoryRetention()),
			history.WithLogger(log),
		)
		checks["database"] = db
	} else {
		log.Info("database disabled, value history off")
	}

	// Time-series export (optional)
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// Broker connection and router
	mqttClient := mqtt.New(cfg.MQTT, mqtt.WithLogger(log))
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetOnConnect(func() { collector.SetMQTTConnected(true) })
	mqttClient.SetOnDisconnect(func(error) { collector.SetMQTTConnected(false) })
	checks["mqtt"] = mqttClient

	rt := router.New(mqttClient, log,
		router.WithQueueSize(cfg.Bridge.QueueSize),
		router.WithMetrics(collector),
	)
	mqttClient.SetMessageHandler(rt.Deliver)

	// Accessories
	hub := api.NewHub(cfg.WebSocket, log)
	notifiers := accessory.Notifiers{hub, collector}
	if recorder != nil {
		notifiers = append(notifiers, recorder)
	}
	if influxClient != nil {
		notifiers = append(notifiers, influxClient)
	}

	registry, err := buildAccessories(cfg, rt,
		accessory.WithNotifier(notifiers),
		accessory.WithObserver(collector),
		accessory.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("building accessories: %w", err)
	}
	log.Info("accessories ready", "count", registry.Len(), "subscriptions", rt.SubscriptionCount())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.Run(gctx) })
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	if recorder != nil {
		g.Go(func() error { return recorder.Run(gctx) })
	}

	// Subscriptions made above are issued once the broker is reachable.
	if err := mqttClient.Start(gctx); err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}

	// HTTP API (optional)
	if cfg.API.Enabled {
		server, newErr := api.New(api.Deps{
			Config:         cfg.API,
			WS:             cfg.WebSocket,
			Metrics:        cfg.Metrics,
			Logger:         log,
			Accessories:    registry,
			History:        historyRepo,
			MetricsHandler: collector.Handler(),
			Checks:         checks,
			Hub:            hub,
			Version:        version,
		})
		if newErr != nil {
			return fmt.Errorf("creating API server: %w", newErr)
		}
		if startErr := server.Start(gctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-gctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if err := g.Wait(); err != nil {
		return fmt.Errorf("background task failed: %w", err)
	}

	// Deferred Close() calls run in reverse order:
	// API server, MQTT, InfluxDB (if enabled), database (if enabled).
	log.Info("zbbridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses ZBBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ZBBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
