// RSU Fleet Core - roadside unit fleet management over MQTT
//
// This is the main entry point for the fleet core. One binary runs either
// as the cloud node that owns the authoritative registry, or as an edge
// node that manages a local fleet and reports it to an upstream cloud.
//
// Configuration is read from configs/config.yaml or the file named by
// RSUFLEET_CONFIG.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/rsu-fleet-core/migrations"

	"github.com/nerrad567/rsu-fleet-core/internal/api"
	"github.com/nerrad567/rsu-fleet-core/internal/audit"
	"github.com/nerrad567/rsu-fleet-core/internal/dispatch"
	"github.com/nerrad567/rsu-fleet-core/internal/fleet"
	"github.com/nerrad567/rsu-fleet-core/internal/infrastructure/config"
	"github.com/nerrad567/rsu-fleet-core/internal/infrastructure/database"
	"github.com/nerrad567/rsu-fleet-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/rsu-fleet-core/internal/infrastructure/logging"
	"github.com/nerrad567/rsu-fleet-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/rsu-fleet-core/internal/infrastructure/redis"
	"github.com/nerrad567/rsu-fleet-core/internal/liveness"
	"github.com/nerrad567/rsu-fleet-core/internal/query"
	"github.com/nerrad567/rsu-fleet-core/internal/router"
	"github.com/nerrad567/rsu-fleet-core/internal/rsu"
	"github.com/nerrad567/rsu-fleet-core/internal/sweeper"
	"github.com/nerrad567/rsu-fleet-core/internal/uplink"
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

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting RSU fleet core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version).With("node_id", cfg.Node.ID, "mode", cfg.Node.Mode)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
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
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to the fleet broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Liveness store: Redis when enabled, otherwise in-process
	var store liveness.Store
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to Redis: %w", err)
		}
		defer func() {
			log.Info("closing Redis connection")
			if closeErr := redisClient.Close(); closeErr != nil {
				log.Error("error closing Redis", "error", closeErr)
			}
		}()
		store = liveness.NewRedisStore(redisClient)
		log.Info("Redis connected", "host", cfg.Redis.Host, "port", cfg.Redis.Port)
	} else {
		store = liveness.NewMemoryStore(time.Now)
		log.Info("Redis disabled, using in-memory liveness store")
	}
	tracker := liveness.NewTracker(store,
		config.Seconds(cfg.Liveness.RSUTTL),
		config.Seconds(cfg.Liveness.EdgeTTL),
	)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Domain components
	registry := rsu.NewRegistry(rsu.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.Component("registry"))

	dispatcher := dispatch.NewDispatcher(dispatch.NewSQLiteRepository(db.DB), mqttClient)
	dispatcher.SetLogger(log.Component("dispatch"))

	gatherer := query.NewGatherer(query.NewSQLiteRepository(db.DB), mqttClient)
	gatherer.SetLogger(log.Component("query"))

	handlers := &fleet.Handlers{
		Registry:  registry,
		Liveness:  tracker,
		Acks:      dispatcher,
		Responses: gatherer,
		Publisher: mqttClient,
		Logger:    log.Component("fleet"),
	}
	if influxClient != nil {
		handlers.Metrics = influxClient
	}

	sched := sweeper.NewScheduler(cfg.Liveness.Workers)
	sched.SetLogger(log.Component("scheduler"))
	addSweepJobs(sched, cfg, registry, tracker, influxClient, mqttClient, log)

	// Edge mode: register with the upstream cloud and report the local fleet
	if cfg.IsEdge() {
		upstream, agent, upErr := startUplink(ctx, cfg, registry, log)
		if upErr != nil {
			return upErr
		}
		defer func() {
			log.Info("disconnecting from upstream")
			if closeErr := upstream.Close(); closeErr != nil {
				log.Error("error closing upstream MQTT", "error", closeErr)
			}
		}()
		handlers.Uplink = agent
		sched.Add(sweeper.Job{
			Name:     "edge-heartbeat",
			Interval: config.Seconds(cfg.Liveness.HeartbeatInterval),
			Run:      agent.Heartbeat,
		})
		sched.Add(sweeper.Job{
			Name:     "edge-sync",
			Interval: config.Seconds(cfg.Liveness.SyncInterval),
			Run:      agent.Sync,
		})
	}

	// Inbound routing
	msgRouter := router.New()
	msgRouter.SetLogger(log.Component("router"))
	if regErr := handlers.Register(msgRouter); regErr != nil {
		return regErr
	}
	if attachErr := msgRouter.Attach(ctx, mqttClient, byte(cfg.MQTT.QoS)); attachErr != nil {
		return fmt.Errorf("subscribing fleet topics: %w", attachErr)
	}
	log.Info("fleet routes subscribed", "patterns", len(msgRouter.Patterns()))

	// Operator API (optional)
	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:     cfg.API,
			Logger:     log.Component("api"),
			Registry:   registry,
			Dispatcher: dispatcher,
			Gatherer:   gatherer,
			Audit:      audit.NewSQLiteRepository(db.DB),
			Liveness:   tracker,
			DB:         db.DB,
			MQTT:       mqttClient,
			Router:     msgRouter,
			Scheduler:  sched,
			Version:    version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, redisClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if err := g.Wait(); err != nil {
		log.Error("scheduler stopped with error", "error", err)
	}

	// Deferred Close() calls run in reverse order:
	// API, upstream MQTT, InfluxDB, Redis, MQTT, database.
	log.Info("RSU fleet core stopped")
	return nil
}

// addSweepJobs schedules the liveness sweeps and this node's heartbeat.
func addSweepJobs(
	sched *sweeper.Scheduler,
	cfg *config.Config,
	registry *rsu.Registry,
	tracker *liveness.Tracker,
	influxClient *influxdb.Client,
	mqttClient *mqtt.Client,
	log *logging.Logger,
) {
	sw := sweeper.New(registry, tracker, cfg.Node.ID)
	sw.SetLogger(log.Component("sweeper"))
	if influxClient != nil {
		sw.SetMetrics(influxClient)
	}

	sched.Add(sweeper.Job{
		Name:     "rsu-sweep",
		Interval: config.Seconds(cfg.Liveness.SweepInterval),
		Run: func(ctx context.Context) error {
			_, err := sw.SweepRSUs(ctx)
			return err
		},
	})
	sched.Add(sweeper.Job{
		Name:     "edge-sweep",
		Interval: config.Seconds(cfg.Liveness.EdgeSweepInterval),
		Run: func(ctx context.Context) error {
			_, err := sw.SweepEdges(ctx)
			return err
		},
	})
	if cfg.Liveness.TmpMaxAge > 0 {
		maxAge := config.Seconds(cfg.Liveness.TmpMaxAge)
		sched.Add(sweeper.Job{
			Name:     "tmp-cleanup",
			Interval: maxAge,
			Run: func(ctx context.Context) error {
				_, err := sw.SweepTmps(ctx, maxAge)
				return err
			},
		})
	}

	hb := sweeper.NewHeartbeater(mqttClient, cfg.Node.ID, cfg.Node.Mode)
	sched.Add(sweeper.Job{
		Name:       "node-heartbeat",
		Interval:   config.Seconds(cfg.Liveness.HeartbeatInterval),
		RunAtStart: true,
		Run:        hb.Beat,
	})
}

// startUplink connects to the upstream broker and starts the edge agent.
func startUplink(ctx context.Context, cfg *config.Config, registry *rsu.Registry, log *logging.Logger) (*mqtt.Client, *uplink.Agent, error) {
	upstream, err := mqtt.Connect(cfg.Upstream)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to upstream MQTT: %w", err)
	}
	upstream.SetLogger(log.Component("upstream"))
	log.Info("upstream MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Upstream.Broker.Host, cfg.Upstream.Broker.Port),
	)

	agent := uplink.NewAgent(uplink.Identity{
		Name:     cfg.Node.Name,
		IP:       cfg.Node.IP,
		AreaCode: cfg.Node.AreaCode,
	}, upstream, registry, byte(cfg.Upstream.QoS))
	agent.SetLogger(log.Component("uplink"))

	if err := agent.Start(ctx); err != nil {
		upstream.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, nil, fmt.Errorf("starting uplink agent: %w", err)
	}
	return upstream, agent, nil
}

// getConfigPath returns the configuration file path.
// Uses RSUFLEET_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("RSUFLEET_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// Optional clients may be nil.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, redisClient *redis.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if redisClient != nil {
		if err := redisClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
