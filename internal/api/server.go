package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/rsu-fleet-core/internal/audit"
	"github.com/nerrad567/rsu-fleet-core/internal/dispatch"
	"github.com/nerrad567/rsu-fleet-core/internal/infrastructure/config"
	"github.com/nerrad567/rsu-fleet-core/internal/infrastructure/logging"
	"github.com/nerrad567/rsu-fleet-core/internal/query"
	"github.com/nerrad567/rsu-fleet-core/internal/router"
	"github.com/nerrad567/rsu-fleet-core/internal/rsu"
	"github.com/nerrad567/rsu-fleet-core/internal/sweeper"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ConnectionChecker reports broker connectivity. *mqtt.Client satisfies it.
type ConnectionChecker interface {
	IsConnected() bool
}

// RouterStats exposes inbound message counters. *router.Router satisfies it.
type RouterStats interface {
	Stats() router.Stats
}

// SchedulerStats exposes periodic job counters. *sweeper.Scheduler satisfies it.
type SchedulerStats interface {
	Stats() []sweeper.JobStats
}

// Liveness reads and clears TTL entries. *liveness.Tracker satisfies it.
type Liveness interface {
	RSULastSeen(ctx context.Context, esn string) (time.Time, bool, error)
	ForgetRSU(ctx context.Context, esn string) error
	ForgetEdge(ctx context.Context, id int64) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	Logger     *logging.Logger
	Registry   *rsu.Registry
	Dispatcher *dispatch.Dispatcher
	Gatherer   *query.Gatherer

	// Optional. Without Audit, writes are not recorded and /audit is empty.
	// Without Liveness, devices carry no last_seen and deletes leave their
	// TTL entries to expire.
	Audit     audit.Repository
	Liveness  Liveness
	DB        *sql.DB
	MQTT      ConnectionChecker
	Router    RouterStats
	Scheduler SchedulerStats

	Version string
}

// Server is the operator HTTP API server.
//
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	logger     *logging.Logger
	registry   *rsu.Registry
	dispatcher *dispatch.Dispatcher
	gatherer   *query.Gatherer
	audit      audit.Repository
	liveness   Liveness
	db         *sql.DB
	mqtt       ConnectionChecker
	router     RouterStats
	scheduler  SchedulerStats
	version    string
	startTime  time.Time
	server     *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("rsu registry is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Gatherer == nil {
		return nil, fmt.Errorf("gatherer is required")
	}

	return &Server{
		cfg:        deps.Config,
		logger:     deps.Logger,
		registry:   deps.Registry,
		dispatcher: deps.Dispatcher,
		gatherer:   deps.Gatherer,
		audit:      deps.Audit,
		liveness:   deps.Liveness,
		db:         deps.DB,
		mqtt:       deps.MQTT,
		router:     deps.Router,
		scheduler:  deps.Scheduler,
		version:    deps.Version,
		startTime:  time.Now(),
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
