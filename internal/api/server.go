package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	"github.com/orrn/printpipe/internal/api/handlers"
	"github.com/orrn/printpipe/internal/api/middleware"
	"github.com/orrn/printpipe/internal/config"
	"github.com/orrn/printpipe/internal/core"
	"github.com/orrn/printpipe/internal/db"
	"github.com/orrn/printpipe/internal/journal"
	"github.com/orrn/printpipe/internal/printer"
	"github.com/orrn/printpipe/internal/registry"
	"github.com/orrn/printpipe/internal/webhook"
)

const shutdownTimeout = 10 * time.Second

var endpoints = []string{
	"POST /api/jobs - Create a new print job",
	"POST /api/jobs/:id/submit - Submit a job for printing",
	"POST /api/jobs/:id/cancel - Cancel a job",
	"GET /api/jobs/:id - Get job status",
	"GET /api/jobs/:id/output - Get job output file",
	"GET /api/jobs - List all jobs",
	"GET /api/events - Live job events",
	"GET /api/events/history - Journaled job events",
	"GET /api/stats - Job and queue counters",
	"GET /api/printer/status - Network printer status",
	"GET /api/settings/server - Running configuration",
}

// Server ties the job pipeline to its HTTP surface.
type Server struct {
	cfg       *config.Config
	logger    hclog.Logger
	bus       *core.EventBus
	registry  *registry.Registry
	scheduler *core.Scheduler
	backend   core.Backend
	printer   *printer.NetworkBackend
	database  *sql.DB
	journal   *journal.Journal
	webhooks  *webhook.Sender
	engine    *gin.Engine
	http      *http.Server
}

func NewServer(cfg *config.Config, logger hclog.Logger) (*Server, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	bus := core.NewEventBus()

	reg, err := registry.New(bus, cfg.Output.Dir)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		bus:      bus,
		registry: reg,
	}

	switch cfg.Output.Backend {
	case "network":
		renderer := printer.Renderer(printer.RawRenderer{})
		if cfg.Output.Format == "tspl" {
			renderer = printer.NewTSPLRenderer(printer.Label{
				WidthMM:  cfg.Output.Label.WidthMM,
				HeightMM: cfg.Output.Label.HeightMM,
				GapMM:    cfg.Output.Label.GapMM,
				DPI:      cfg.Output.Label.DPI,
			})
		}
		s.printer = printer.NewNetworkBackend(printer.Config{
			Addr:        cfg.Output.PrinterAddr,
			Timeout:     cfg.Output.DialTimeout,
			CheckStatus: true,
			Renderer:    renderer,
		}, logger.Named("printer"))
		s.backend = s.printer
	default:
		s.backend = core.NewFileBackend(cfg.Output.Dir, logger.Named("backend"))
	}

	s.scheduler = core.NewScheduler(
		core.WithSpooler(core.NewTextSpooler()),
		core.WithBackend(s.backend),
		core.WithLogger(logger.Named("scheduler")),
	)

	var (
		store   journal.Store
		history handlers.EventHistory
	)
	if cfg.Journal.Enabled {
		database, err := db.Open(db.Config{Path: cfg.Journal.Path})
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		ops := db.NewEventOperations(database)

		s.database = database
		store = ops
		history = ops
	}

	if len(cfg.Webhooks.Endpoints) > 0 {
		eps := make([]webhook.Endpoint, 0, len(cfg.Webhooks.Endpoints))
		for _, ep := range cfg.Webhooks.Endpoints {
			eps = append(eps, webhook.Endpoint{URL: ep.URL, Secret: ep.Secret, Events: ep.Events})
		}
		s.webhooks = webhook.NewSender(webhook.Config{
			Endpoints:  eps,
			RetryCount: cfg.Webhooks.RetryCount,
			RetryDelay: cfg.Webhooks.RetryDelay,
			Timeout:    cfg.Webhooks.Timeout,
			Workers:    cfg.Webhooks.Workers,
			QueueSize:  cfg.Webhooks.QueueSize,
		}, logger.Named("webhook"))
	}

	if store != nil || s.webhooks != nil {
		s.journal = journal.NewJournal(store, bus, journal.Config{
			FlushInterval: cfg.Journal.FlushInterval,
			Retention:     cfg.Journal.Retention,
		}, logger.Named("journal"))
		if s.webhooks != nil {
			s.journal.AddSink(s.webhooks)
		}
	}

	s.engine = s.routes(history)
	s.http = &http.Server{
		Addr:         net.JoinHostPort("", strconv.Itoa(cfg.Server.Port)),
		Handler:      s.engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s, nil
}

func (s *Server) routes(history handlers.EventHistory) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(s.logger.Named("api")))

	auth := middleware.NewAuthMiddleware(middleware.AuthConfig{
		Enabled:      s.cfg.Auth.Enabled,
		PasswordHash: s.cfg.Auth.PasswordHash,
		Secret:       s.cfg.Auth.Secret,
		TokenTTL:     s.cfg.Auth.TokenTTL,
	})

	var counter handlers.EventCounter
	if s.database != nil {
		counter = db.NewEventOperations(s.database)
	}
	handlers.RegisterDashboardRoutes(engine, handlers.NewDashboardHandler(s.registry, s.scheduler, counter, endpoints))

	api := engine.Group("/api")
	api.POST("/auth/login", auth.LoginHandler)
	api.POST("/auth/logout", auth.LogoutHandler)
	api.GET("/auth/status", auth.StatusHandler)

	handlers.RegisterJobRoutes(api,
		handlers.NewJobHandler(s.registry, s.scheduler, s.logger.Named("jobs")),
		auth.RequireAuth(),
		middleware.RateLimit(s.cfg.Server.SubmitRate, s.cfg.Server.SubmitBurst),
	)
	handlers.RegisterEventRoutes(api, handlers.NewEventHandler(s.bus, history, s.logger.Named("events")))

	protected := api.Group("", auth.RequireAuth())
	handlers.RegisterSettingsRoutes(protected, handlers.NewSettingsHandler(s.cfg))

	var status handlers.StatusChecker
	if s.printer != nil {
		status = s.printer
	}
	handlers.RegisterPrinterRoutes(protected, handlers.NewPrinterHandler(status))

	return engine
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Registry() *registry.Registry {
	return s.registry
}

func (s *Server) Scheduler() *core.Scheduler {
	return s.scheduler
}

func (s *Server) Bus() *core.EventBus {
	return s.bus
}

// Start launches the scheduler worker, the webhook workers and the journal
// flusher.
func (s *Server) Start() {
	s.scheduler.Start()
	if s.webhooks != nil {
		s.webhooks.Start()
	}
	if s.journal != nil {
		s.journal.Start()
	}
}

// WatchPrinter polls the network printer until ctx is done. It returns at
// once when jobs go to files.
func (s *Server) WatchPrinter(ctx context.Context) error {
	if s.printer == nil {
		return nil
	}
	return s.printer.Watch(ctx, s.cfg.Output.HealthInterval)
}

// Run serves HTTP until ctx is done, then shuts everything down.
func (s *Server) Run(ctx context.Context) error {
	s.Start()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.http.Addr, "backend", s.cfg.Output.Backend)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

// Shutdown stops accepting requests, stops the scheduler, flushes the journal
// and delivers pending webhooks. Jobs still waiting in the queue are dropped.
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error
	if err := s.http.Shutdown(ctx); err != nil {
		firstErr = fmt.Errorf("failed to shut down http server: %w", err)
	}

	s.scheduler.Stop()

	if s.journal != nil {
		s.journal.Stop()
	}
	if s.webhooks != nil {
		s.webhooks.Stop()
	}
	if s.database != nil {
		if err := s.database.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close journal database: %w", err)
		}
	}

	s.logger.Info("server stopped")
	return firstErr
}
