// Package server exposes the chat turn and file proxy endpoints over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/mohammad-safakhou/mascot/config"
	"github.com/mohammad-safakhou/mascot/internal/assistant"
	"github.com/mohammad-safakhou/mascot/internal/cache"
	"github.com/mohammad-safakhou/mascot/internal/curation"
	"github.com/mohammad-safakhou/mascot/internal/registry"
	"github.com/mohammad-safakhou/mascot/internal/turn"
)

type Server struct {
	cfg     *config.Config
	echo    *echo.Echo
	metrics *Metrics
	log     zerolog.Logger
	closeFn func() error
}

// Option adjusts construction, mostly for tests.
type Option func(*options)

type options struct {
	pollClock      turn.Clock
	store          cache.Store
	livenessClient *http.Client
}

// WithPollClock replaces the wall clock used by the deadline governor.
func WithPollClock(c turn.Clock) Option {
	return func(o *options) { o.pollClock = c }
}

// WithLivenessClient replaces the HTTP client used for link liveness checks.
func WithLivenessClient(client *http.Client) Option {
	return func(o *options) { o.livenessClient = client }
}

// WithStore replaces the cache backend chosen from configuration.
func WithStore(s cache.Store) Option {
	return func(o *options) { o.store = s }
}

// New wires every component from cfg. It connects to Redis when one is
// configured but does not contact the assistant service.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	closeFn := func() error { return nil }
	store := o.store
	if store == nil {
		var err error
		store, closeFn, err = cache.Open(ctx, cfg.Storage.Redis)
		if err != nil {
			return nil, err
		}
	}

	metrics := NewMetrics()
	client := assistant.NewClient(assistant.Config{
		APIKey:   cfg.Assistant.APIKey,
		BaseURL:  cfg.Assistant.BaseURL,
		Timeout:  cfg.Assistant.RequestTimeout,
		Observer: metrics,
	})
	poller := turn.NewPoller(client, turn.PollerConfig{
		Deadline:     cfg.Poll.Deadline,
		InitialDelay: cfg.Poll.InitialDelay,
		Multiplier:   cfg.Poll.Multiplier,
		MaxDelay:     cfg.Poll.MaxDelay,
		Clock:        o.pollClock,
	}, logger.With().Str("component", "poller").Logger())
	orch := turn.NewOrchestrator(client, cfg.Assistant.AssistantID, cfg.Assistant.FollowupInstructions,
		logger.With().Str("component", "turn").Logger())
	loader := registry.NewLoader(
		registry.NewSource(cfg.Registry, cfg.Assistant.RequestTimeout),
		store,
		registry.Options{TTL: cfg.Registry.TTL, StaleTTL: cfg.Registry.StaleTTL},
		logger.With().Str("component", "registry").Logger(),
	)

	mascot := &MascotHandler{
		assistantCfg: cfg.Assistant,
		orch:         orch,
		poller:       poller,
		registry:     loader,
		files:        client,
		curator:      curation.NewCurator(cfg.Sources.Max, cfg.Sources.PreferredIDs),
		metrics:      metrics,
		log:          logger.With().Str("component", "mascot").Logger(),
	}
	if cfg.Liveness.Enabled {
		livenessOpts := curation.LivenessOptionsFrom(cfg.Liveness)
		livenessOpts.Client = o.livenessClient
		mascot.liveness = curation.NewLivenessChecker(store, livenessOpts,
			logger.With().Str("component", "liveness").Logger())
	}
	files := &FileHandler{assistantCfg: cfg.Assistant, files: client}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.NewString() },
	}))
	e.Use(requestLogger(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowMethods: []string{http.MethodPost, http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType},
	}))
	e.Use(metrics.Middleware())

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if cfg.Telemetry.Enabled {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}
	mascot.Register(e)
	files.Register(e)
	if cfg.Server.StaticDir != "" {
		e.Static("/", cfg.Server.StaticDir)
	}

	return &Server{cfg: cfg, echo: e, metrics: metrics, log: logger, closeFn: closeFn}, nil
}

func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) Start(addr string) error {
	if addr == "" {
		addr = s.cfg.Server.Address
	}
	s.log.Info().Str("addr", addr).Msg("listening")
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	if cerr := s.closeFn(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Run serves until ctx is cancelled, then drains in-flight turns.
func Run(ctx context.Context, cfg *config.Config, addr string, logger zerolog.Logger) error {
	srv, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := cfg.Assistant.Validate(); err != nil {
		logger.Warn().Err(err).Msg("assistant not configured, turns will fail until it is")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(addr) }()

	select {
	case err := <-errCh:
		_ = srv.closeFn()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		// a turn may legitimately wait for the whole poll deadline
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Poll.Deadline+5*time.Second)
		defer cancel()
		logger.Info().Msg("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}
