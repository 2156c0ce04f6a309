/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/wavecast/internal/api"
	"github.com/friendsincode/wavecast/internal/broadcast"
	"github.com/friendsincode/wavecast/internal/config"
	"github.com/friendsincode/wavecast/internal/db"
	"github.com/friendsincode/wavecast/internal/device"
	"github.com/friendsincode/wavecast/internal/eventbus"
	"github.com/friendsincode/wavecast/internal/events"
	"github.com/friendsincode/wavecast/internal/history"
	"github.com/friendsincode/wavecast/internal/logbuffer"
	"github.com/friendsincode/wavecast/internal/media"
	"github.com/friendsincode/wavecast/internal/playback"
	"github.com/friendsincode/wavecast/internal/queue"
	"github.com/friendsincode/wavecast/internal/rotation"
	"github.com/friendsincode/wavecast/internal/telemetry"
)

// Server bundles the playback engine with its HTTP surfaces.
type Server struct {
	cfg    *config.Config
	logger zerolog.Logger
	nodeID string

	router        chi.Router
	httpServer    *http.Server
	metricsServer *http.Server
	listener      net.Listener
	closers       []func() error

	bus         eventbus.Bus
	state       *playback.State
	queue       *queue.Queue
	library     *media.Library
	broadcaster *broadcast.Broadcaster
	clock       *playback.Clock
	recorder    *history.Recorder
	db          *gorm.DB
	api         *api.API
	logBuffer   *logbuffer.Buffer

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies. Nothing listens or plays
// until Start.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		nodeID:    eventbus.NodeID(cfg.InstanceID),
		logBuffer: logBuf,
	}
	if err := srv.initDependencies(); err != nil {
		_ = srv.closeAll()
		return nil, err
	}
	srv.configureRoutes()

	srv.httpServer = &http.Server{
		Handler: srv.router,
		// Header deadline guards against slowloris; there is no body or write
		// deadline because /audio responses never end.
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       0,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}
	if cfg.MetricsBind != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler())
		srv.metricsServer = &http.Server{
			Addr:              cfg.MetricsBind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return srv, nil
}

func (s *Server) initDependencies() error {
	s.bus = newEventBus(s.cfg, s.nodeID, s.logger)
	s.DeferClose(s.bus.Close)

	library, err := media.NewLibrary(context.Background(), s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("media library: %w", err)
	}
	if err := library.CheckAccess(context.Background()); err != nil {
		s.logger.Warn().Err(err).Msg("media storage not reachable yet")
	}
	s.library = library

	s.state = playback.NewState()
	s.queue = queue.New()
	s.queue.OnChange(s.publishQueue)

	s.broadcaster = broadcast.New(s.state, broadcast.Options{
		Buffer:     s.cfg.SinkBuffer,
		MaxCatchUp: uint64(s.cfg.MaxCatchUpBytes),
	}, s.bus, s.logger)

	pacer, err := s.newPacer()
	if err != nil {
		return err
	}

	s.clock = playback.NewClock(s.state, s.queue, s.library, s.broadcaster, pacer, playback.Options{
		BlockSize: s.cfg.BlockSize,
		IdleDelay: s.cfg.IdleDelay,
	}, s.logger)
	s.clock.AddObserver(playback.NewEventNotifier(s.bus))

	if s.cfg.FallbackPlaylist != "" {
		rot, err := rotation.Load(s.cfg.FallbackPlaylist)
		if err != nil {
			return fmt.Errorf("fallback playlist: %w", err)
		}
		s.clock.SetFallback(rot)
		s.logger.Info().Str("path", s.cfg.FallbackPlaylist).Int("tracks", rot.Len()).Msg("fallback rotation enabled")
	}

	s.api = api.New(s.state, s.queue, s.library, s.broadcaster, s.bus, s.logBuffer, s.logger)

	if s.cfg.HistoryEnabled {
		database, err := db.Connect(s.cfg, s.logger)
		if err != nil {
			return fmt.Errorf("connect history database: %w", err)
		}
		s.db = database
		s.DeferClose(func() error { return db.Close(database) })
		if err := db.Migrate(database); err != nil {
			return fmt.Errorf("migrate history database: %w", err)
		}
		s.recorder = history.NewRecorder(database, s.nodeID, s.logger)
		s.clock.AddObserver(s.recorder)
		s.api.SetHistory(s.recorder)
	}

	return nil
}

func (s *Server) newPacer() (playback.Pacer, error) {
	if s.cfg.Pacer != config.PacerSpeaker {
		return playback.NewWallClock(), nil
	}
	spk, err := device.NewSpeaker(s.logger)
	if err != nil {
		return nil, fmt.Errorf("audio output: %w", err)
	}
	s.DeferClose(spk.Close)
	return spk, nil
}

func newEventBus(cfg *config.Config, nodeID string, logger zerolog.Logger) eventbus.Bus {
	switch cfg.EventBus {
	case config.EventBusRedis:
		rc := eventbus.DefaultRedisConfig()
		rc.Addr = cfg.RedisAddr
		rc.Password = cfg.RedisPassword
		rc.DB = cfg.RedisDB
		return eventbus.NewRedisBus(rc, nodeID, logger)
	case config.EventBusNATS:
		nc := eventbus.DefaultNATSConfig()
		nc.URL = cfg.NATSURL
		return eventbus.NewNATSBus(nc, nodeID, logger)
	default:
		return eventbus.NewMemory()
	}
}

func (s *Server) publishQueue() {
	n := s.queue.Len()
	telemetry.QueueLength.Set(float64(n))
	s.bus.Publish(events.EventQueueUpdated, events.Payload{"length": n})
}

// Start binds the listeners and launches the playback loop. A bind failure
// is returned before anything starts.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}
	s.listener = ln

	var metricsLn net.Listener
	if s.metricsServer != nil {
		metricsLn, err = net.Listen("tcp", s.metricsServer.Addr)
		if err != nil {
			ln.Close()
			return fmt.Errorf("listen on %s: %w", s.metricsServer.Addr, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.goBackground(ctx, "playback clock", s.clock.Run)
	if s.recorder != nil {
		s.goBackground(ctx, "history recorder", s.recorder.Run)
	}
	if s.db != nil {
		s.goBackground(ctx, "db metrics", s.sampleDBMetrics)
	}
	s.goBackground(ctx, "http server", func(context.Context) error {
		return s.httpServer.Serve(ln)
	})
	if metricsLn != nil {
		s.goBackground(ctx, "metrics server", func(context.Context) error {
			return s.metricsServer.Serve(metricsLn)
		})
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Str("node_id", s.nodeID).Msg("HTTP server listening")
	return nil
}

func (s *Server) goBackground(ctx context.Context, name string, run func(context.Context) error) {
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Str("worker", name).Msg("background worker exited")
		}
	}()
}

func (s *Server) sampleDBMetrics(ctx context.Context) error {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		db.UpdateConnectionMetrics(s.db)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Addr is the bound address of the public listener, valid after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests, ends every listener stream, stops the
// playback loop and releases resources. Each step is bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down")

	// Streaming responses only end once their sinks close.
	s.broadcaster.Close()

	var firstErr error
	if s.listener != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error().Err(err).Msg("graceful shutdown failed")
			firstErr = err
		}
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if s.bgCancel != nil {
		s.bgCancel()
		done := make(chan struct{})
		go func() {
			s.bgWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.logger.Warn().Msg("background workers did not stop in time")
		}
	}

	if err := s.closeAll(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// DeferClose registers a cleanup hook, run in reverse order on shutdown.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) closeAll() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// Router exposes the HTTP handler.
func (s *Server) Router() http.Handler {
	return s.router
}

// LogBuffer returns the in-memory log buffer served on /logs.
func (s *Server) LogBuffer() *logbuffer.Buffer {
	return s.logBuffer
}

func (s *Server) configureRoutes() {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)

	// Listener streams stay open indefinitely: no timeout, no request log,
	// no latency histogram. The broadcaster tracks them itself.
	router.Get("/audio", s.broadcaster.ServeHTTP)
	router.Get("/ws/audio", s.broadcaster.ServeWS)

	router.Group(func(r chi.Router) {
		r.Use(requestLogger(s.logger))
		r.Use(telemetry.TracingMiddleware)
		r.Use(telemetry.MetricsMiddleware)
		r.Use(timeoutExceptLongLived(60 * time.Second))
		if s.metricsServer == nil {
			r.Handle("/metrics", telemetry.Handler())
		}
		s.api.Routes(r)
	})

	s.router = router
}
