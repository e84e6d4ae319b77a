// Package server provides the HTTP server implementation.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vyrodovalexey/homelab-api/internal/config"
	"github.com/vyrodovalexey/homelab-api/internal/handler"
	"github.com/vyrodovalexey/homelab-api/internal/middleware"
)

// Server runs the API listener and, when a probe port is configured, a
// separate listener for health, readiness and metrics.
type Server struct {
	httpServer  *http.Server
	probeServer *http.Server
	router      *mux.Router
	probeRouter *mux.Router
	handler     http.Handler
	config      *config.Config
	logger      *zap.Logger
	wsHandler   *handler.WebSocketHandler
	initErr     error
}

// New creates a new Server instance. ws may be nil, in which case the /ws
// feed is not served. Initialization errors are reported by Start.
func New(cfg *config.Config, logger *zap.Logger, svc handler.ItemService, ws *handler.WebSocketHandler) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		probeRouter: mux.NewRouter(),
		config:      cfg,
		logger:      logger,
		wsHandler:   ws,
	}

	s.setupMiddleware()
	s.setupRoutes(svc)
	s.setupProbeRoutes(svc)
	s.setupHandler()
	s.setupHTTPServer()
	s.setupProbeServer()

	return s
}

// setupMiddleware configures the per-route middleware chain.
func (s *Server) setupMiddleware() {
	// Apply middleware in order (first applied = outermost)
	s.router.Use(mux.MiddlewareFunc(middleware.Recovery(s.logger)))
	s.router.Use(mux.MiddlewareFunc(middleware.RequestID()))

	if s.config.MetricsEnabled {
		s.router.Use(mux.MiddlewareFunc(middleware.Metrics()))
	}

	s.router.Use(mux.MiddlewareFunc(middleware.Logging(s.logger)))

	s.probeRouter.Use(mux.MiddlewareFunc(middleware.Recovery(s.logger)))
	s.probeRouter.Use(mux.MiddlewareFunc(middleware.Logging(s.logger)))
}

// setupRoutes configures the API routes.
func (s *Server) setupRoutes(svc handler.ItemService) {
	restHandler := handler.NewRESTHandler(svc, s.logger, s.config.ProjectName)
	restHandler.RegisterRoutes(s.router)

	if s.wsHandler != nil {
		s.wsHandler.RegisterRoutes(s.router)
	}

	// Without a probe listener the API port serves readiness and metrics.
	if s.config.ProbePort == 0 {
		s.router.HandleFunc("/ready", restHandler.ReadyCheck).Methods(http.MethodGet)
		if s.config.MetricsEnabled {
			s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
		}
	}
}

// setupProbeRoutes configures liveness, readiness and metrics on the probe
// router.
func (s *Server) setupProbeRoutes(svc handler.ItemService) {
	restHandler := handler.NewRESTHandler(svc, s.logger, s.config.ProjectName)
	restHandler.RegisterProbeRoutes(s.probeRouter)

	if s.config.MetricsEnabled {
		s.probeRouter.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
}

// setupHandler wraps the router with handlers that must see every request,
// including ones no route matches, such as CORS preflights.
func (s *Server) setupHandler() {
	var outer []middleware.Middleware

	outer = append(outer, middleware.CORS(s.config.CORSAllowedOrigins))

	if s.config.CompressionEnabled {
		compress, err := middleware.Compress()
		if err != nil {
			s.initErr = err
		} else {
			outer = append(outer, compress)
		}
	}

	s.handler = middleware.Chain(outer...)(s.router)
}

// setupHTTPServer configures the HTTP server.
func (s *Server) setupHTTPServer() {
	s.httpServer = &http.Server{
		Addr:              s.config.Address(),
		Handler:           s.handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	if !s.config.TLSEnabled {
		return
	}

	tlsConfig, err := s.buildTLSConfig()
	if err != nil {
		s.logger.Error("failed to build TLS config", zap.Error(err))
		s.initErr = errors.Join(s.initErr, err)
		return
	}
	s.httpServer.TLSConfig = tlsConfig
}

// setupProbeServer configures the probe server. It is left nil when the
// probe port is 0.
func (s *Server) setupProbeServer() {
	if s.config.ProbePort == 0 {
		return
	}

	s.probeServer = &http.Server{
		Addr:              s.config.ProbeAddress(),
		Handler:           s.probeRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}
}

// buildTLSConfig loads the server certificate.
func (s *Server) buildTLSConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(s.config.TLSCertPath, s.config.TLSKeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading TLS key pair: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Start serves until Shutdown is called or a listener fails. A failing
// listener closes the others.
func (s *Server) Start() error {
	if s.initErr != nil {
		return fmt.Errorf("server initialization: %w", s.initErr)
	}

	s.logger.Info("starting server",
		zap.String("address", s.config.Address()),
		zap.Bool("tls_enabled", s.config.TLSEnabled),
		zap.Bool("metrics_enabled", s.config.MetricsEnabled),
		zap.Bool("compression_enabled", s.config.CompressionEnabled),
	)

	var g errgroup.Group

	g.Go(func() error {
		return s.serve(s.httpServer, "server", s.listenAndServe)
	})

	if s.probeServer != nil {
		s.logger.Info("starting probe server", zap.String("address", s.config.ProbeAddress()))
		g.Go(func() error {
			return s.serve(s.probeServer, "probe server", s.probeServer.ListenAndServe)
		})
	}

	return g.Wait()
}

// listenAndServe starts the API listener, with TLS when configured.
func (s *Server) listenAndServe() error {
	if s.httpServer.TLSConfig != nil {
		return s.httpServer.ListenAndServeTLS("", "")
	}
	return s.httpServer.ListenAndServe()
}

// serve runs fn and treats http.ErrServerClosed as a clean exit.
func (s *Server) serve(srv *http.Server, name string, fn func() error) error {
	err := fn()
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	s.logger.Error("listener failed", zap.String("server", name), zap.String("address", srv.Addr), zap.Error(err))
	s.closeAll()
	return fmt.Errorf("%s listen and serve: %w", name, err)
}

// closeAll closes every listener immediately.
func (s *Server) closeAll() {
	if s.wsHandler != nil {
		s.wsHandler.CloseAllConnections()
	}
	_ = s.httpServer.Close()
	if s.probeServer != nil {
		_ = s.probeServer.Close()
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	// Close all WebSocket connections first
	if s.wsHandler != nil {
		s.wsHandler.CloseAllConnections()
	}

	var errs []error

	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}

	if s.probeServer != nil {
		if err := s.probeServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("probe server shutdown: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Router returns the server's router for testing purposes.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ProbeRouter returns the probe router for testing purposes.
func (s *Server) ProbeRouter() *mux.Router {
	return s.probeRouter
}

// Handler returns the full API handler, including CORS and compression.
func (s *Server) Handler() http.Handler {
	return s.handler
}
