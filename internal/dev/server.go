package dev

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/devserve/internal/config"
	"github.com/vango-dev/devserve/internal/errors"
	"github.com/vango-dev/devserve/internal/mount"
	"github.com/vango-dev/devserve/internal/static"
	"github.com/vango-dev/devserve/pkg/middleware"
)

// ServerOptions configures the development server.
type ServerOptions struct {
	// Config is the resolved configuration.
	Config *config.Config

	// Logger is the base logger. Defaults to slog.Default().
	Logger *slog.Logger

	// Registry receives the Prometheus collectors. Defaults to a new registry.
	Registry *prometheus.Registry

	// OnReload is called after each reload broadcast with the number of
	// browsers reached.
	OnReload func(clients int)

	// TracerProvider receives request spans. Defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// Server is the development server.
type Server struct {
	config      *config.Config
	options     ServerOptions
	table       *mount.Table
	responder   *static.Responder
	watcher     *Watcher
	broadcaster *Broadcaster
	metrics     *middleware.Metrics
	registry    *prometheus.Registry
	handler     http.Handler
	logger      *slog.Logger

	mu         sync.Mutex
	listener   net.Listener
	httpServer *http.Server
	running    bool
}

// NewServer creates a new development server. The route table is built
// here and never changes afterwards.
func NewServer(options ServerOptions) *Server {
	cfg := options.Config
	if cfg == nil {
		cfg = config.New()
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := options.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	metrics := middleware.NewMetrics(middleware.WithRegistry(registry))

	s := &Server{
		config:   cfg,
		options:  options,
		table:    cfg.Table(),
		metrics:  metrics,
		registry: registry,
		logger:   logger.With("component", "server"),
	}

	if cfg.Watch {
		s.watcher = NewWatcher(WatcherConfig{
			Root:     cfg.Root,
			Ignore:   cfg.Ignore,
			Debounce: cfg.Debounce,
			Logger:   logger,
		})
		s.broadcaster = NewBroadcaster(logger, metrics)
		s.responder = static.NewResponder(injectClient)
	} else {
		s.responder = static.NewResponder(nil)
	}

	s.handler = s.routes()
	return s
}

// routes builds the HTTP handler. Every response, the reload socket and
// metrics included, passes through the header policy.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(static.Headers(s.config.Watch))
	r.Use(s.metrics.Handler)
	r.Use(middleware.Tracing(middleware.WithTracerProvider(s.options.TracerProvider)))

	if s.reloadEnabled() {
		r.Get(ReloadPath, s.broadcaster.HandleWebSocket)
	}
	r.Method(http.MethodGet, MetricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Handle("/*", http.HandlerFunc(s.serveStatic))

	return r
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Table returns the route table.
func (s *Server) Table() *mount.Table {
	return s.table
}

// Broadcaster returns the reload broadcaster, or nil when not watching.
func (s *Server) Broadcaster() *Broadcaster {
	return s.broadcaster
}

// Listen binds the configured port on all interfaces. A bind failure is an
// E110 error. Start calls Listen if it has not been called.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return errors.New("E110").WithDetailf("listen tcp %s", s.config.Address()).Wrap(err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start opens the watch session, binds the port and serves until ctx is
// done or a fatal error occurs. Cancellation is a clean shutdown and
// returns nil.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	if s.reloadEnabled() {
		if err := s.watcher.Open(); err != nil {
			s.Stop()
			return err
		}
	}

	if err := s.Listen(); err != nil {
		s.Stop()
		return err
	}

	errCh := make(chan error, 2)

	if s.reloadEnabled() {
		go func() {
			if err := s.watcher.Run(ctx); err != nil {
				errCh <- err
			}
		}()
		go s.processChanges(ctx)
	}

	s.mu.Lock()
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv, ln := s.httpServer, s.listener
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- errors.New("E110").Wrap(err)
		}
	}()

	s.logger.Info("serving", "addr", ln.Addr().String(), "mounts", len(s.table.Mounts()), "watch", s.reloadEnabled())

	select {
	case <-ctx.Done():
		s.Stop()
		return nil
	case err := <-errCh:
		s.Stop()
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
}

// Stop stops the development server. Reload sessions are closed first so
// the HTTP shutdown does not wait on them.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false

	if s.broadcaster != nil {
		s.broadcaster.Close()
	}

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Debug("shutdown", "error", err)
		}
	} else if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.logger.Debug("close listener", "error", err)
		}
	}
	s.listener = nil

	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			s.logger.Debug("close watcher", "error", err)
		}
	}
}

// processChanges turns each debounced batch into one reload broadcast.
func (s *Server) processChanges(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-s.watcher.Changes():
			s.metrics.ObserveWatchBatch(batch.Events)
			clients := s.broadcaster.NotifyReload()
			s.logger.Info("reloaded browsers", "sessions", clients, "changes", len(batch.Paths))
			if s.options.OnReload != nil {
				s.options.OnReload(clients)
			}
		}
	}
}

// serveStatic resolves the request against the route table and hands it to
// the responder.
func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) {
	m, rem, ok := s.table.Resolve(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("devserve.mount", m.Prefix),
		attribute.String("devserve.mount_kind", m.Kind.String()),
	)

	err := s.responder.Serve(w, r, m, rem)
	switch {
	case err == nil:
		s.metrics.ObserveMount(m.Prefix, middleware.ResultOK)
	case errors.HasCode(err, "E130"):
		s.metrics.ObserveMount(m.Prefix, middleware.ResultNotFound)
		s.logger.Debug("not found", "path", r.URL.Path, "mount", m.Prefix)
	default:
		s.logger.Warn("serve failed", "path", r.URL.Path, "mount", m.Prefix, "error", err)
	}
}

func (s *Server) reloadEnabled() bool {
	return s.config.Watch && s.broadcaster != nil
}
