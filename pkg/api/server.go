// Package api exposes the IPC surface between the simulation host and the
// runtime: perception ingest (/observe, /tick), tool advertisement, server
// metrics, and (when enabled) the /debug inspection endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/justinternetai/arena-runtime/pkg/debug"
	"github.com/justinternetai/arena-runtime/pkg/runtime"
	"github.com/justinternetai/arena-runtime/pkg/trace"
)

// Server is the HTTP IPC server.
type Server struct {
	router  *gin.Engine
	http    *http.Server
	rt      *runtime.Runtime
	metrics *Metrics

	enableDebug bool
	tracker     *debug.Tracker // nil unless debug enabled
	debugStore  *debug.Store   // nil unless debug enabled
}

// ServerOptions configure a Server.
type ServerOptions struct {
	// EnableDebug registers the /debug endpoints and in-memory trackers.
	EnableDebug bool
	// DebugRingCapacity bounds the debug ring buffers (default 1000).
	DebugRingCapacity int
	// Traces bridges the debug store to on-disk episodes; may be nil.
	Traces *trace.Store
	// PrometheusRegistry receives the server collectors; nil registers on
	// the default registry.
	PrometheusRegistry *prometheus.Registry
}

// NewServer wires the HTTP surface around a runtime.
func NewServer(rt *runtime.Runtime, opts ServerOptions) *Server {
	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if opts.PrometheusRegistry != nil {
		reg = opts.PrometheusRegistry
		gatherer = opts.PrometheusRegistry
	}

	s := &Server{
		router:      gin.New(),
		rt:          rt,
		metrics:     NewMetrics(reg),
		enableDebug: opts.EnableDebug,
	}
	if opts.EnableDebug {
		s.tracker = debug.NewTracker(opts.DebugRingCapacity)
		s.debugStore = debug.NewStore(opts.Traces, opts.DebugRingCapacity)
		slog.Info("Debug mode enabled, /debug endpoints available")
	}

	s.router.Use(gin.Recovery())
	s.setupRoutes(gatherer)
	return s
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.router.GET("/", s.handleRoot)
	s.router.GET("/health", s.handleHealth)
	s.router.POST("/observe", s.handleObserve)
	s.router.POST("/tick", s.handleTick)
	s.router.POST("/tools/execute", s.handleToolExecute)
	s.router.GET("/tools/list", s.handleToolList)
	s.router.GET("/metrics", s.handleMetrics)
	s.router.GET("/metrics/prom", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	if s.enableDebug {
		s.router.GET("/debug", s.handleDebugViewer)
		s.router.GET("/debug/observations", s.handleDebugObservations)
		s.router.GET("/debug/changes", s.handleDebugChanges)
		s.router.POST("/debug/reset", s.handleDebugReset)
		s.router.GET("/debug/traces", s.handleDebugTraces)
		s.router.GET("/debug/agents", s.handleDebugAgents)
		s.router.GET("/debug/episodes", s.handleDebugEpisodes)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully. A bind
// failure is returned immediately.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("HTTP server stopped")
	return nil
}
