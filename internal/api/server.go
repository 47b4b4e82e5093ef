// Package api serves the monitor over HTTP: JSON routes under /api, a
// websocket event stream, and Prometheus metrics at /metrics.
package api

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/fleetmon/fleetmon/internal/config"
	"github.com/fleetmon/fleetmon/internal/errors"
	"github.com/fleetmon/fleetmon/internal/logger"
	"github.com/fleetmon/fleetmon/internal/monitor"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Options configure a Server.
type Options struct {
	Version string
	// ConfigPath is reported by /api/config-info.
	ConfigPath string
}

// Server is the HTTP front end of one Monitor.
type Server struct {
	mon     *monitor.Monitor
	cfg     *config.Config
	opts    Options
	log     logger.Logger
	limiter *RateLimiter
	engine  *gin.Engine
	started time.Time
}

// New builds the router. It does not start listening.
func New(mon *monitor.Monitor, cfg *config.Config, opts Options, log logger.Logger) *Server {
	if log == nil {
		log = logger.Noop()
	}
	s := &Server{
		mon:     mon,
		cfg:     cfg,
		opts:    opts,
		log:     log,
		limiter: NewRateLimiter(rate.Limit(cfg.Server.ConnectRateLimit), cfg.Server.ConnectBurst),
		started: time.Now(),
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.log))

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.mon.Telemetry().Registry(), promhttp.HandlerOpts{})))

	api := r.Group("/api")
	{
		api.GET("/health", s.health)
		api.GET("/config-info", s.configInfo)
		api.GET("/connection-stats", s.connectionStats)
		api.GET("/connection-pool", s.connectionPool)
		api.GET("/jobs", s.listJobs)
		api.DELETE("/jobs", s.clearJobs)
		api.GET("/events", s.events)

		servers := api.Group("/servers")
		servers.GET("", s.listServers)
		servers.GET("/:id", s.getServer)
		servers.GET("/:id/status", s.serverStatus)
		servers.GET("/:id/details/:metric", s.serverDetails)
		servers.GET("/:id/history", s.serverHistory)
		servers.POST("/:id/connect", s.limiter.Middleware(), s.connect)
		servers.DELETE("/:id/secret-request", s.cancelSecret)
		servers.POST("/:id/start-monitoring", s.startMonitoring)
		servers.POST("/:id/stop-monitoring", s.stopMonitoring)
	}

	r.NoRoute(func(c *gin.Context) {
		writeError(c, errors.New(errors.ErrNotFound, "No such endpoint: "+c.Request.URL.Path, "See /api/health"))
	})
	return r
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Close releases background resources. ListenAndServe calls it on return.
func (s *Server) Close() {
	s.limiter.Stop()
}

// Addr is the listen address from the config.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port))
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("API listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		return errors.WrapWithCode(err, errors.ErrConfig,
			"API server failed to start on "+srv.Addr,
			"Is the port in use? Change server.port or set FLEETMON_PORT")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Microsecond))
	}
}
