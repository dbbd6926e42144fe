package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fundscope/internal/config"
	apperrors "fundscope/internal/errors"
	"fundscope/internal/exchange/binance"
	"fundscope/internal/monitor"
	"fundscope/internal/scheduler"
	"fundscope/internal/sink"
)

// Snapshotter serves live funding estimates. Satisfied by the Binance
// funding watcher; may be nil when the stream is disabled.
type Snapshotter interface {
	Snapshot(symbol string) (binance.FundingSnapshot, bool)
}

// HealthChecker reports whether a backing service is reachable. Satisfied by
// the database pool and the cache.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server exposes stored analyses and on-demand runs over HTTP.
type Server struct {
	engine    *gin.Engine
	http      *http.Server
	sink      sink.Sink
	scheduler *scheduler.Scheduler
	watcher   Snapshotter
	checks    map[string]HealthChecker
	log       *logrus.Logger
}

// NewServer builds the HTTP server and registers all routes. watcher may be
// nil when no live funding stream is running; checks holds the backends the
// health endpoint probes, keyed by component name.
func NewServer(cfg config.ServerConfig, snk sink.Sink, sched *scheduler.Scheduler, watcher Snapshotter, checks map[string]HealthChecker, log *logrus.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(log))

	s := &Server{
		engine:    engine,
		sink:      snk,
		scheduler: sched,
		watcher:   watcher,
		checks:    checks,
		log:       log,
	}
	s.routes()

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Start serves HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.log.WithField("addr", s.http.Addr).Info("HTTP server listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(monitor.Handler()))

	v1 := s.engine.Group("/api/v1")
	v1.GET("/analysis/:symbol", s.handleLatest)
	v1.GET("/analysis/:symbol/:period", s.handleGet)
	v1.POST("/analyze/:symbol", s.handleAnalyzeNow)
	v1.GET("/funding/:symbol", s.handleFundingSnapshot)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	components := gin.H{}
	for name, check := range s.checks {
		if err := check.HealthCheck(ctx); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
			components[name] = err.Error()
			continue
		}
		components[name] = "ok"
	}
	c.JSON(code, gin.H{"status": status, "components": components, "time": time.Now().UTC()})
}

func (s *Server) handleLatest(c *gin.Context) {
	record, err := s.sink.Latest(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleGet(c *gin.Context) {
	period, err := time.Parse(time.RFC3339, c.Param("period"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "period must be RFC3339"})
		return
	}
	record, err := s.sink.Get(c.Request.Context(), c.Param("symbol"), period)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// handleAnalyzeNow triggers a synchronous run for the symbol. The period
// defaults to the symbol's most recent funding settlement boundary and can
// be overridden with a ?period=RFC3339 query parameter.
func (s *Server) handleAnalyzeNow(c *gin.Context) {
	symbol := c.Param("symbol")
	period := s.scheduler.PeriodAt(c.Request.Context(), symbol, time.Now())
	if raw := c.Query("period"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "period must be RFC3339"})
			return
		}
		period = parsed
	}

	record, outcome, err := s.scheduler.RunNow(c.Request.Context(), symbol, period)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"outcome": string(outcome),
		"record":  record,
	})
}

func (s *Server) handleFundingSnapshot(c *gin.Context) {
	if s.watcher == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "funding stream disabled"})
		return
	}
	snap, ok := s.watcher.Snapshot(c.Param("symbol"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot for symbol"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) renderError(c *gin.Context, err error) {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		c.JSON(appErr.HTTPStatus(), gin.H{
			"error": appErr.Message,
			"code":  string(appErr.Code),
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func requestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start).String(),
		}).Debug("HTTP request")
	}
}
