// Package api serves the fallguard HTTP API: coordinator status, episode
// history, evidence ingestion, health and Prometheus metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/fallguard/internal/accident"
	"github.com/tphakala/fallguard/internal/conf"
	"github.com/tphakala/fallguard/internal/datastore"
	"github.com/tphakala/fallguard/internal/errors"
	"github.com/tphakala/fallguard/internal/evidence"
	"github.com/tphakala/fallguard/internal/logger"
	"github.com/tphakala/fallguard/internal/status"
)

const (
	episodeCacheTTL = 5 * time.Second
	shutdownTimeout = 5 * time.Second
	maxEvidenceBody = "256K"
	defaultPageSize = 50
	maxPageSize     = 500
)

// Coordinator is what the API reads from and feeds into the decision engine.
type Coordinator interface {
	evidence.Sink
	Snapshot() accident.Snapshot
}

// StatusView returns the latest status output
type StatusView interface {
	View() status.View
}

// HTTPMetrics records request and evidence rejection metrics.
type HTTPMetrics interface {
	RecordHTTPRequest(method, path string, statusCode int, duration float64)
	evidence.RejectionRecorder
}

// Controller holds the handlers and their dependencies.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Settings *conf.Settings

	coordinator Coordinator
	status      StatusView
	ds          datastore.Interface // nil when no output is configured
	metrics     HTTPMetrics
	metricsH    http.Handler

	acceptEvidence bool
	episodeCache   *cache.Cache
	startTime      time.Time
	clock          func() time.Time
	log            logger.Logger
}

// Option configures a Controller
type Option func(*Controller)

// WithDatastore enables the episode endpoints.
func WithDatastore(ds datastore.Interface) Option {
	return func(c *Controller) { c.ds = ds }
}

// WithMetrics records request metrics and serves handler on /metrics.
func WithMetrics(m HTTPMetrics, handler http.Handler) Option {
	return func(c *Controller) {
		c.metrics = m
		c.metricsH = handler
	}
}

// WithEvidenceIngestion registers the POST /api/v1/evidence endpoints.
func WithEvidenceIngestion() Option {
	return func(c *Controller) { c.acceptEvidence = true }
}

// GetLogger returns the api package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// New creates the echo instance and registers every route.
func New(settings *conf.Settings, coordinator Coordinator, statusView StatusView, opts ...Option) *Controller {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = settings.WebServer.Debug

	c := &Controller{
		Echo:         e,
		Settings:     settings,
		coordinator:  coordinator,
		status:       statusView,
		episodeCache: cache.New(episodeCacheTTL, 2*episodeCacheTTL),
		startTime:    time.Now(),
		clock:        time.Now,
		log:          GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	e.HTTPErrorHandler = c.errorHandler
	e.Use(middleware.Recover())
	if c.metrics != nil {
		e.Use(c.metricsMiddleware)
	}

	e.GET("/health", c.HealthCheck)
	if c.metricsH != nil {
		e.GET("/metrics", echo.WrapHandler(c.metricsH))
	}

	c.Group = e.Group("/api/v1")
	c.Group.GET("/status", c.GetStatus)
	c.Group.GET("/episodes", c.ListEpisodes)
	c.Group.GET("/episodes/:id", c.GetEpisode)

	if c.acceptEvidence {
		ev := c.Group.Group("/evidence", middleware.BodyLimit(maxEvidenceBody))
		ev.POST("/audio", c.PostAudio)
		ev.POST("/video", c.PostVideo)
		ev.POST("/status", c.PostSourceStatus)
	}
	return c
}

// Run serves on listen until ctx is cancelled, then shuts down gracefully.
func (c *Controller) Run(ctx context.Context, listen string) error {
	errCh := make(chan error, 1)
	go func() {
		c.log.Info("HTTP API listening", logger.String("address", listen))
		errCh <- c.Echo.Start(listen)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.New(err).
			Component("api").
			Category(errors.CategoryNetwork).
			Context("listen", listen).
			Build()
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := c.Echo.Shutdown(shutdownCtx)
		<-errCh
		return err
	}
}

func (c *Controller) metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		start := time.Now()
		err := next(ctx)

		code := ctx.Response().Status
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
		}
		path := ctx.Path() // route pattern keeps label cardinality bounded
		if path == "" {
			path = "unmatched"
		}
		c.metrics.RecordHTTPRequest(ctx.Request().Method, path, code, time.Since(start).Seconds())
		return err
	}
}
