// Package daemon runs the standalone drift watcher: it polls an
// aggregator's dirty-state check on an interval, publishes every
// finding to logs and the websocket stream, and serves health, status,
// and metrics endpoints.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/statewatch/internal/config"
	"github.com/mbd888/statewatch/internal/logging"
	"github.com/mbd888/statewatch/internal/metrics"
	"github.com/mbd888/statewatch/internal/realtime"
	"github.com/mbd888/statewatch/pkg/monitor"
)

// Daemon polls one aggregator for drift and serves the HTTP surface.
type Daemon struct {
	cfg     *config.Config
	agg     *monitor.Aggregator
	hub     *realtime.Hub
	router  *gin.Engine
	httpSrv *http.Server
	logger  *slog.Logger

	cancelRunCtx context.CancelFunc

	// Health state
	ready atomic.Bool

	// Last completed check
	mu           sync.Mutex
	lastCheck    time.Time
	lastFindings []string
	totalDrift   int64
}

// Option configures the daemon
type Option func(*Daemon)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(d *Daemon) {
		d.logger = logger
	}
}

// New creates a daemon polling the given aggregator.
func New(cfg *config.Config, agg *monitor.Aggregator, opts ...Option) *Daemon {
	d := &Daemon{
		cfg:    cfg,
		agg:    agg,
		logger: logging.New(cfg.LogLevel, "json"),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.hub = realtime.NewHub(d.logger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	d.router = gin.New()
	d.setupMiddleware()
	d.setupRoutes()

	return d
}

func (d *Daemon) setupMiddleware() {
	d.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Prometheus metrics
	d.router.Use(metrics.Middleware())
}

func (d *Daemon) setupRoutes() {
	d.router.GET("/healthz", d.livenessHandler)
	d.router.GET("/readyz", d.readinessHandler)
	d.router.GET("/status", d.statusHandler)
	d.router.GET("/metrics", metrics.Handler())
	d.router.GET("/ws", func(c *gin.Context) {
		d.hub.HandleWebSocket(c.Writer, c.Request)
	})
}

func (d *Daemon) livenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (d *Daemon) readinessHandler(c *gin.Context) {
	if !d.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (d *Daemon) statusHandler(c *gin.Context) {
	d.mu.Lock()
	lastCheck := d.lastCheck
	findings := append([]string(nil), d.lastFindings...)
	total := d.totalDrift
	d.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"lastCheck":    lastCheck.UTC().Format(time.RFC3339),
		"findings":     findings,
		"totalDrift":   total,
		"pollInterval": d.cfg.PollInterval.String(),
		"stream":       d.hub.Stats(),
	})
}

// Run starts the poll loop and HTTP server and blocks until a shutdown
// signal, a server error, or context cancellation.
func (d *Daemon) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	d.cancelRunCtx = cancel

	// Baseline every monitor before the first check.
	if err := d.agg.Reset(runCtx); err != nil {
		cancel()
		return fmt.Errorf("initial reset: %w", err)
	}

	d.httpSrv = &http.Server{
		Addr:              ":" + d.cfg.Port,
		Handler:           d.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		d.logger.Info("starting drift watcher",
			"port", d.cfg.Port,
			"poll_interval", d.cfg.PollInterval.String(),
		)
		if err := d.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go d.hub.Run(runCtx)
	go d.pollLoop(runCtx)

	d.ready.Store(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		d.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		d.logger.Info("context cancelled")
	}

	return d.Shutdown()
}

// Shutdown gracefully stops the daemon
func (d *Daemon) Shutdown() error {
	d.ready.Store(false)
	d.logger.Info("starting graceful shutdown")

	if d.cancelRunCtx != nil {
		d.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := d.httpSrv.Shutdown(ctx); err != nil {
		d.logger.Error("shutdown error", "error", err)
		return err
	}

	d.logger.Info("drift watcher stopped")
	return nil
}

func (d *Daemon) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.check(ctx); err != nil {
				d.logger.Error("drift check failed", "error", err)
				d.hub.Broadcast(&realtime.Event{
					Type:      realtime.EventCheckError,
					Timestamp: time.Now(),
					Detail:    err.Error(),
				})
			}
		}
	}
}

// check runs one dirty-state pass. Findings are published and then the
// baseline is advanced to the live values, so each drift is reported
// once; a daemon observes, it does not assert.
func (d *Daemon) check(ctx context.Context) error {
	if err := d.agg.CheckDirty(ctx); err != nil {
		return err
	}

	findings := d.agg.Exceptions()
	for _, f := range findings {
		id := monitorOf(f)
		d.hub.BroadcastDrift(d.groupFor(id), id, f)
	}
	if len(findings) == 0 {
		d.hub.Broadcast(&realtime.Event{
			Type:      realtime.EventCheckPass,
			Timestamp: time.Now(),
		})
	}

	d.mu.Lock()
	d.lastCheck = time.Now()
	d.lastFindings = findings
	d.totalDrift += int64(len(findings))
	d.mu.Unlock()

	if len(findings) > 0 {
		// Accept the drifted values so the next pass reports only new drift.
		return d.agg.Reset(ctx)
	}
	return nil
}

// monitorOf extracts the "<kind>.<name>" prefix from a finding.
func monitorOf(finding string) string {
	if i := strings.IndexByte(finding, ':'); i >= 0 {
		return finding[:i]
	}
	return ""
}

// groupFor finds which of the aggregator's groups owns a monitor id.
func (d *Daemon) groupFor(id string) string {
	for _, g := range d.agg.Groups() {
		for _, m := range g.Monitors() {
			if m.ID() == id {
				return g.Name()
			}
		}
	}
	return ""
}
