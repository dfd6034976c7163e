// Package httpapi is the operator-facing status/diagnostics HTTP surface:
// /healthz, /statusz, /metrics. Read-only, rate-limited, with /metrics
// backed by prometheus/client_golang so the diagnostics are scrapeable
// rather than log-only.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"github.com/kairos-trading/riskguard/internal/supervisor"
)

// Server wraps a *gin.Engine and the *http.Server serving it.
type Server struct {
	engine *gin.Engine
	http   *http.Server
	logger *zap.Logger
}

// New builds the status/diagnostics HTTP surface over sup. addr is the
// listen address, e.g. ":9090".
func New(sup *supervisor.Supervisor, addr string) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(rateLimit())

	engine.GET("/healthz", healthzHandler(sup))
	engine.GET("/statusz", statuszHandler(sup))
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(sup.Metrics.Registry, promhttp.HandlerOpts{})))

	return &Server{
		engine: engine,
		logger: sup.Logger,
		http:   &http.Server{Addr: addr, Handler: engine},
	}
}

// rateLimit throttles every route to 60 requests/minute per client IP.
func rateLimit() gin.HandlerFunc {
	rate := limiter.Rate{Period: time.Minute, Limit: 60}
	lim := limiter.New(memory.NewStore(), rate)

	return func(c *gin.Context) {
		ctx, err := lim.Get(c.Request.Context(), c.ClientIP())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "rate limiter unavailable"})
			return
		}
		c.Header("X-RateLimit-Limit", strconv.FormatInt(ctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(ctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(ctx.Reset, 10))
		if ctx.Reached {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// healthzHandler reports liveness: the process is up and serving. It does
// not re-run post-condition checks — that's /statusz's job — so a load
// balancer's liveness probe never fails because of a transient DB blip.
func healthzHandler(sup *supervisor.Supervisor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// statuszHandler re-runs the four startup post-conditions on demand and
// reports per-check status plus live counts.
func statuszHandler(sup *supervisor.Supervisor) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		report := supervisor.RunPostConditions(ctx, sup)

		status := http.StatusOK
		if !report.OK() {
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, gin.H{
			"checks":          report.String(),
			"ok":              report.OK(),
			"active_timers":   sup.Wheel.Count(),
			"active_lockouts": sup.LockoutMgr.ActiveCount(),
			"rules_loaded":    len(sup.Engine.Rules()),
			"sdk_connected":   sup.Broker.IsConnected(),
		})
	}
}

// Run starts serving and blocks until ctx is cancelled, then shuts the
// server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
