package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"creatorreminder/internal/reminder"
)

// Check probes one dependency for readiness.
type Check func(ctx context.Context) error

// StatusSource exposes the scheduler state.
type StatusSource interface {
	Running() bool
	LastReport() *reminder.Report
}

type Router struct {
	Engine *gin.Engine
}

// NewRouter builds the operational endpoints. /readyz fails on the first
// failing check; with no checks it always reports ready.
func NewRouter(status StatusSource, checks map[string]Check) *Router {
	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		for name, check := range checks {
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"running":     status.Running(),
			"last_report": status.LastReport(),
		})
	})

	return &Router{Engine: r}
}

// Server wraps the router in an http.Server so it can be shut down gracefully.
func (r *Router) Server(port string) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           r.Engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
