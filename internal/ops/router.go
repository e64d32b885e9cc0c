// Package ops exposes health, metrics and maintenance endpoints over HTTP.
package ops

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/damoang/angple-store/internal/middleware"
	"github.com/damoang/angple-store/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig configures the admin router
type RouterConfig struct {
	APIKey    string
	RateLimit middleware.RateLimitConfig
}

// NewRouter builds the gin engine for the admin surface
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.Metrics())

	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	admin := r.Group("/admin")
	admin.Use(middleware.RateLimit(cfg.RateLimit))
	admin.Use(middleware.APIKeyAuth(cfg.APIKey))
	{
		admin.GET("/collections", h.ListCollections)
		admin.POST("/collections/:name/backup", h.Backup)
		admin.POST("/collections/:name/clear", h.Clear)
		admin.GET("/reconcile", h.Check)
		admin.POST("/reconcile", h.Reconcile)
		admin.POST("/purge", h.Purge)
		admin.GET("/tasks", h.Tasks)
		admin.POST("/tasks/:name/run", h.RunTask)
	}
	return r
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down gracefully
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.GetLogger().Info().Str("addr", addr).Msg("admin server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.GetLogger().Info().Msg("admin server stopped")
	return nil
}
