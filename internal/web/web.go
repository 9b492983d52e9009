package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"meshgate/internal/models"
	"meshgate/internal/utils"
	"meshgate/internal/web/api"
	"meshgate/internal/web/middleware"

	"github.com/gin-gonic/gin"
)

// Authenticator is everything the management surface needs from the auth module
type Authenticator interface {
	middleware.ApikeyChecker
	api.ApikeyIssuer
	Whitelist() []models.ApiAuth
}

// Dependencies wires the management surface
type Dependencies struct {
	Auth      Authenticator
	Rules     api.RuleManager
	Resources api.ResourceReader
	Events    *api.EventHub
	// Metrics is served on /metrics when set
	Metrics http.Handler
}

type WebServer struct {
	router *gin.Engine
	srv    *http.Server
}

func NewWebServer(deps Dependencies) *WebServer {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	middlewareManager := middleware.NewMiddlewareManager(deps.Auth)

	api.RegisterAuthRoutes(router, deps.Auth)
	api.RegisterAutomationRoutes(router, middlewareManager, deps.Rules)
	api.RegisterWhitelistRoutes(router, middlewareManager, deps.Auth)
	api.RegisterResourceRoutes(router, middlewareManager, deps.Resources)
	if deps.Events != nil {
		api.RegisterEventRoutes(router, middlewareManager, deps.Events)
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	return &WebServer{router: router}
}

// Handler exposes the router, mainly for tests
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (ws *WebServer) Start(ctx context.Context, addr string) error {
	ws.srv = &http.Server{Addr: addr, Handler: ws.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		utils.Logger("web").Info().Str("addr", addr).Msg("management surface listening")
		if err := ws.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ws.srv.Shutdown(shutdownCtx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		utils.Logger("web").Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}
