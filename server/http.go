package server

import (
	"context"
	"errors"
	"fmt"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"net"
	"net/http"
	"time"
	"video-pipeline/constant"
	"video-pipeline/pkg/auth"
	"video-pipeline/service"
)

// NewRouter builds the HTTP surface: health and metrics are open, media
// and status routes go through authenticator.
func NewRouter(gateway *Gateway, authenticator auth.Authenticator, middleware ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware...)
	// Keep escaped slashes inside a single path parameter so they reach
	// the gateway's checks instead of reshaping the route.
	r.UseRawPath = true
	r.UnescapePathValues = true

	addHealth(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	gateway.Register(r, authenticator)
	// Unmatched paths, including unescaped traversal, answer like any
	// missing artifact.
	r.NoRoute(func(c *gin.Context) { gateway.notFound(c, "unmatched") })
	r.NoMethod(func(c *gin.Context) { gateway.notFound(c, "unmatched") })
	return r
}

func RunHttp(ctx context.Context, app *App) error {
	cfg := app.Config
	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	authenticator, err := auth.NewJWTCookie(cfg.Auth.JWTSecret, cfg.Auth.CookieName)
	if err != nil {
		return fmt.Errorf("auth.jwt_secret: %w", err)
	}
	gateway := NewGateway(app.Layout, service.DefaultRenditions, app.Videos)
	r := NewRouter(gateway, authenticator, requestLogger())

	handler := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	serveErr := make(chan error, 1)
	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Str("port", cfg.Server.HttpPort).Msg("start http server")
		if err := handler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	zerolog.Ctx(ctx).Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := handler.Shutdown(shutdownCtx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
	return nil
}

func addHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zerolog.Ctx(c.Request.Context()).Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}
