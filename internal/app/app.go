// Package app wires configuration into the clients, dispatchers and router
// shared by cmd/server and cmd/worker.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/erp-solwed/formaciones/config"
	"github.com/erp-solwed/formaciones/internal/brevo"
	"github.com/erp-solwed/formaciones/internal/emaillogs"
	"github.com/erp-solwed/formaciones/internal/middleware"
	"github.com/erp-solwed/formaciones/internal/notify"
	"github.com/erp-solwed/formaciones/internal/registrations"
	"github.com/erp-solwed/formaciones/internal/zoom"
	"github.com/erp-solwed/formaciones/pkg/database"
	"github.com/erp-solwed/formaciones/pkg/response"
)

// NewLogger builds the production zap logger with ISO8601 timestamps.
func NewLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// Providers builds the Brevo and Zoom clients. The Zoom token cache lives as
// long as the returned client.
func Providers(cfg *config.Config, logger *zap.Logger) (*brevo.Client, *zoom.Client) {
	httpClient := &http.Client{Timeout: cfg.Server.OutboundTimeout()}

	crm := brevo.NewClient(brevo.Config{
		APIKey:      cfg.Brevo.APIKey,
		ListID:      cfg.Brevo.ListID,
		BaseURL:     cfg.Brevo.BaseURL,
		SenderName:  cfg.Brevo.SenderName,
		SenderEmail: cfg.Brevo.SenderEmail,
	}, httpClient, logger)

	webinar := zoom.NewClient(zoom.Config{
		AccountID:    cfg.Zoom.AccountID,
		ClientID:     cfg.Zoom.ClientID,
		ClientSecret: cfg.Zoom.ClientSecret,
		MeetingID:    cfg.Zoom.MeetingID,
		APIURL:       cfg.Zoom.APIURL,
		OAuthURL:     cfg.Zoom.OAuthURL,
	}, zoom.NewTokenCache(nil), httpClient, logger)

	return crm, webinar
}

// EmailRecorder connects the email log database when DATABASE_URL is set.
// Without it, or when the database is unreachable, outcomes are only logged.
// The returned func releases the pool.
func EmailRecorder(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (notify.Recorder, func()) {
	if cfg.URL == "" {
		logger.Info("DATABASE_URL not set, email logs disabled")
		return notify.NopRecorder{}, func() {}
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := database.NewPostgresPool(connectCtx, cfg.URL, int32(cfg.MaxConns), logger)
	if err != nil {
		logger.Warn("email logs disabled", zap.Error(err))
		return notify.NopRecorder{}, func() {}
	}
	if err := database.Migrate(connectCtx, pool); err != nil {
		logger.Warn("email logs disabled", zap.Error(err))
		pool.Close()
		return notify.NopRecorder{}, func() {}
	}
	return emaillogs.NewRepository(pool), pool.Close
}

// NewRouter mounts the health, metrics and registration routes.
// Only trustedProxies may set the client IP through forwarding headers; with
// none, the socket address is used, which is what the rate limiter keys on.
func NewRouter(corsOrigins string, trustedProxies []string, handler *registrations.Handler, limiter *middleware.IPRateLimiter, logger *zap.Logger) (*gin.Engine, error) {
	router := gin.New()
	if err := router.SetTrustedProxies(trustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	router.HandleMethodNotAllowed = true
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS(corsOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics())

	router.GET("/health", func(c *gin.Context) { response.OK(c, "", gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	var guards []gin.HandlerFunc
	if limiter != nil {
		guards = append(guards, middleware.RateLimit(limiter))
	}
	handler.Mount(router, guards...)

	// Methods without a route of their own (TRACE, PROPFIND, ...) still get 405 + Allow: POST.
	router.NoMethod(func(c *gin.Context) {
		if c.Request.URL.Path == registrations.Route {
			handler.MethodNotAllowed(c)
			return
		}
		response.Error(c, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})
	return router, nil
}
