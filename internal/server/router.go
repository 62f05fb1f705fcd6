// Package server assembles the echo application: shared middleware, health
// and metrics endpoints, and the marketplace and messaging routes.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sudo-init-do/gigmarket/internal/config"
	"github.com/sudo-init-do/gigmarket/internal/httpx"
	"github.com/sudo-init-do/gigmarket/internal/marketplace"
	"github.com/sudo-init-do/gigmarket/internal/messaging"
	mw "github.com/sudo-init-do/gigmarket/internal/middleware"
	"github.com/sudo-init-do/gigmarket/internal/validation"
)

const maxBodyBytes = "1M"

// Pinger reports whether the durable store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the handlers and collaborators mounted by New.
type Deps struct {
	Config      config.Config
	Store       Pinger
	Marketplace *marketplace.Handler
	Messaging   *messaging.Handler
	Gateway     *messaging.Gateway
	// Auth replaces JWT authentication; tests use it to inject identities.
	Auth echo.MiddlewareFunc
}

// New returns an echo instance with every route registered.
//
// Middleware order: RequestID, Logger, Metrics, Recover, body limit, CORS.
// The logger must see the request id, and Recover must sit inside the logger
// so panics are logged as 500s.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()
	e.HTTPErrorHandler = errorHandler

	e.Use(echomw.RequestID())
	e.Use(mw.Logger())
	e.Use(mw.Metrics())
	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit(maxBodyBytes))
	e.Use(cors(d.Config.CORSAllowedOrigins))

	// Health and metrics
	health := func(c echo.Context) error { return c.JSON(http.StatusOK, echo.Map{"status": "ok"}) }
	e.GET("/health", health)
	e.GET("/healthz", health)
	e.GET("/ready", ready(d.Store))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	auth := d.Auth
	if auth == nil {
		auth = mw.JWTMiddleware(d.Config.JWTSecret)
	}

	m := d.Marketplace
	// Payment provider callbacks authenticate with a shared secret
	e.POST("/webhooks/payment", m.PaymentWebhook)

	// Public
	e.GET("/api/gigs/:id", m.GetGig)
	e.GET("/api/gigs/:id/reviews", m.ListGigReviews)

	api := e.Group("/api", auth)

	api.POST("/gigs", m.CreateGig, mw.RequireRoles(marketplace.RoleSeller, marketplace.RoleAdmin))

	api.POST("/orders", m.CreateOrder)
	api.GET("/orders", m.ListOrders)
	api.GET("/orders/:id", m.GetOrder)
	api.POST("/orders/:id/deliver", m.DeliverOrder)
	api.POST("/orders/:id/approve", m.ApproveOrder)
	api.POST("/orders/:id/complete", m.ApproveOrder)
	api.POST("/orders/:id/cancel", m.CancelOrder)

	api.POST("/reviews", m.CreateReview)
	api.PUT("/reviews/:id", m.UpdateReview)
	api.DELETE("/reviews/:id", m.DeleteReview)

	if d.Messaging != nil {
		api.POST("/messages", d.Messaging.SendMessage)
		api.GET("/messages/recent", d.Messaging.RecentConversations)
		api.GET("/messages/:userId", d.Messaging.ListMessages)
		api.GET("/presence", d.Messaging.OnlineUsers)
	}
	if d.Gateway != nil {
		e.GET("/ws", d.Gateway.ServeWS, auth)
	}

	admin := e.Group("/admin", auth, mw.AdminGuard)
	admin.GET("/orders", m.AdminListOrders)
	admin.GET("/stats", m.AdminStats)

	return e
}

func ready(store Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if store == nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "store not initialized"})
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			httpx.LoggerFrom(c).Warn().Err(err).Msg("readiness ping failed")
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "store unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	}
}

// cors allows every origin when none are configured. Credentials stay off
// in that mode.
func cors(origins []string) echo.MiddlewareFunc {
	cfg := echomw.CORSConfig{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, marketplace.WebhookSecretHeader},
		ExposeHeaders: []string{echo.HeaderXRequestID, echo.HeaderContentLength},
		MaxAge:        int((12 * time.Hour).Seconds()),
	}
	if len(origins) == 0 {
		cfg.AllowOrigins = []string{"*"}
	} else {
		cfg.AllowOrigins = origins
	}
	return echomw.CORSWithConfig(cfg)
}

// errorHandler renders router-level errors (unknown route, wrong method,
// oversized body) in the API envelope.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, code, msg := http.StatusInternalServerError, httpx.ErrCodeInternal, "internal error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch status {
		case http.StatusNotFound:
			code, msg = httpx.ErrCodeNotFound, "route not found"
		case http.StatusMethodNotAllowed:
			code, msg = httpx.ErrCodeBadRequest, "method not allowed"
		case http.StatusRequestEntityTooLarge:
			code, msg = httpx.ErrCodeBadRequest, "request body too large"
		case http.StatusUnauthorized:
			code, msg = httpx.ErrCodeUnauthorized, "unauthorized"
		default:
			if status < http.StatusInternalServerError {
				code, msg = httpx.ErrCodeBadRequest, http.StatusText(status)
			}
		}
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = httpx.FailStatus(c, status, code, msg)
}
