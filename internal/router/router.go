// Package router wires handlers and middleware onto the echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/clinic-appointments/internal/config"
	"github.com/iliyamo/clinic-appointments/internal/handler"
	"github.com/iliyamo/clinic-appointments/internal/middleware"
	"github.com/iliyamo/clinic-appointments/internal/model"
)

// Deps carries everything the routes need.
type Deps struct {
	JWTSecret    string
	Redis        *redis.Client // optional; nil disables rate limiting and caching
	RateLimit    config.RateLimitConfig
	Cache        config.CacheConfig
	DB           handler.Pinger
	Appointments *handler.AppointmentHandler
	Payments     *handler.PaymentHandler
	Slots        *handler.SlotHandler
	Log          zerolog.Logger
}

// RegisterRoutes registers the probes and the /v1 API.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)
	if d.DB != nil {
		e.GET("/readyz", handler.Ready(d.DB))
	}

	// Gateway server-to-server callback, authenticated by its signature.
	// The gateway posts from a few addresses, so it stays outside the
	// per-IP limiter.
	e.POST("/v1/payments/payhere/notify", d.Payments.Notify)

	limit := middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log)
	v1 := e.Group("/v1", limit)

	// Public. The catalog depends only on configuration, so it is the one
	// cached response.
	v1.GET("/slots/catalog", d.Slots.Catalog, middleware.NewRedisCache(d.Cache, d.Redis))

	auth := v1.Group("", middleware.JWTAuth(d.JWTSecret))
	staff := middleware.RequireRole(model.RoleAdmin, model.RoleStaff)
	clinicians := middleware.RequireRole(model.RoleAdmin, model.RoleStaff, model.RoleDoctor)
	bookers := middleware.RequireRole(model.RoleAdmin, model.RoleStaff, model.RolePatient)

	auth.GET("/doctors/:id/slots", d.Slots.Available)

	auth.POST("/appointments", d.Appointments.Book, bookers)
	auth.GET("/appointments/:id", d.Appointments.Get)
	auth.POST("/appointments/:id/cancel", d.Appointments.Cancel)
	auth.PATCH("/appointments/:id/status", d.Appointments.UpdateStatus, clinicians)
	auth.GET("/appointments/:id/payments", d.Appointments.ListPayments)

	auth.POST("/payments/card", d.Payments.InitiateCard, bookers)
	auth.POST("/payments/cash", d.Payments.RecordCash, staff)
}
