// Package router wires HTTP routes to handlers and their guards.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/meridianpress/editorial-backend/internal/config"
	"github.com/meridianpress/editorial-backend/internal/handler"
	"github.com/meridianpress/editorial-backend/internal/middleware"
	"github.com/meridianpress/editorial-backend/internal/model"
)

// Deps bundles what route registration needs.
type Deps struct {
	Auth     *handler.AuthHandler
	Users    *handler.UserHandler
	Sessions middleware.SessionLookup
	Cfg      config.Config
	Redis    *redis.Client // nil disables rate limiting and caching
}

// Register mounts the full HTTP surface on the Echo instance.
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)

	// Variant A: signature + expiry + session correlation. Used by every
	// protected route.
	strict := middleware.SessionAuth(d.Cfg.JWTSecret, d.Sessions, middleware.SessionAuthOptions{
		EnforceExpiry: true,
	})
	// Variant B: expired access tokens pass, but the body must prove
	// possession of the paired refresh secret. Renewal endpoint only.
	renewal := middleware.SessionAuth(d.Cfg.JWTSecret, d.Sessions, middleware.SessionAuthOptions{
		EnforceExpiry:           false,
		RequireRefreshBodyMatch: true,
	})

	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), d.Redis)
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), d.Redis)

	a := e.Group("/auth")
	a.POST("/login", d.Auth.Login, limiter)
	a.POST("/refresh", d.Auth.Refresh, renewal)
	a.POST("/logout", d.Auth.Logout, strict)
	a.GET("/removeExpiredToken", d.Auth.RemoveExpiredToken, strict)
	a.GET("/user", d.Auth.Me, strict)
	a.POST("/reset-password-request", d.Auth.ResetPasswordRequest)
	a.POST("/reset-password", d.Auth.ResetPassword)
	a.POST("/validate-token", d.Auth.ValidateToken)

	e.PATCH("/profile", d.Auth.UpdateProfile, strict)

	u := e.Group("/users", strict)
	u.POST("", d.Users.Create, middleware.RequirePermission(model.PermUsersCreate))
	u.GET("", d.Users.List, middleware.RequirePermission(model.PermUsersRead), cache)
	u.PATCH("/:id", d.Users.Update, middleware.RequirePermission(model.PermUsersUpdate))
	u.DELETE("/:id", d.Users.Delete, middleware.RequirePermission(model.PermUsersDelete))
}
