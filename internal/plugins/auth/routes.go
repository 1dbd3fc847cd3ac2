package auth

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/tabletop/internal/middleware"
)

// RegisterRoutes sets up the auth routes. Register and login are public and
// rate-limited against credential stuffing: 10 attempts per IP per minute for
// login, 5 for register.
func RegisterRoutes(api *echo.Group, h *Handler, authed *echo.Group) {
	api.POST("/auth/login", h.Login, middleware.RateLimit(10, time.Minute))
	api.POST("/auth/register", h.Register, middleware.RateLimit(5, time.Minute))
	api.POST("/auth/logout", h.Logout)

	authed.GET("/auth/me", h.Me)
	authed.GET("/users", h.ListUsers, RequireAdmin())
}
