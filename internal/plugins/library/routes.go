package library

import (
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/tabletop/internal/plugins/auth"
)

// RegisterRoutes sets up library routes. Everyone at the table can read the
// shelf; only the game master changes it.
func RegisterRoutes(authed *echo.Group, h *Handler) {
	authed.GET("/library", h.List)
	authed.POST("/library", h.Add, auth.RequireAdmin())
	authed.DELETE("/library", h.Clear, auth.RequireAdmin())
	authed.DELETE("/library/:id", h.Delete, auth.RequireAdmin())
}
