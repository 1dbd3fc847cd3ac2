package maps

import (
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/tabletop/internal/plugins/auth"
)

// RegisterRoutes sets up the map routes on the authenticated API group.
// Everyone at the table can view; authoring is game-master only.
func RegisterRoutes(authed *echo.Group, h *Handler) {
	authed.GET("/map", h.Show)
	authed.GET("/map/presets", h.Presets)

	authed.POST("/map/tokens", h.CreateToken, auth.RequireAdmin())
	authed.PATCH("/map/tokens/:tid", h.UpdateToken, auth.RequireAdmin())
	authed.DELETE("/map/tokens/:tid", h.DeleteToken, auth.RequireAdmin())
	authed.PUT("/map/background", h.SetBackground, auth.RequireAdmin())
}
