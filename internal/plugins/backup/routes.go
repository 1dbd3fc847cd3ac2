package backup

import (
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/tabletop/internal/plugins/auth"
)

// RegisterRoutes sets up backup routes. Game master only.
func RegisterRoutes(authed *echo.Group, h *Handler) {
	authed.GET("/backup", h.Export, auth.RequireAdmin())
	authed.POST("/backup", h.Import, auth.RequireAdmin())
}
