package settings

import (
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/tabletop/internal/plugins/auth"
)

// RegisterRoutes sets up store settings routes on the authenticated group.
func RegisterRoutes(authed *echo.Group, h *Handler) {
	g := authed.Group("/settings", auth.RequireAdmin())
	g.GET("/store", h.StoreStatus)
	g.POST("/store/connect", h.Connect)
	g.POST("/store/disconnect", h.Disconnect)
}
