package agents

import (
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/tabletop/internal/plugins/auth"
)

// RegisterRoutes sets up the character sheet routes on the authenticated
// group. Ownership is checked in the service; spawning tokens is game-master
// only.
func RegisterRoutes(authed *echo.Group, h *Handler) {
	authed.GET("/agents", h.List)
	authed.POST("/agents", h.Create)
	authed.POST("/agents/draft", h.Draft)
	authed.GET("/agents/:id", h.Show)
	authed.PUT("/agents/:id", h.Replace)
	authed.PATCH("/agents/:id", h.Patch)
	authed.DELETE("/agents/:id", h.Delete)
	authed.POST("/agents/:id/token", h.SpawnToken, auth.RequireAdmin())
}
