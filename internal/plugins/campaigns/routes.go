package campaigns

import (
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/tabletop/internal/plugins/auth"
)

// RegisterRoutes mounts the campaign endpoints on the authenticated API
// group. Lifecycle changes are game-master only.
func RegisterRoutes(authed *echo.Group, h *Handler, svc CampaignService) {
	authed.GET("/campaign", h.Show, RequireCampaign(svc))
	authed.POST("/campaign", h.Start, auth.RequireAdmin())
	authed.PUT("/campaign", h.Update, auth.RequireAdmin())
	authed.DELETE("/campaign", h.End, auth.RequireAdmin())
	authed.POST("/campaign/join", h.Join)
	authed.POST("/campaign/leave", h.Leave)
}
