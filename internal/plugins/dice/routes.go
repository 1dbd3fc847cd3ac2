package dice

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the dice endpoints on the authenticated API group.
func RegisterRoutes(authed *echo.Group, h *Handler) {
	authed.POST("/dice/roll", h.Roll)
	authed.POST("/dice/test", h.Test)
	authed.GET("/dice/history", h.History)
	authed.DELETE("/dice/history", h.ClearHistory)
}
