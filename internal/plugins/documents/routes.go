package documents

import "github.com/labstack/echo/v4"

// RegisterRoutes adds the documents API to the authenticated group.
func RegisterRoutes(authed *echo.Group, h *Handler) {
	authed.GET("/documents/:collection", h.List)
	authed.GET("/documents/:collection/:id", h.Get)
	authed.PUT("/documents/:collection/:id", h.Put)
	authed.DELETE("/documents/:collection/:id", h.Delete)
	authed.GET("/watch/:id", h.Watch)
}
