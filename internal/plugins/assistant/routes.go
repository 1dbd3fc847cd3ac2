package assistant

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the assistant endpoints on the authenticated group.
func RegisterRoutes(authed *echo.Group, h *Handler) {
	authed.POST("/assistant/chat", h.Chat)
	authed.GET("/assistant/transcript", h.Transcript)
	authed.DELETE("/assistant/transcript", h.ClearTranscript)
	authed.POST("/assistant/portrait", h.Portrait)
	authed.POST("/assistant/parse", h.Parse)
}
