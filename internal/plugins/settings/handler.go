package settings

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/tabletop/internal/apperror"
)

// Handler handles HTTP requests for store settings. All routes require the
// game master.
type Handler struct {
	service SettingsService
}

// NewHandler creates a new settings handler.
func NewHandler(service SettingsService) *Handler {
	return &Handler{service: service}
}

// StoreStatus reports the remote store connection (GET /api/v1/settings/store).
func (h *Handler) StoreStatus(c echo.Context) error {
	st, err := h.service.Status(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

// Connect connects a remote store (POST /api/v1/settings/store/connect).
func (h *Handler) Connect(c echo.Context) error {
	var req ConnectRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	st, err := h.service.Connect(c.Request().Context(), req.DSN)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

// Disconnect returns to local-only operation (POST /api/v1/settings/store/disconnect).
func (h *Handler) Disconnect(c echo.Context) error {
	st, err := h.service.Disconnect(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}
