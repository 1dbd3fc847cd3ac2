package maps

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/tabletop/internal/apperror"
	"github.com/keyxmakerx/tabletop/internal/plugins/auth"
	"github.com/keyxmakerx/tabletop/internal/tabletop"
)

// Handler processes HTTP requests for the shared map.
type Handler struct {
	svc MapService
}

// NewHandler creates a new maps Handler.
func NewHandler(svc MapService) *Handler {
	return &Handler{svc: svc}
}

// Show returns the current view state.
// GET /api/v1/map
func (h *Handler) Show(c echo.Context) error {
	state, err := h.svc.View(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, state)
}

// CreateToken adds a token.
// POST /api/v1/map/tokens
func (h *Handler) CreateToken(c echo.Context) error {
	var req CreateTokenRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	tok, err := h.svc.CreateToken(c.Request().Context(), auth.GetActor(c), req.spec())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, tok)
}

// UpdateToken edits or moves a token.
// PATCH /api/v1/map/tokens/:tid
func (h *Handler) UpdateToken(c echo.Context) error {
	var patch tabletop.TokenPatch
	if err := c.Bind(&patch); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	tok, err := h.svc.UpdateToken(c.Request().Context(), auth.GetActor(c), c.Param("tid"), patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tok)
}

// DeleteToken removes a token.
// DELETE /api/v1/map/tokens/:tid
func (h *Handler) DeleteToken(c echo.Context) error {
	if err := h.svc.DeleteToken(c.Request().Context(), auth.GetActor(c), c.Param("tid")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// SetBackground replaces or clears the background image.
// PUT /api/v1/map/background
func (h *Handler) SetBackground(c echo.Context) error {
	var req BackgroundRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	state, err := h.svc.SetBackground(c.Request().Context(), auth.GetActor(c), req.Image)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, state)
}

// Presets lists the stock backgrounds.
// GET /api/v1/map/presets
func (h *Handler) Presets(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Presets())
}
