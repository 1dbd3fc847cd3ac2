package dice

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/tabletop/internal/apperror"
	"github.com/keyxmakerx/tabletop/internal/plugins/auth"
)

// Handler serves the dice endpoints.
type Handler struct {
	service DiceService
}

// NewHandler creates a dice handler.
func NewHandler(service DiceService) *Handler {
	return &Handler{service: service}
}

// Roll handles POST /api/v1/dice/roll.
func (h *Handler) Roll(c echo.Context) error {
	var req RollRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	res, err := h.service.Roll(c.Request().Context(), auth.GetUserID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Test handles POST /api/v1/dice/test.
func (h *Handler) Test(c echo.Context) error {
	var req AttributeRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	res, err := h.service.Test(c.Request().Context(), auth.GetUserID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// History handles GET /api/v1/dice/history.
func (h *Handler) History(c echo.Context) error {
	out, err := h.service.History(c.Request().Context(), auth.GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

// ClearHistory handles DELETE /api/v1/dice/history.
func (h *Handler) ClearHistory(c echo.Context) error {
	if err := h.service.ClearHistory(c.Request().Context(), auth.GetUserID(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
