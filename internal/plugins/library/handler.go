package library

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/tabletop/internal/apperror"
	"github.com/keyxmakerx/tabletop/internal/plugins/auth"
)

// Handler handles HTTP requests for the library.
type Handler struct {
	service LibraryService
}

// NewHandler creates a new library handler.
func NewHandler(service LibraryService) *Handler {
	return &Handler{service: service}
}

// List returns the shelf (GET /api/v1/library).
func (h *Handler) List(c echo.Context) error {
	links, err := h.service.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, links)
}

// Add shelves a link (POST /api/v1/library).
func (h *Handler) Add(c echo.Context) error {
	var req AddLinkRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	l, err := h.service.Add(c.Request().Context(), auth.GetActor(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, l)
}

// Delete removes a link (DELETE /api/v1/library/:id).
func (h *Handler) Delete(c echo.Context) error {
	if err := h.service.Delete(c.Request().Context(), auth.GetActor(c), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Clear empties the shelf (DELETE /api/v1/library).
func (h *Handler) Clear(c echo.Context) error {
	if err := h.service.Clear(c.Request().Context(), auth.GetActor(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
