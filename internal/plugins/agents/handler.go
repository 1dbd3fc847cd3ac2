package agents

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/tabletop/internal/apperror"
	"github.com/keyxmakerx/tabletop/internal/plugins/auth"
)

// maxSheetBytes caps a submitted sheet; embedded portraits are large.
const maxSheetBytes = 6 << 20

// Handler handles HTTP requests for character sheets.
type Handler struct {
	service AgentService
}

// NewHandler creates a new agents handler.
func NewHandler(service AgentService) *Handler {
	return &Handler{service: service}
}

// List returns every sheet (GET /api/v1/agents).
func (h *Handler) List(c echo.Context) error {
	list, err := h.service.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

// Show returns one sheet (GET /api/v1/agents/:id).
func (h *Handler) Show(c echo.Context) error {
	a, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

// Create stores a new sheet (POST /api/v1/agents). An empty body creates
// the blank template.
func (h *Handler) Create(c echo.Context) error {
	body, err := readSheet(c)
	if err != nil {
		return err
	}
	a, err := h.service.Create(c.Request().Context(), auth.GetActor(c), body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

// Replace overwrites a sheet (PUT /api/v1/agents/:id).
func (h *Handler) Replace(c echo.Context) error {
	body, err := readSheet(c)
	if err != nil {
		return err
	}
	a, err := h.service.Replace(c.Request().Context(), auth.GetActor(c), c.Param("id"), body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

// Patch applies an edit and autosaves it (PATCH /api/v1/agents/:id).
func (h *Handler) Patch(c echo.Context) error {
	body, err := readSheet(c)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return apperror.NewBadRequest("empty edit")
	}
	a, err := h.service.Patch(c.Request().Context(), auth.GetActor(c), c.Param("id"), body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, a)
}

// Delete removes a sheet (DELETE /api/v1/agents/:id).
func (h *Handler) Delete(c echo.Context) error {
	if err := h.service.Delete(c.Request().Context(), auth.GetActor(c), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// SpawnToken puts the sheet on the map (POST /api/v1/agents/:id/token).
func (h *Handler) SpawnToken(c echo.Context) error {
	tok, err := h.service.SpawnToken(c.Request().Context(), auth.GetActor(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, tok)
}

// Draft creates a sheet from the assistant (POST /api/v1/agents/draft).
func (h *Handler) Draft(c echo.Context) error {
	a, err := h.service.Draft(c.Request().Context(), auth.GetActor(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

// readSheet reads a JSON body, which may be empty.
func readSheet(c echo.Context) (json.RawMessage, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxSheetBytes+1))
	if err != nil {
		return nil, apperror.NewBadRequest("could not read request body")
	}
	if len(body) > maxSheetBytes {
		return nil, apperror.NewValidation("sheet is too large")
	}
	if len(body) > 0 && !json.Valid(body) {
		return nil, apperror.NewBadRequest("invalid request")
	}
	return body, nil
}
