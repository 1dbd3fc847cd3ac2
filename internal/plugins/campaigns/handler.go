package campaigns

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/tabletop/internal/apperror"
	"github.com/keyxmakerx/tabletop/internal/plugins/auth"
)

// Handler handles HTTP requests for the campaign. Handlers are thin: bind
// request, call service, write JSON.
type Handler struct {
	service CampaignService
}

// NewHandler creates a new campaign handler.
func NewHandler(service CampaignService) *Handler {
	return &Handler{service: service}
}

// Show returns the running campaign (GET /api/v1/campaign).
func (h *Handler) Show(c echo.Context) error {
	return c.JSON(http.StatusOK, GetCampaign(c))
}

// Start opens a campaign (POST /api/v1/campaign).
func (h *Handler) Start(c echo.Context) error {
	var req StartRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	campaign, err := h.service.Start(c.Request().Context(), auth.GetActor(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, campaign)
}

// Update edits the campaign (PUT /api/v1/campaign).
func (h *Handler) Update(c echo.Context) error {
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	campaign, err := h.service.Update(c.Request().Context(), auth.GetActor(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, campaign)
}

// End closes the campaign (DELETE /api/v1/campaign).
func (h *Handler) End(c echo.Context) error {
	if err := h.service.End(c.Request().Context(), auth.GetActor(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Join adds the caller to the roster (POST /api/v1/campaign/join).
func (h *Handler) Join(c echo.Context) error {
	var req JoinRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	campaign, err := h.service.Join(c.Request().Context(), auth.GetActor(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, campaign)
}

// Leave marks the caller offline (POST /api/v1/campaign/leave).
func (h *Handler) Leave(c echo.Context) error {
	campaign, err := h.service.Leave(c.Request().Context(), auth.GetActor(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, campaign)
}
