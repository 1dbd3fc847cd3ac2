package assistant

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/tabletop/internal/apperror"
	"github.com/keyxmakerx/tabletop/internal/plugins/auth"
)

// maxUploadBytes caps a document sent for parsing.
const maxUploadBytes = 10 << 20

// Handler handles HTTP requests for the assistant.
type Handler struct {
	service AssistantService
}

// NewHandler creates a new assistant handler.
func NewHandler(service AssistantService) *Handler {
	return &Handler{service: service}
}

type chatBodyRequest struct {
	Message string `json:"message"`
}

type portraitRequest struct {
	Description string `json:"description"`
	Class       string `json:"class"`
}

// Chat sends a message (POST /api/v1/assistant/chat).
func (h *Handler) Chat(c echo.Context) error {
	var req chatBodyRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	added, err := h.service.Chat(c.Request().Context(), auth.GetActor(c), req.Message)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"messages": added})
}

// Transcript returns the caller's conversation (GET /api/v1/assistant/transcript).
func (h *Handler) Transcript(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"messages": h.service.Transcript(auth.GetActor(c))})
}

// ClearTranscript starts a new conversation (DELETE /api/v1/assistant/transcript).
func (h *Handler) ClearTranscript(c echo.Context) error {
	h.service.ClearTranscript(auth.GetActor(c))
	return c.NoContent(http.StatusNoContent)
}

// Portrait generates a portrait (POST /api/v1/assistant/portrait).
func (h *Handler) Portrait(c echo.Context) error {
	var req portraitRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	ref, err := h.service.DraftPortrait(c.Request().Context(), auth.GetActor(c), req.Description, req.Class)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"image": ref})
}

// Parse reads a character out of an uploaded file
// (POST /api/v1/assistant/parse, multipart field "file").
func (h *Handler) Parse(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return apperror.NewBadRequest("file is required")
	}
	if fh.Size > maxUploadBytes {
		return apperror.NewValidation("file is too large")
	}
	f, err := fh.Open()
	if err != nil {
		return apperror.NewBadRequest("could not read the upload")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		return apperror.NewBadRequest("could not read the upload")
	}
	if len(data) > maxUploadBytes {
		return apperror.NewValidation("file is too large")
	}

	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}

	fields, err := h.service.ParseDocument(c.Request().Context(), auth.GetActor(c), data, mimeType)
	if err != nil {
		return err
	}
	return c.JSONBlob(http.StatusOK, fields)
}
