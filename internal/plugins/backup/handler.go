package backup

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/tabletop/internal/apperror"
	"github.com/keyxmakerx/tabletop/internal/plugins/auth"
)

// maxBackupBytes caps an uploaded backup; sheets embed portraits.
const maxBackupBytes = 64 << 20

// Handler handles backup export and import.
type Handler struct {
	service BackupService
}

// NewHandler creates a new backup handler.
func NewHandler(service BackupService) *Handler {
	return &Handler{service: service}
}

// Export downloads the data set (GET /api/v1/backup).
func (h *Handler) Export(c echo.Context) error {
	b, err := h.service.Export(c.Request().Context(), auth.GetActor(c))
	if err != nil {
		return err
	}
	name := fmt.Sprintf("tabletop-backup-%s.json", time.Now().UTC().Format("2006-01-02"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.JSON(http.StatusOK, b)
}

// Import restores a backup from the request body (POST /api/v1/backup).
func (h *Handler) Import(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBackupBytes+1))
	if err != nil {
		return apperror.NewBadRequest("could not read request body")
	}
	if len(body) > maxBackupBytes {
		return apperror.NewValidation("backup file is too large")
	}
	summary, err := h.service.Import(c.Request().Context(), auth.GetActor(c), body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}
