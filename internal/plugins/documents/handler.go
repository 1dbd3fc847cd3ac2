package documents

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/tabletop/internal/apperror"
	"github.com/keyxmakerx/tabletop/internal/plugins/auth"
)

// maxBodyBytes caps an uploaded document. Embedded portraits and map
// backgrounds make documents large.
const maxBodyBytes = 8 << 20

// Websocket keepalive timing.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Handler serves the documents API.
type Handler struct {
	service  DocumentService
	upgrader websocket.Upgrader
}

// NewHandler creates a documents handler. Cross-origin browser clients are
// refused on the watch socket; non-browser clients send no Origin header
// and are accepted.
func NewHandler(service DocumentService) *Handler {
	return &Handler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// List handles GET /api/v1/documents/:collection.
func (h *Handler) List(c echo.Context) error {
	docs, err := h.service.List(c.Request().Context(), auth.GetActor(c), c.Param("collection"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, docs)
}

// Get handles GET /api/v1/documents/:collection/:id.
func (h *Handler) Get(c echo.Context) error {
	doc, err := h.service.Get(c.Request().Context(), auth.GetActor(c), c.Param("collection"), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, doc)
}

// Put handles PUT /api/v1/documents/:collection/:id. The body is the
// document payload itself.
func (h *Handler) Put(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes+1))
	if err != nil {
		return apperror.NewBadRequest("could not read request body")
	}
	if len(body) > maxBodyBytes {
		return apperror.NewValidation("document is too large")
	}
	err = h.service.Put(c.Request().Context(), auth.GetActor(c), c.Param("collection"), c.Param("id"), json.RawMessage(body))
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Delete handles DELETE /api/v1/documents/:collection/:id.
func (h *Handler) Delete(c echo.Context) error {
	if err := h.service.Delete(c.Request().Context(), auth.GetActor(c), c.Param("collection"), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Watch handles GET /api/v1/watch/:id. It upgrades to a websocket and
// writes one JSON change notice per write to the document id until either
// side closes.
func (h *Handler) Watch(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	changes, cancel, err := h.service.Watch(ctx, auth.GetActor(c), id)
	if err != nil {
		return err
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader already wrote the HTTP error.
		slog.Debug("watch upgrade failed", slog.String("id", id), slog.Any("error", err))
		return nil
	}
	defer conn.Close()

	// Read pump: handles pongs and notices the peer going away.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case change, ok := <-changes:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(writeWait))
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(change); err != nil {
				logWriteError(id, err)
				return nil
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logWriteError(id, err)
				return nil
			}
		case <-closed:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func logWriteError(id string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	slog.Debug("watch write failed", slog.String("id", id), slog.Any("error", err))
}
