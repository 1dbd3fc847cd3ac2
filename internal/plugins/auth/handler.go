package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/tabletop/internal/apperror"
)

// sessionCookieName is the HTTP cookie used to store the session token.
const sessionCookieName = "tabletop_session"

// Handler handles HTTP requests for authentication. Handlers are thin: they
// bind the request, call the service, and write JSON.
type Handler struct {
	service AuthService
}

// NewHandler creates a new auth handler.
func NewHandler(service AuthService) *Handler {
	return &Handler{service: service}
}

// Register creates an account (POST /api/v1/auth/register).
func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	user, err := h.service.Register(c.Request().Context(), RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
		AdminKey: req.AdminKey,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, user.Public())
}

// Login opens a session (POST /api/v1/auth/login). The token is returned in
// the body and also set as a cookie.
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	token, user, err := h.service.Login(c.Request().Context(), LoginInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	setSessionCookie(c, token)
	return c.JSON(http.StatusOK, LoginResponse{Token: token, User: user.Public()})
}

// Logout destroys the current session (POST /api/v1/auth/logout).
func (h *Handler) Logout(c echo.Context) error {
	if token := getSessionToken(c); token != "" {
		if err := h.service.DestroySession(c.Request().Context(), token); err != nil {
			return err
		}
	}
	clearSessionCookie(c)
	return c.NoContent(http.StatusNoContent)
}

// Me returns the caller's account (GET /api/v1/auth/me).
func (h *Handler) Me(c echo.Context) error {
	user, err := h.service.GetUser(c.Request().Context(), GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user.Public())
}

// ListUsers returns every account (GET /api/v1/users, admin only).
func (h *Handler) ListUsers(c echo.Context) error {
	users, err := h.service.ListUsers(c.Request().Context())
	if err != nil {
		return err
	}
	out := make([]PublicUser, 0, len(users))
	for i := range users {
		out = append(out, users[i].Public())
	}
	return c.JSON(http.StatusOK, out)
}

// --- Cookie helpers ---

// setSessionCookie sets the session cookie. HttpOnly, Secure if behind TLS,
// SameSite=Lax.
func setSessionCookie(c echo.Context, token string) {
	req := c.Request()
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   req.TLS != nil || req.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   30 * 24 * 60 * 60,
	})
}

// clearSessionCookie removes the session cookie by setting MaxAge to -1.
func clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
