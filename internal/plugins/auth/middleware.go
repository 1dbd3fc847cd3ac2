package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/tabletop/internal/tabletop"
)

// Context keys for storing session data in Echo context. Other plugins use
// the exported getters below.
const (
	contextKeySession = "auth_session"
	contextKeyUserID  = "auth_user_id"
)

// RequireAuth returns middleware that validates the session (cookie or
// bearer token) and injects it into the request context. Missing or invalid
// sessions get a JSON 401.
func RequireAuth(service AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := getSessionToken(c)
			if token == "" {
				return handleUnauthenticated(c)
			}

			session, err := service.ValidateSession(c.Request().Context(), token)
			if err != nil {
				clearSessionCookie(c)
				return handleUnauthenticated(c)
			}

			c.Set(contextKeySession, session)
			c.Set(contextKeyUserID, session.UserID)
			return next(c)
		}
	}
}

// RequireAdmin returns middleware that only lets the game master through.
// Must run after RequireAuth.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			session := GetSession(c)
			if session == nil {
				return handleUnauthenticated(c)
			}
			if !session.IsAdmin() {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error":   "forbidden",
					"message": "only the game master can do that",
				})
			}
			return next(c)
		}
	}
}

func handleUnauthenticated(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{
		"error":   "unauthorized",
		"message": "authentication required",
	})
}

// --- Exported getters for other plugins ---

// GetSession retrieves the authenticated session from the Echo context.
// Returns nil if the request is not authenticated.
func GetSession(c echo.Context) *Session {
	session, ok := c.Get(contextKeySession).(*Session)
	if !ok {
		return nil
	}
	return session
}

// GetUserID retrieves the authenticated user's ID from the Echo context.
func GetUserID(c echo.Context) string {
	id, ok := c.Get(contextKeyUserID).(string)
	if !ok {
		return ""
	}
	return id
}

// GetActor returns the tabletop actor for the request. Unauthenticated
// requests get the zero Actor (RoleNone).
func GetActor(c echo.Context) tabletop.Actor {
	if s := GetSession(c); s != nil {
		return s.Actor()
	}
	return tabletop.Actor{}
}

// --- Token helpers ---

// getSessionToken reads the bearer token, falling back to the cookie.
// Websocket clients cannot set headers, so ?token= is accepted on upgrades.
func getSessionToken(c echo.Context) string {
	if h := c.Request().Header.Get(echo.HeaderAuthorization); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := c.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if strings.EqualFold(c.Request().Header.Get("Upgrade"), "websocket") {
		return c.QueryParam("token")
	}
	return ""
}
