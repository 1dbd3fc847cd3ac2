package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CORSConfig holds configuration for the CORS middleware.
type CORSConfig struct {
	// AllowedOrigins lists the origins of the table client, e.g.
	// "https://table.example.com". "*" allows any origin without credentials.
	AllowedOrigins []string

	// AllowCredentials lets the browser send the session cookie.
	AllowCredentials bool
}

var (
	corsMethods = strings.Join([]string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
		http.MethodOptions,
	}, ", ")
	corsHeaders = strings.Join([]string{
		echo.HeaderContentType,
		echo.HeaderAuthorization,
		HeaderRequestID,
	}, ", ")
	corsExposed = strings.Join([]string{
		echo.HeaderContentDisposition,
		HeaderRequestID,
	}, ", ")
)

// normalizeOrigin lowercases an origin and drops a trailing slash, so
// "https://Table.example.com/" in the config matches the browser's header.
func normalizeOrigin(origin string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(origin)), "/")
}

// CORS returns middleware that answers preflights and sets the
// Access-Control headers for allowed origins. The table client is usually
// served by a separate static host, so every /api/v1 call is cross-origin.
// Requests from other origins pass through without headers and the browser
// blocks the response.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	allowAll := false
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			allowAll = true
			continue
		}
		if n := normalizeOrigin(o); n != "" {
			allowed[n] = true
		}
	}

	// A wildcard with credentials would let any site act as the user.
	if allowAll && cfg.AllowCredentials {
		slog.Warn("CORS allows any origin; credentials will not be sent cross-origin")
		cfg.AllowCredentials = false
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			origin := req.Header.Get(echo.HeaderOrigin)
			if origin == "" {
				return next(c)
			}

			h := c.Response().Header()
			h.Add(echo.HeaderVary, echo.HeaderOrigin)
			if !allowAll && !allowed[normalizeOrigin(origin)] {
				return next(c)
			}

			h.Set(echo.HeaderAccessControlAllowOrigin, origin)
			if cfg.AllowCredentials {
				h.Set(echo.HeaderAccessControlAllowCredentials, "true")
			}

			if req.Method == http.MethodOptions && req.Header.Get(echo.HeaderAccessControlRequestMethod) != "" {
				h.Set(echo.HeaderAccessControlAllowMethods, corsMethods)
				h.Set(echo.HeaderAccessControlAllowHeaders, corsHeaders)
				h.Set(echo.HeaderAccessControlMaxAge, "3600")
				return c.NoContent(http.StatusNoContent)
			}

			h.Set(echo.HeaderAccessControlExposeHeaders, corsExposed)
			return next(c)
		}
	}
}
