// Package middleware provides HTTP middleware for the tabletop Echo server.
// Middleware is applied globally in internal/app or per route by the
// plugins (rate limits on the auth endpoints).
package middleware

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// HeaderRequestID carries the per-request correlation id in both directions.
const HeaderRequestID = "X-Request-ID"

// userIDKey is the Echo context key the auth plugin stores the session's
// user id under.
const userIDKey = "auth_user_id"

// maxRequestIDLength bounds an id accepted from the client.
const maxRequestIDLength = 64

// RequestLogger returns middleware that tags every request with an id and
// logs it once it completes: method, route, status, latency, client IP and,
// for authenticated calls, the user. Health checks are logged at debug.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			res := c.Response()

			id := req.Header.Get(HeaderRequestID)
			if id == "" || len(id) > maxRequestIDLength {
				id = uuid.NewString()
			}
			res.Header().Set(HeaderRequestID, id)

			err := next(c)
			if err != nil {
				// Let the error handler write the response first so the
				// logged status is the one the client saw.
				c.Error(err)
			}

			attrs := []slog.Attr{
				slog.String("request_id", id),
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", res.Status),
				slog.Duration("latency", time.Since(start)),
				slog.String("remote_ip", c.RealIP()),
			}
			if route := c.Path(); route != "" && route != req.URL.Path {
				attrs = append(attrs, slog.String("route", route))
			}
			if uid, ok := c.Get(userIDKey).(string); ok && uid != "" {
				attrs = append(attrs, slog.String("user_id", uid))
			}
			if req.Header.Get(echo.HeaderUpgrade) == "websocket" {
				attrs = append(attrs, slog.Bool("websocket", true))
			}

			level := slog.LevelInfo
			switch {
			case res.Status >= 500:
				level = slog.LevelError
			case res.Status >= 400:
				level = slog.LevelWarn
			case req.URL.Path == "/healthz":
				level = slog.LevelDebug
			}
			slog.LogAttrs(req.Context(), level, "request", attrs...)

			return nil
		}
	}
}
