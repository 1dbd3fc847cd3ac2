package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
)

// Recovery returns middleware that turns a panicking handler into a JSON
// 500 and logs the stack. Must be the outermost middleware.
//
// http.ErrAbortHandler is re-panicked so net/http can abort the connection
// as the handler intended.
func Recovery() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (returnErr error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}

				requestID := c.Response().Header().Get(HeaderRequestID)
				slog.Error("panic recovered",
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
					slog.String("method", c.Request().Method),
					slog.String("path", c.Request().URL.Path),
					slog.String("request_id", requestID),
				)

				// A hijacked websocket or a half-written body cannot carry
				// an error response.
				if c.Response().Committed {
					returnErr = nil
					return
				}
				message := "an unexpected error occurred"
				if requestID != "" {
					message = fmt.Sprintf("%s (request %s)", message, requestID)
				}
				returnErr = c.JSON(http.StatusInternalServerError, map[string]string{
					"error":   http.StatusText(http.StatusInternalServerError),
					"message": message,
				})
			}()

			return next(c)
		}
	}
}
