package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestIPExtractor(t *testing.T) {
	trusted, err := parsePrefixes([]string{"10.0.0.0/8", "::1/128"})
	if err != nil {
		t.Fatalf("parsePrefixes: %v", err)
	}
	extract := ipExtractor(trusted)

	tests := []struct {
		name   string
		remote string
		xff    string
		realIP string
		want   string
	}{
		{"direct client", "203.0.113.7:5000", "1.2.3.4", "", "203.0.113.7"},
		{"behind proxy", "10.0.0.2:5000", "198.51.100.9", "", "198.51.100.9"},
		{"spoofed leftmost hop", "10.0.0.2:5000", "1.1.1.1, 198.51.100.9, 10.0.0.3", "", "198.51.100.9"},
		{"real ip header", "10.0.0.2:5000", "", "198.51.100.10", "198.51.100.10"},
		{"ipv6 loopback proxy", "[::1]:5000", "2001:db8::1", "", "2001:db8::1"},
		{"garbage header", "10.0.0.2:5000", "nonsense", "", "10.0.0.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set(echo.HeaderXForwardedFor, tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set(echo.HeaderXRealIP, tt.realIP)
			}
			if got := extract(req); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestTrustedProxies_RejectsInvalidCIDR(t *testing.T) {
	if err := TrustedProxies(echo.New(), []string{"10.0.0.0/8", "bogus"}); err == nil {
		t.Fatal("expected an error for an invalid CIDR")
	}
}

func newCORSEcho() *echo.Echo {
	e := echo.New()
	e.Use(CORS(CORSConfig{AllowedOrigins: []string{"https://Table.example.com/"}, AllowCredentials: true}))
	e.GET("/api/v1/map", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	return e
}

func TestCORS_AllowedOrigin(t *testing.T) {
	e := newCORSEcho()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/map", nil)
	req.Header.Set(echo.HeaderOrigin, "https://table.example.com")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "https://table.example.com" {
		t.Errorf("expected origin echoed, got %q", got)
	}
	if rec.Header().Get(echo.HeaderAccessControlAllowCredentials) != "true" {
		t.Error("expected credentials allowed")
	}
	if !strings.Contains(rec.Header().Get(echo.HeaderAccessControlExposeHeaders), HeaderRequestID) {
		t.Error("expected the request id header to be exposed")
	}
}

func TestCORS_Preflight(t *testing.T) {
	e := newCORSEcho()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/map", nil)
	req.Header.Set(echo.HeaderOrigin, "https://table.example.com")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPatch)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get(echo.HeaderAccessControlAllowMethods), http.MethodPatch) {
		t.Error("expected PATCH to be allowed")
	}
}

func TestCORS_UnknownOrigin(t *testing.T) {
	e := newCORSEcho()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/map", nil)
	req.Header.Set(echo.HeaderOrigin, "https://evil.example.com")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "" {
		t.Errorf("expected no CORS headers, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("request itself should still be served, got %d", rec.Code)
	}
}

func TestRequestLogger_SetsRequestID(t *testing.T) {
	e := echo.New()
	e.Use(RequestLogger())
	e.GET("/fail", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "short and stout")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fail", nil))
	if rec.Header().Get(HeaderRequestID) == "" {
		t.Error("expected a generated request id")
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("expected the handler's status, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/fail", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if got := rec.Header().Get(HeaderRequestID); got != "abc-123" {
		t.Errorf("expected the client's request id, got %q", got)
	}
}

func TestRecovery_ReturnsJSON500(t *testing.T) {
	e := echo.New()
	e.Use(Recovery())
	e.GET("/boom", func(c echo.Context) error {
		panic(errors.New("boom"))
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		t.Errorf("expected JSON, got %q", rec.Header().Get(echo.HeaderContentType))
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Error("panic value must not leak to the client")
	}
}
