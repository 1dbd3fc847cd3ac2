package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestIPLimiter_BurstThenDeny(t *testing.T) {
	l := newIPLimiter(3, time.Minute)
	now := time.Now()

	for i := 0; i < 3; i++ {
		if !l.allow("10.0.0.1", now) {
			t.Fatalf("request %d denied inside burst", i+1)
		}
	}
	if l.allow("10.0.0.1", now) {
		t.Error("expected fourth request to be denied")
	}
	if !l.allow("10.0.0.2", now) {
		t.Error("a different IP must have its own bucket")
	}
	// One token refills every window/maxRequests.
	if !l.allow("10.0.0.1", now.Add(21*time.Second)) {
		t.Error("expected a refilled token after 20s")
	}
}

func TestIPLimiter_SweepForgetsIdleClients(t *testing.T) {
	l := newIPLimiter(1, time.Second)
	now := time.Now()
	l.allow("10.0.0.1", now)

	l.sweep(now.Add(time.Second))
	if len(l.visitors) != 1 {
		t.Fatal("swept an active client")
	}
	l.sweep(now.Add(3 * time.Second))
	if len(l.visitors) != 0 {
		t.Error("expected idle client forgotten")
	}
}

func TestRateLimit_Returns429(t *testing.T) {
	e := echo.New()
	h := RateLimit(1, time.Hour)(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	for i, want := range []int{http.StatusNoContent, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		if err := h(e.NewContext(req, rec)); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if rec.Code != want {
			t.Errorf("request %d: status %d, want %d", i, rec.Code, want)
		}
	}
}
