package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/tabletop/internal/config"
	"github.com/keyxmakerx/tabletop/internal/docstore"
)

// pingRemote is a remote store whose Ping result is controlled by the test.
type pingRemote struct {
	*docstore.MemoryStore
	pingErr error
}

func (r *pingRemote) Ping(context.Context) error { return r.pingErr }
func (r *pingRemote) Close() error               { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Env:     "development",
		Port:    0,
		BaseURL: "http://localhost:5173",
		Auth:    config.AuthConfig{SessionTTL: time.Hour, AdminKey: "key"},
		Map: config.MapConfig{
			CampaignID:      "current_campaign",
			MinScale:        0.1,
			MaxScale:        5,
			ZoomSensitivity: 0.001,
			TokenSize:       40,
			TokenColor:      "#ef4444",
		},
		Dice:     config.DiceConfig{HistoryCap: 10},
		Autosave: config.AutosaveConfig{Delay: 10 * time.Millisecond},
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	docs := docstore.NewService(docstore.NewMemoryStore(), nil, nil, docstore.ServiceConfig{})
	a := New(testConfig(), docs, nil)
	a.RegisterRoutes()
	t.Cleanup(func() {
		_ = a.agents.Close(context.Background())
	})
	return a
}

func serve(a *App, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	return rec
}

func TestHealth_LocalCacheOnly(t *testing.T) {
	a := newTestApp(t)

	rec := serve(a, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "offline", body.Remote)
	assert.Empty(t, body.Redis)
}

func TestHealth_RemoteStore(t *testing.T) {
	a := newTestApp(t)
	remote := &pingRemote{MemoryStore: docstore.NewMemoryStore()}
	a.Docs.Attach(remote)

	rec := serve(a, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"remote":"connected"`)

	remote.pingErr = errors.New("connection refused")
	rec = serve(a, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"remote":"unreachable"`)
}

func TestErrors_AreJSON(t *testing.T) {
	a := newTestApp(t)

	rec := serve(a, http.MethodGet, "/nowhere")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	rec = serve(a, http.MethodGet, "/api/v1/map")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "authentication required", body["message"])
}

func TestSecurityHeaders(t *testing.T) {
	a := newTestApp(t)
	rec := serve(a, http.MethodGet, "/healthz")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"), "no HSTS over plain http")
}
