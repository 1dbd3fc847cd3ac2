package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV", "development")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Map.MinScale != 0.1 || cfg.Map.MaxScale != 5.0 {
		t.Errorf("expected scale bounds [0.1, 5.0], got [%v, %v]", cfg.Map.MinScale, cfg.Map.MaxScale)
	}
	if cfg.Map.CampaignID != "current_campaign" {
		t.Errorf("expected default campaign id, got %q", cfg.Map.CampaignID)
	}
	if cfg.Dice.HistoryCap != 50 {
		t.Errorf("expected history cap 50, got %d", cfg.Dice.HistoryCap)
	}
	if cfg.Autosave.Delay != time.Second {
		t.Errorf("expected autosave delay 1s, got %v", cfg.Autosave.Delay)
	}
	if cfg.Auth.AdminKey == "" {
		t.Error("expected a development admin key")
	}
	if cfg.Assistant.Enabled() {
		t.Error("expected assistant disabled without ASSISTANT_URL")
	}
}

func TestLoad_ProductionRequiresAdminKey(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("ADMIN_KEY", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when ADMIN_KEY is missing in production")
	}
}

func TestLoad_InvalidScaleBounds(t *testing.T) {
	t.Setenv("MAP_MIN_SCALE", "6")
	t.Setenv("MAP_MAX_SCALE", "5")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for inverted scale bounds")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("MAP_ZOOM_AROUND_PIVOT", "true")
	t.Setenv("AUTOSAVE_DELAY", "1500ms")
	t.Setenv("LOCAL_MAX_DOCUMENT_BYTES", "1024")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Map.ZoomAroundPivot {
		t.Error("expected pivot zoom enabled")
	}
	if cfg.Autosave.Delay != 1500*time.Millisecond {
		t.Errorf("expected 1.5s, got %v", cfg.Autosave.Delay)
	}
	if cfg.Local.MaxDocumentBytes != 1024 {
		t.Errorf("expected 1024, got %d", cfg.Local.MaxDocumentBytes)
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", User: "u", Password: "p@ss", Name: "tt"}
	dsn := d.DSN()
	if !strings.Contains(dsn, "tcp(db:3306)") {
		t.Errorf("expected default port appended, got %s", dsn)
	}
	if got := d.WithDSN("x:y@tcp(h:1)/z").DSN(); got != "x:y@tcp(h:1)/z" {
		t.Errorf("expected override DSN, got %s", got)
	}
}

func TestLoad_Lists(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("BASE_URL", "https://table.example.com")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "https://table.example.com" {
		t.Errorf("expected CORS origins to default to BASE_URL, got %v", cfg.CORSOrigins)
	}

	t.Setenv("CORS_ORIGINS", "https://a.example.com, ,http://localhost:5173")
	t.Setenv("TRUSTED_PROXIES", "10.1.0.0/16")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://localhost:5173" {
		t.Errorf("unexpected CORS origins %v", cfg.CORSOrigins)
	}
	if len(cfg.TrustedProxies) != 1 || cfg.TrustedProxies[0] != "10.1.0.0/16" {
		t.Errorf("unexpected trusted proxies %v", cfg.TrustedProxies)
	}

	t.Setenv("TRUSTED_PROXIES", "not-a-cidr")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for an invalid trusted proxy")
	}
}

func TestLoadViewer(t *testing.T) {
	t.Setenv("TABLETOP_TOKEN", "")
	t.Setenv("TABLETOP_USER", "ana")
	t.Setenv("TABLETOP_PASSWORD", "")
	if _, err := LoadViewer(); err == nil {
		t.Fatal("expected error without credentials")
	}

	t.Setenv("TABLETOP_PASSWORD", "segredo")
	t.Setenv("TABLETOP_URL", "https://table.example.com")
	cfg, err := LoadViewer()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ServerURL != "https://table.example.com" || cfg.Username != "ana" {
		t.Errorf("unexpected viewer config %+v", cfg)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("expected 250ms poll interval, got %v", cfg.PollInterval)
	}
	if cfg.Map.CampaignID != "current_campaign" {
		t.Errorf("expected the default campaign id, got %q", cfg.Map.CampaignID)
	}
}
