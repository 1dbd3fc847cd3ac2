// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// BaseURL is the public-facing URL of the table client.
	BaseURL string

	// CORSOrigins are the origins allowed to call the API with the session
	// cookie (default: BaseURL).
	CORSOrigins []string

	// TrustedProxies are the CIDRs whose forwarding headers are believed
	// when resolving client IPs.
	TrustedProxies []string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// Database holds the remote document store (MariaDB) settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings.
	Redis RedisConfig

	// Local holds the on-disk document cache settings.
	Local LocalConfig

	// Auth holds authentication-related settings.
	Auth AuthConfig

	// Map holds viewport and token defaults for the tactical view.
	Map MapConfig

	// Dice holds dice roller settings.
	Dice DiceConfig

	// Autosave holds debounced persistence settings.
	Autosave AutosaveConfig

	// Assistant holds generative assistant settings.
	Assistant AssistantConfig
}

// DatabaseConfig holds MariaDB connection parameters for the remote document
// store. If DATABASE_URL is set, it takes precedence over the individual
// fields. The remote store is optional: with Enabled=false the server runs
// on the local cache alone until an admin connects one at runtime.
type DatabaseConfig struct {
	// Enabled connects the remote store at startup (default: true).
	Enabled bool

	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host string

	// User is the MariaDB username (default: "tabletop").
	User string

	// Password is the MariaDB password (default: "tabletop").
	Password string

	// Name is the database name (default: "tabletop").
	Name string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	// MigrationsPath is the directory holding golang-migrate SQL files.
	MigrationsPath string

	// MaxOpenConns is the maximum number of open connections in the pool.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int

	// ConnMaxLifetime is how long a connection can be reused.
	ConnMaxLifetime time.Duration

	// ConnectRetries is how many pings are attempted before giving up at startup.
	ConnectRetries int
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// Host/User/Password/Name fields using the driver's Config.FormatDSN()
// to safely handle special characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// WithDSN returns a copy of the config that connects using the given DSN.
// Used when an admin supplies connection details at runtime.
func (d DatabaseConfig) WithDSN(dsn string) DatabaseConfig {
	d.dsnOverride = dsn
	return d
}

// ensurePort appends the default port if the host string doesn't include one.
// Allows users to set DB_HOST=mydb (gets :3306) or DB_HOST=mydb:3307 (as-is).
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// Enabled turns on Redis-backed sessions, change notifications and
	// dice history (default: true).
	Enabled bool

	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string
}

// LocalConfig holds settings for the SQLite document cache.
type LocalConfig struct {
	// Path is the SQLite database file (default: "./data/local.db").
	Path string

	// MaxDocumentBytes is the per-document quota. Writes above it fail with
	// a quota error (default: 2 MiB).
	MaxDocumentBytes int

	// MaxImageBytes is the embedded image size above which image payloads
	// are stripped when a local write hits the quota (default: 256 KiB).
	MaxImageBytes int
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// SessionTTL is how long sessions last before expiring.
	SessionTTL time.Duration

	// AdminKey must be supplied to register a game-master account.
	AdminKey string
}

// MapConfig holds tactical view defaults.
type MapConfig struct {
	// CampaignID is the singleton key of the active campaign and its view state.
	CampaignID string

	// MinScale and MaxScale bound the viewport zoom.
	MinScale float64
	MaxScale float64

	// ZoomSensitivity converts a wheel delta into a scale change.
	ZoomSensitivity float64

	// ZoomAroundPivot keeps the point under the pointer fixed while zooming.
	// When false the viewport zooms around its origin.
	ZoomAroundPivot bool

	// TokenSize is the default token diameter in map units.
	TokenSize float64

	// TokenColor is the color of ad-hoc tokens.
	TokenColor string
}

// DiceConfig holds dice roller settings.
type DiceConfig struct {
	// HistoryCap is the maximum number of remembered rolls per user.
	HistoryCap int
}

// AutosaveConfig holds debounce settings for character sheet edits.
type AutosaveConfig struct {
	// Delay is the idle period after the last edit before a flush.
	Delay time.Duration
}

// AssistantConfig holds settings for the generative assistant backend.
type AssistantConfig struct {
	// BaseURL is an OpenAI-compatible API root (empty disables the assistant).
	BaseURL string

	// APIKey is sent as a bearer token.
	APIKey string

	// Model is the chat model name.
	Model string

	// ImageModel is the image generation model name.
	ImageModel string

	// Timeout bounds a single assistant call.
	Timeout time.Duration

	// RatePerMinute limits assistant calls across all users.
	RatePerMinute int
}

// Enabled reports whether an assistant backend is configured.
func (a AssistantConfig) Enabled() bool {
	return strings.TrimSpace(a.BaseURL) != ""
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		BaseURL:  getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		TrustedProxies: getEnvList("TRUSTED_PROXIES", []string{
			"127.0.0.0/8", "::1/128", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "fd00::/8",
		}),

		Database: DatabaseConfig{
			Enabled:         getEnvBool("DB_ENABLED", true),
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "tabletop"),
			Password:        getEnv("DB_PASSWORD", "tabletop"),
			Name:            getEnv("DB_NAME", "tabletop"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MigrationsPath:  getEnv("DB_MIGRATIONS_PATH", "db/migrations"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnectRetries:  getEnvInt("DB_CONNECT_RETRIES", 10),
		},

		Redis: RedisConfig{
			Enabled: getEnvBool("REDIS_ENABLED", true),
			URL:     getEnv("REDIS_URL", "redis://localhost:6379"),
		},

		Local: LocalConfig{
			Path:             getEnv("LOCAL_DB_PATH", "./data/local.db"),
			MaxDocumentBytes: getEnvInt("LOCAL_MAX_DOCUMENT_BYTES", 2*1024*1024),
			MaxImageBytes:    getEnvInt("LOCAL_MAX_IMAGE_BYTES", 256*1024),
		},

		Auth: AuthConfig{
			SessionTTL: getEnvDuration("SESSION_TTL", 720*time.Hour),
			AdminKey:   getEnv("ADMIN_KEY", ""),
		},

		Map: loadMap(),

		Dice: DiceConfig{
			HistoryCap: getEnvInt("DICE_HISTORY_CAP", 50),
		},

		Autosave: AutosaveConfig{
			Delay: getEnvDuration("AUTOSAVE_DELAY", time.Second),
		},

		Assistant: AssistantConfig{
			BaseURL:       getEnv("ASSISTANT_URL", ""),
			APIKey:        getEnv("ASSISTANT_API_KEY", ""),
			Model:         getEnv("ASSISTANT_MODEL", "gpt-4o-mini"),
			ImageModel:    getEnv("ASSISTANT_IMAGE_MODEL", "gpt-image-1"),
			Timeout:       getEnvDuration("ASSISTANT_TIMEOUT", 60*time.Second),
			RatePerMinute: getEnvInt("ASSISTANT_RATE_PER_MINUTE", 20),
		},
	}

	cfg.CORSOrigins = getEnvList("CORS_ORIGINS", []string{cfg.BaseURL})
	for _, cidr := range cfg.TrustedProxies {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
	}

	if err := cfg.Map.validate(); err != nil {
		return nil, err
	}
	if cfg.Dice.HistoryCap <= 0 {
		return nil, fmt.Errorf("DICE_HISTORY_CAP must be positive")
	}

	// Validate required fields in production. Case-insensitive check catches
	// common variants like "Production", "prod", etc.
	envLower := strings.ToLower(cfg.Env)
	if envLower == "production" || envLower == "prod" {
		if cfg.Auth.AdminKey == "" {
			return nil, fmt.Errorf("ADMIN_KEY is required in production")
		}
	}

	// Provide a dev-only default key so local dev works without .env.
	if cfg.Auth.AdminKey == "" {
		cfg.Auth.AdminKey = "dev-admin-key"
	}

	return cfg, nil
}

func (m MapConfig) validate() error {
	if m.MinScale <= 0 || m.MinScale > m.MaxScale {
		return fmt.Errorf("MAP_MIN_SCALE must be positive and not above MAP_MAX_SCALE")
	}
	return nil
}

func loadMap() MapConfig {
	return MapConfig{
		CampaignID:      getEnv("CAMPAIGN_ID", "current_campaign"),
		MinScale:        getEnvFloat("MAP_MIN_SCALE", 0.1),
		MaxScale:        getEnvFloat("MAP_MAX_SCALE", 5.0),
		ZoomSensitivity: getEnvFloat("MAP_ZOOM_SENSITIVITY", 0.001),
		ZoomAroundPivot: getEnvBool("MAP_ZOOM_AROUND_PIVOT", false),
		TokenSize:       getEnvFloat("MAP_TOKEN_SIZE", 40),
		TokenColor:      getEnv("MAP_TOKEN_COLOR", "#ef4444"),
	}
}

// ViewerConfig configures the terminal viewer in cmd/viewer.
type ViewerConfig struct {
	// ServerURL is the tabletop server root.
	ServerURL string

	// Token is an existing session token. When empty the viewer logs in
	// with Username and Password.
	Token    string
	Username string
	Password string

	// PollInterval is how often the viewer checks for a changed view.
	PollInterval time.Duration

	Map MapConfig
}

// LoadViewer reads the viewer's configuration from environment variables.
func LoadViewer() (*ViewerConfig, error) {
	cfg := &ViewerConfig{
		ServerURL:    getEnv("TABLETOP_URL", "http://localhost:8080"),
		Token:        getEnv("TABLETOP_TOKEN", ""),
		Username:     getEnv("TABLETOP_USER", ""),
		Password:     getEnv("TABLETOP_PASSWORD", ""),
		PollInterval: getEnvDuration("VIEWER_POLL_INTERVAL", 250*time.Millisecond),
		Map:          loadMap(),
	}
	if cfg.Token == "" && (cfg.Username == "" || cfg.Password == "") {
		return nil, fmt.Errorf("TABLETOP_TOKEN or TABLETOP_USER and TABLETOP_PASSWORD are required")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("VIEWER_POLL_INTERVAL must be positive")
	}
	if err := cfg.Map.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvFloat reads a float env var or returns the default.
func getEnvFloat(key string, defaultVal float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// getEnvBool reads a boolean env var ("true", "1", "false", ...) or returns the default.
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvList reads a comma-separated env var, dropping empty entries, or
// returns the default.
func getEnvList(key string, defaultVal []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvDuration reads a duration env var (e.g., "720h") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
