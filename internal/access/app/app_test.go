package app

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/ledgerdrop/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, k := range []string{"ENV", "DATABASE_DRIVER", "SMTP_HOST", "SESSION_TTL", "EXPOSE_RESET_LINKS", "PORT"} {
		t.Setenv(k, "")
	}

	cfg := LoadConfig()
	require.Equal(t, "dev", cfg.Env)
	require.Equal(t, "sqlite", cfg.DatabaseDriver)
	require.Equal(t, 12*time.Hour, cfg.SessionTTL)
	require.Equal(t, time.Hour, cfg.ResetTTL)
	require.Equal(t, 48*time.Hour, cfg.InviteTTL)
	require.Equal(t, 8080, cfg.Port)
	require.False(t, cfg.ExposeResetLinks)
	require.True(t, cfg.SMTP.RequireTLS)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENV", "prod")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@db/ledgerdrop")
	t.Setenv("PUBLIC_ORIGIN", "https://app.ledgerdrop.example")
	t.Setenv("SESSION_TTL", "90") // minutes
	t.Setenv("RESET_TOKEN_TTL", "30m")
	t.Setenv("SMTP_HOST", "smtp.example")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("SMTP_REQUIRE_TLS", "false")
	t.Setenv("PORT", "not-a-number")

	cfg := LoadConfig()
	require.True(t, cfg.IsProduction())
	require.Equal(t, 90*time.Minute, cfg.SessionTTL)
	require.Equal(t, 30*time.Minute, cfg.ResetTTL)
	require.Equal(t, 2525, cfg.SMTP.Port)
	require.False(t, cfg.SMTP.RequireTLS)
	require.Equal(t, 8080, cfg.Port)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	valid := Config{
		DatabaseDriver: "sqlite",
		DatabaseFile:   "x.db",
		PublicOrigin:   "http://localhost:8080",
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.DatabaseDriver = "mysql" }, "DATABASE_DRIVER"},
		{"postgres without url", func(c *Config) { c.DatabaseDriver = "postgres" }, "DATABASE_URL"},
		{"relative origin", func(c *Config) { c.PublicOrigin = "/app" }, "PUBLIC_ORIGIN"},
		{"production without smtp", func(c *Config) {
			c.Env = "prod"
			c.PublicOrigin = "https://app.example"
		}, "SMTP_HOST"},
		{"production exposing links", func(c *Config) {
			c.Env = "production"
			c.PublicOrigin = "https://app.example"
			c.SMTP.Host = "smtp.example"
			c.ExposeResetLinks = true
		}, "EXPOSE_RESET_LINKS"},
		{"production over http", func(c *Config) {
			c.Env = "prod"
			c.SMTP.Host = "smtp.example"
		}, "https"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadSessionKeysIsStable(t *testing.T) {
	cfg := Config{SessionKeyFile: filepath.Join(t.TempDir(), "keys", "session.key"), Issuer: "ledgerdrop"}

	first, err := LoadSessionKeys(cfg, slogx.Discard())
	require.NoError(t, err)
	second, err := LoadSessionKeys(cfg, slogx.Discard())
	require.NoError(t, err)

	require.Equal(t, first.Signer.KID(), second.Signer.KID())
	require.Equal(t, first.Signer.Public(), second.Signer.Public())
}

func TestNewApplication(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Issuer:               "ledgerdrop",
		DatabaseDriver:       "sqlite",
		DatabaseFile:         filepath.Join(dir, "ledgerdrop.db"),
		PepperFile:           filepath.Join(dir, "pepper"),
		SessionKeyFile:       filepath.Join(dir, "session.key"),
		PublicOrigin:         "http://localhost:8080",
		Env:                  "dev",
		LogLevel:             "error",
		LogFormat:            "json",
		ShutdownGracePeriod:  time.Second,
		HousekeepingInterval: time.Hour,
	}

	app, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.db.Close() })

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{DatabaseDriver: "sqlite", DatabaseFile: "x.db", PublicOrigin: "http://x", Env: "prod"})
	require.ErrorContains(t, err, "SMTP_HOST")
}
