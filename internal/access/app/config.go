package app

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/aussiebroadwan/ledgerdrop/internal/access/domain"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/mail"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/service"
	"github.com/aussiebroadwan/ledgerdrop/pkg/jwtx"
	"github.com/joho/godotenv"
)

type Config struct {
	Issuer         string // Optional: issuer claim on session tokens (default: ledgerdrop)
	BootstrapToken string // Optional: enables POST /v1/bootstrap when set

	DatabaseDriver string // sqlite or postgres (default: sqlite)
	DatabaseFile   string // SQLite database path (default: ./ledgerdrop.db)
	DatabaseURL    string // Postgres connection string, required for postgres

	PepperFile     string        // Path to the password pepper (default: ./pepper)
	SessionKeyFile string        // Path to the Ed25519 session signing key (default: ./session.key)
	SessionTTL     time.Duration // Session lifetime (default: 12h)

	PublicOrigin     string        // Scheme and host of the web app that serves redemption links
	ResetTTL         time.Duration // Password reset token lifetime (default: 1h)
	InviteTTL        time.Duration // Invite token lifetime (default: 48h)
	ExposeResetLinks bool          // Return reset links from the API, development only
	DeliveryTimeout  time.Duration // Budget for one notification attempt (default: 15s)
	TokenRetention   time.Duration // How long expired tokens are kept (default: 7 days)

	SMTP mail.SMTPConfig // Host empty means mails are only logged

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

// LoadConfig reads the configuration from the environment. A .env file in
// the working directory is loaded first if present; variables already set
// in the environment win.
func LoadConfig() Config {
	_ = godotenv.Load()

	return Config{
		Issuer:         getEnvOrDefault("SESSION_ISSUER", "ledgerdrop"),
		BootstrapToken: os.Getenv("BOOTSTRAP_TOKEN"),

		DatabaseDriver: getEnvOrDefault("DATABASE_DRIVER", "sqlite"),
		DatabaseFile:   getEnvOrDefault("DATABASE_FILE", "ledgerdrop.db"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),

		PepperFile:     getEnvOrDefault("PEPPER_FILE", "pepper"),
		SessionKeyFile: getEnvOrDefault("SESSION_KEY_FILE", "session.key"),
		SessionTTL:     getEnvDurationOrDefault("SESSION_TTL", jwtx.DefaultSessionTTL),

		PublicOrigin:     getEnvOrDefault("PUBLIC_ORIGIN", "http://localhost:8080"),
		ResetTTL:         getEnvDurationOrDefault("RESET_TOKEN_TTL", domain.PasswordResetTTL),
		InviteTTL:        getEnvDurationOrDefault("INVITE_TOKEN_TTL", domain.InviteTTL),
		ExposeResetLinks: getEnvBoolOrDefault("EXPOSE_RESET_LINKS", false),
		DeliveryTimeout:  getEnvDurationOrDefault("DELIVERY_TIMEOUT", 15*time.Second),
		TokenRetention:   getEnvDurationOrDefault("TOKEN_RETENTION", service.DefaultTokenRetention),

		SMTP: mail.SMTPConfig{
			Host:         os.Getenv("SMTP_HOST"),
			Port:         getEnvIntOrDefault("SMTP_PORT", 587),
			Username:     os.Getenv("SMTP_USERNAME"),
			Password:     os.Getenv("SMTP_PASSWORD"),
			From:         getEnvOrDefault("SMTP_FROM", "Ledgerdrop <no-reply@localhost>"),
			StageTimeout: getEnvDurationOrDefault("SMTP_TIMEOUT", mail.DefaultStageTimeout),
			RequireTLS:   getEnvBoolOrDefault("SMTP_REQUIRE_TLS", true),
		},

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}
}

// IsProduction reports whether ENV names a production deployment.
func (c Config) IsProduction() bool {
	return c.Env == "prod" || c.Env == "production"
}

// Validate rejects configurations the service must not start with.
func (c Config) Validate() error {
	var errs []error

	switch c.DatabaseDriver {
	case "sqlite":
		if c.DatabaseFile == "" {
			errs = append(errs, errors.New("DATABASE_FILE is required for sqlite"))
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER %q is not supported (sqlite, postgres)", c.DatabaseDriver))
	}

	origin, err := url.Parse(c.PublicOrigin)
	if err != nil || (origin.Scheme != "http" && origin.Scheme != "https") || origin.Host == "" {
		errs = append(errs, fmt.Errorf("PUBLIC_ORIGIN %q must be an absolute http(s) URL", c.PublicOrigin))
	}

	if c.IsProduction() {
		if c.SMTP.Host == "" {
			errs = append(errs, errors.New("SMTP_HOST is required in production"))
		}
		if c.ExposeResetLinks {
			errs = append(errs, errors.New("EXPOSE_RESET_LINKS must not be enabled in production"))
		}
		if origin != nil && origin.Scheme != "https" {
			errs = append(errs, errors.New("PUBLIC_ORIGIN must use https in production"))
		}
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
