package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	CredentialSchemePlain  = "plain"
	CredentialSchemeBcrypt = "bcrypt"
)

var knownWeakSecrets = []string{
	"change-me", "secret", "admin", "password",
}

type Config struct {
	Port                       int    `env:"PORT" envDefault:"8080"`
	DatabaseDriver             string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DatabaseURL                string `env:"DATABASE_URL" envDefault:"file:studydesk.db?_pragma=busy_timeout(5000)"`
	RedisURL                   string `env:"REDIS_URL"`
	LogLevel                   string `env:"LOG_LEVEL" envDefault:"info"`
	DailyQuestionLimit         int    `env:"DAILY_QUESTION_LIMIT" envDefault:"50"`
	QuotaTimezone              string `env:"QUOTA_TIMEZONE" envDefault:"UTC"`
	AdminEmail                 string `env:"ADMIN_EMAIL"`
	AdminSecret                string `env:"ADMIN_SECRET"`
	CredentialScheme           string `env:"CREDENTIAL_SCHEME" envDefault:"plain"`
	CompletionEndpoint         string `env:"COMPLETION_ENDPOINT" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	CompletionAPIKey           string `env:"COMPLETION_API_KEY"`
	CompletionModel            string `env:"COMPLETION_MODEL" envDefault:"gemini-2.5-flash"`
	PremiumSweepIntervalSecond int    `env:"PREMIUM_SWEEP_INTERVAL_SECONDS" envDefault:"300"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) PremiumSweepInterval() time.Duration {
	return time.Duration(c.PremiumSweepIntervalSecond) * time.Second
}

// Location resolves QuotaTimezone. The daily quota rolls over at midnight in this zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.QuotaTimezone)
}

func (c *Config) Validate(isProduction bool) error {
	switch c.DatabaseDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DatabaseDriver)
	}

	switch c.CredentialScheme {
	case CredentialSchemePlain, CredentialSchemeBcrypt:
	default:
		return fmt.Errorf("CREDENTIAL_SCHEME must be %q or %q, got %q", CredentialSchemePlain, CredentialSchemeBcrypt, c.CredentialScheme)
	}

	if c.DailyQuestionLimit <= 0 {
		return fmt.Errorf("DAILY_QUESTION_LIMIT must be positive, got %d", c.DailyQuestionLimit)
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("QUOTA_TIMEZONE: %w", err)
	}

	if (c.AdminEmail == "") != (c.AdminSecret == "") {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_SECRET must be set together")
	}

	if isProduction {
		if c.AdminSecret != "" {
			if err := validateSecret("ADMIN_SECRET", c.AdminSecret); err != nil {
				return err
			}
		}
		if c.CredentialScheme == CredentialSchemePlain {
			log.Warn().Msg("CREDENTIAL_SCHEME is plain in production: credentials are stored as opaque strings")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.CompletionAPIKey == "" {
			log.Warn().Msg("COMPLETION_API_KEY is empty in production: assistant requests will fail")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 12 {
		return fmt.Errorf("%s must be at least 12 characters in production", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

// Load reads an optional .env file and then parses the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
