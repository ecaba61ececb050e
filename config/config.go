// Package config loads service configuration from the environment and an
// optional .env file. Every key also works as an environment variable
// prefixed with LEAVE_ (e.g. LEAVE_PORT).
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env  string
	Port int

	Database  DatabaseConfig
	Directory DirectoryConfig
	Scheduler SchedulerConfig
	CORS      CORSConfig
	Log       LogConfig
}

type DatabaseConfig struct {
	// Path is the SQLite database file; ":memory:" for an ephemeral one.
	Path string
}

type DirectoryConfig struct {
	BaseURL string
	Timeout time.Duration
}

// SchedulerConfig controls the accrual and carry-over cron jobs.
type SchedulerConfig struct {
	Enabled       bool
	AccrualSpec   string
	CarryOverSpec string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.SetEnvPrefix("LEAVE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{
		Env:  v.GetString("ENV"),
		Port: v.GetInt("PORT"),
		Database: DatabaseConfig{
			Path: v.GetString("DB_PATH"),
		},
		Directory: DirectoryConfig{
			BaseURL: v.GetString("DIRECTORY_URL"),
			Timeout: parseDuration(v.GetString("DIRECTORY_TIMEOUT"), 3*time.Second),
		},
		Scheduler: SchedulerConfig{
			Enabled:       v.GetBool("ENABLE_SCHEDULER"),
			AccrualSpec:   v.GetString("ACCRUAL_CRON"),
			CarryOverSpec: v.GetString("CARRYOVER_CRON"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS")),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)

	v.SetDefault("DB_PATH", "./data/leave.db")

	v.SetDefault("DIRECTORY_URL", "http://localhost:8081")
	v.SetDefault("DIRECTORY_TIMEOUT", "3s")

	v.SetDefault("ENABLE_SCHEDULER", true)
	// First day of each month at 02:00, and January 1st at 03:00.
	v.SetDefault("ACCRUAL_CRON", "0 2 1 * *")
	v.SetDefault("CARRYOVER_CRON", "0 3 1 1 *")

	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
