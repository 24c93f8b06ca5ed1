package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config holds the runtime settings of routingd.
type Config struct {
	HTTPPort          string
	DatabaseURL       string // empty runs on the in-memory stores
	AMQPURL           string // empty disables event forwarding
	TemplatesCSV      string // optional catalog overlay
	MonitorInterval   time.Duration
	MonitorWorkers    int
	MonitorWorkspaces []string
	AlertTTL          time.Duration
	TotalMachines     int
	LogLevel          string
	LogFormat         string
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		HTTPPort:          "8080",
		MonitorInterval:   5 * time.Minute,
		MonitorWorkspaces: []string{"default"},
		AlertTTL:          15 * time.Minute,
		LogLevel:          "INFO",
		LogFormat:         "text",
	}
}

// Load reads .env when present and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a variable lookup.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Default()
	if v := getenv("HTTP_PORT"); v != "" {
		cfg.HTTPPort = v
	}
	cfg.DatabaseURL = databaseURL(getenv)
	cfg.AMQPURL = getenv("AMQP_URL")
	cfg.TemplatesCSV = getenv("TEMPLATES_CSV")
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	var err error
	if cfg.MonitorInterval, err = duration(getenv, "MONITOR_INTERVAL", cfg.MonitorInterval); err != nil {
		return Config{}, err
	}
	if cfg.AlertTTL, err = duration(getenv, "ALERT_TTL", cfg.AlertTTL); err != nil {
		return Config{}, err
	}
	if cfg.MonitorWorkers, err = integer(getenv, "MONITOR_WORKERS", cfg.MonitorWorkers); err != nil {
		return Config{}, err
	}
	if cfg.TotalMachines, err = integer(getenv, "TOTAL_MACHINES", cfg.TotalMachines); err != nil {
		return Config{}, err
	}
	if v := getenv("MONITOR_WORKSPACES"); v != "" {
		cfg.MonitorWorkspaces = nil
		for _, ws := range strings.Split(v, ",") {
			if ws = strings.TrimSpace(ws); ws != "" {
				cfg.MonitorWorkspaces = append(cfg.MonitorWorkspaces, ws)
			}
		}
	}
	return cfg, nil
}

// databaseURL prefers DATABASE_URL and falls back to the DB_* variables.
func databaseURL(getenv func(string) string) string {
	if v := getenv("DATABASE_URL"); v != "" {
		return v
	}
	user, pass, host, port, name := getenv("DB_USERNAME"), getenv("DB_PASSWORD"), getenv("DB_HOST"), getenv("DB_PORT"), getenv("DB_NAME")
	if user == "" || host == "" || name == "" {
		return ""
	}
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pass, host, port, name)
}

func duration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}
	if d <= 0 {
		return 0, errors.Errorf("invalid %s: must be positive, got %s", key, v)
	}
	return d, nil
}

func integer(getenv func(string) string, key string, def int) (int, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}
	if n < 0 {
		return 0, errors.Errorf("invalid %s: cannot be negative, got %d", key, n)
	}
	return n, nil
}
