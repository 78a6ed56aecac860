package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type Config struct {
	WorkingDir        string
	PolicyFile        string
	AuditDB           string
	LogLevel          slog.Level
	DashboardPort     string
	DashboardPassword string
}

// Load reads config from env map. For production use LoadFromEnv.
func Load(env map[string]string) (*Config, error) {
	logLevel, err := parseLevel(env["PATHSCOPE_LOG_LEVEL"])
	if err != nil {
		return nil, err
	}

	auditDB := strings.TrimSpace(env["PATHSCOPE_AUDIT_DB"])
	if auditDB == "" {
		auditDB = "pathscope.db"
	}

	port := strings.TrimSpace(env["DASHBOARD_PORT"])
	if port == "" {
		port = "5005"
	}
	if n, err := strconv.ParseUint(port, 10, 16); err != nil || n == 0 {
		return nil, errors.Errorf("invalid DASHBOARD_PORT %q: must be numeric", port)
	}

	return &Config{
		WorkingDir:        env["PATHSCOPE_WORKING_DIR"],
		PolicyFile:        strings.TrimSpace(env["PATHSCOPE_POLICY_FILE"]),
		AuditDB:           auditDB,
		LogLevel:          logLevel,
		DashboardPort:     port,
		DashboardPassword: env["DASHBOARD_PASSWORD"],
	}, nil
}

// LoadFromEnv loads config from os environment variables.
func LoadFromEnv() (*Config, error) {
	env := map[string]string{
		"PATHSCOPE_WORKING_DIR": os.Getenv("PATHSCOPE_WORKING_DIR"),
		"PATHSCOPE_POLICY_FILE": os.Getenv("PATHSCOPE_POLICY_FILE"),
		"PATHSCOPE_AUDIT_DB":    os.Getenv("PATHSCOPE_AUDIT_DB"),
		"PATHSCOPE_LOG_LEVEL":   os.Getenv("PATHSCOPE_LOG_LEVEL"),
		"DASHBOARD_PORT":        os.Getenv("DASHBOARD_PORT"),
		"DASHBOARD_PASSWORD":    os.Getenv("DASHBOARD_PASSWORD"),
	}
	return Load(env)
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, errors.Errorf("invalid PATHSCOPE_LOG_LEVEL %q", s)
	}
}
