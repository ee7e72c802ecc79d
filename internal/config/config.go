package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration. It merges file defaults and
// environment overrides so both local and deployed runs stay simple.
type Config struct {
	Environment string

	HTTPPort     int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	DataDir      string
	MasterKeyHex string

	// Render backend options recognized at startup.
	RenderBackendLocation string
	RenderVerbose         bool

	// SessionMaxDuration bounds a viewing session; zero means unbounded.
	SessionMaxDuration time.Duration
}

// configFile mirrors the YAML schema of configs/default.yaml.
type configFile struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port                int `yaml:"port"`
		ReadTimeoutSeconds  int `yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds int `yaml:"write_timeout_seconds"`
		IdleTimeoutSeconds  int `yaml:"idle_timeout_seconds"`
	} `yaml:"server"`
	Storage struct {
		DataDir string `yaml:"data_dir"`
	} `yaml:"storage"`
	Render struct {
		BackendLocation string `yaml:"backend_location"`
		Verbose         bool   `yaml:"verbose"`
	} `yaml:"render"`
	Viewer struct {
		SessionMaxMinutes int `yaml:"session_max_minutes"`
	} `yaml:"viewer"`
}

// Load resolves configuration in priority order: defaults -> file -> env.
func Load(path string) (Config, error) {
	cfg := Config{
		Environment:        "production",
		HTTPPort:           8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       30 * time.Second,
		IdleTimeout:        60 * time.Second,
		DataDir:            "protected_data",
		SessionMaxDuration: 0,
	}

	if raw, err := os.ReadFile(path); err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Environment != "" {
			cfg.Environment = f.Environment
		}
		if f.Server.Port > 0 {
			cfg.HTTPPort = f.Server.Port
		}
		if f.Server.ReadTimeoutSeconds > 0 {
			cfg.ReadTimeout = time.Duration(f.Server.ReadTimeoutSeconds) * time.Second
		}
		if f.Server.WriteTimeoutSeconds > 0 {
			cfg.WriteTimeout = time.Duration(f.Server.WriteTimeoutSeconds) * time.Second
		}
		if f.Server.IdleTimeoutSeconds > 0 {
			cfg.IdleTimeout = time.Duration(f.Server.IdleTimeoutSeconds) * time.Second
		}
		if f.Storage.DataDir != "" {
			cfg.DataDir = f.Storage.DataDir
		}
		if f.Render.BackendLocation != "" {
			cfg.RenderBackendLocation = f.Render.BackendLocation
		}
		cfg.RenderVerbose = f.Render.Verbose
		if f.Viewer.SessionMaxMinutes > 0 {
			cfg.SessionMaxDuration = time.Duration(f.Viewer.SessionMaxMinutes) * time.Minute
		}
	}

	cfg.Environment = envOrDefault("ENVIRONMENT", cfg.Environment)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.DataDir = envOrDefault("DATA_DIR", cfg.DataDir)
	cfg.MasterKeyHex = envOrDefault("MASTER_KEY_HEX", cfg.MasterKeyHex)
	cfg.RenderBackendLocation = envOrDefault("RENDER_BACKEND_LOCATION", cfg.RenderBackendLocation)
	cfg.RenderVerbose = envBool("RENDER_VERBOSE", cfg.RenderVerbose)
	if m := envInt("SESSION_MAX_MINUTES", int(cfg.SessionMaxDuration.Minutes())); m > 0 {
		cfg.SessionMaxDuration = time.Duration(m) * time.Minute
	}

	return cfg, nil
}

// MasterKey returns the raw master key bytes. When MASTER_KEY_HEX is unset
// it falls back to a master.key file next to the binary.
func (c Config) MasterKey() (string, error) {
	if c.MasterKeyHex != "" {
		return strings.TrimSpace(c.MasterKeyHex), nil
	}
	data, err := os.ReadFile("master.key")
	if err != nil {
		return "", fmt.Errorf("MASTER_KEY_HEX not set and master.key file not found")
	}
	return strings.TrimSpace(string(data)), nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(name string, fallback bool) bool {
	switch os.Getenv(name) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}
