package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/automat-dev/automat/internal/genai"
	"github.com/automat-dev/automat/internal/tools"
)

// Config holds all automat server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	Backend       string `json:"backend"` // "file" or "libsql"
	WorkflowsPath string `json:"workflows_path"`
	DBPath        string `json:"db_path"`
	LogLevel      string `json:"log_level"`
	HistoryLimit  int    `json:"history_limit"`
	ActionTimeout string `json:"action_timeout"`

	GenAI       genai.Config         `json:"genai"`
	ToolServers []tools.ServerConfig `json:"tool_servers"`
}

func defaultConfig() Config {
	return Config{
		Backend:       "file",
		WorkflowsPath: filepath.Join(automatDir(), "workflows.json"),
		DBPath:        filepath.Join(automatDir(), "automat.db"),
		LogLevel:      "info",
		HistoryLimit:  100,
		ActionTimeout: "60s",
	}
}

func automatDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".automat"
	}
	return filepath.Join(home, ".automat")
}

func settingsPath() string {
	return filepath.Join(automatDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("AUTOMAT_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("AUTOMAT_WORKFLOWS_PATH"); v != "" {
		cfg.WorkflowsPath = v
	}
	if v := os.Getenv("AUTOMAT_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("AUTOMAT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("AUTOMAT_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HistoryLimit = n
		}
	}
	if v := os.Getenv("AUTOMAT_ACTION_TIMEOUT"); v != "" {
		cfg.ActionTimeout = v
	}
	if v := os.Getenv("AUTOMAT_GENAI_BASE_URL"); v != "" {
		cfg.GenAI.BaseURL = v
	}
	if v := os.Getenv("AUTOMAT_GENAI_API_KEY"); v != "" {
		cfg.GenAI.APIKey = v
	}
	if v := os.Getenv("AUTOMAT_GENAI_MODEL"); v != "" {
		cfg.GenAI.DefaultModel = v
	}

	return cfg
}

// actionTimeout parses the configured timeout, falling back to zero so the
// engine applies its own default.
func (c Config) actionTimeout() time.Duration {
	d, err := time.ParseDuration(c.ActionTimeout)
	if err != nil {
		return 0
	}
	return d
}
