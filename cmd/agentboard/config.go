package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all agentboard server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr   string `json:"listen_addr"`
	DBPath       string `json:"db_path"`
	LogLevel     string `json:"log_level"`
	SnapshotCron string `json:"snapshot_cron"`
	SnapshotKeep int    `json:"snapshot_keep"`
	MCP          bool   `json:"mcp"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:   ":4700",
		DBPath:       filepath.Join(boardDir(), "agentboard.db"),
		LogLevel:     "info",
		SnapshotCron: "*/5 * * * *",
		SnapshotKeep: 10,
	}
}

func boardDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentboard"
	}
	return filepath.Join(home, ".agentboard")
}

func settingsPath() string {
	return filepath.Join(boardDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("AGENTBOARD_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("AGENTBOARD_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("AGENTBOARD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("AGENTBOARD_SNAPSHOT_CRON"); v != "" {
		cfg.SnapshotCron = v
	}
	if v := os.Getenv("AGENTBOARD_SNAPSHOT_KEEP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SnapshotKeep = n
		}
	}
	if v := os.Getenv("AGENTBOARD_MCP"); v != "" {
		cfg.MCP = v == "true" || v == "1"
	}

	return cfg
}
