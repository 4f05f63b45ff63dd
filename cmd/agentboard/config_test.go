package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestLoadConfigDefaults(t *testing.T) {
	home := isolateHome(t)

	cfg := loadConfig()
	assert.Equal(t, ":4700", cfg.ListenAddr)
	assert.Equal(t, filepath.Join(home, ".agentboard", "agentboard.db"), cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "*/5 * * * *", cfg.SnapshotCron)
	assert.Equal(t, 10, cfg.SnapshotKeep)
	assert.False(t, cfg.MCP)
}

func TestLoadConfigSettingsFile(t *testing.T) {
	home := isolateHome(t)

	dir := filepath.Join(home, ".agentboard")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	settings, err := json.Marshal(map[string]any{
		"listen_addr":   ":9999",
		"snapshot_keep": 3,
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), settings, 0o644))

	cfg := loadConfig()
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, 3, cfg.SnapshotKeep)
	assert.Equal(t, "info", cfg.LogLevel, "unset fields keep defaults")
}

func TestLoadConfigEnvOverridesSettings(t *testing.T) {
	home := isolateHome(t)

	dir := filepath.Join(home, ".agentboard")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"),
		[]byte(`{"listen_addr":":9999"}`), 0o644))

	t.Setenv("AGENTBOARD_LISTEN_ADDR", ":4242")
	t.Setenv("AGENTBOARD_LOG_LEVEL", "debug")
	t.Setenv("AGENTBOARD_SNAPSHOT_KEEP", "7")
	t.Setenv("AGENTBOARD_MCP", "1")

	cfg := loadConfig()
	assert.Equal(t, ":4242", cfg.ListenAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 7, cfg.SnapshotKeep)
	assert.True(t, cfg.MCP)
}

func TestLoadConfigBadEnvNumberIgnored(t *testing.T) {
	isolateHome(t)

	t.Setenv("AGENTBOARD_SNAPSHOT_KEEP", "many")
	cfg := loadConfig()
	assert.Equal(t, 10, cfg.SnapshotKeep)
}
