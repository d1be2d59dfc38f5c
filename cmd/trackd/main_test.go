package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/trackd/internal/client/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigEnv(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TRACKD_CONFIG_PATH", filepath.Join(tmp, "config.json"))
	t.Setenv("TRACKD_DATA_DIR", filepath.Join(tmp, "data"))
	t.Setenv("TRACKD_EMAIL", "Test@Example.com")
	t.Setenv("TRACKD_SERVER_URL", "https://track.test")
	t.Setenv("TRACKD_API_TOKEN", "env-token")
	t.Setenv("TRACKD_BACKGROUND_SYNC_THRESHOLD", "2m")
	t.Setenv("TRACKD_LOG_LEVEL", "debug")

	cfg, err := loadConfig(newRootCmd())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(tmp, "config.json"), cfg.Path)
	assert.Equal(t, filepath.Join(tmp, "data"), cfg.DataDir)
	assert.Equal(t, "test@example.com", cfg.Email)
	assert.Equal(t, "https://track.test", cfg.ServerURL)
	assert.Equal(t, "env-token", cfg.APIToken)
	assert.Equal(t, 2*time.Minute, cfg.BackgroundSyncThreshold)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigJSON(t *testing.T) {
	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.json")

	saved := &config.Config{
		DataDir:                 filepath.Join(tmp, "json-data"),
		Email:                   "json@example.com",
		ServerURL:               "https://json.track.test",
		APIToken:                "json-token",
		BackgroundSyncThreshold: 90 * time.Second,
		Path:                    configPath,
	}
	require.NoError(t, saved.Validate())
	require.NoError(t, saved.Save())

	root := newRootCmd()
	require.NoError(t, root.PersistentFlags().Set("config", configPath))

	cfg, err := loadConfig(root)
	require.NoError(t, err)
	assert.Equal(t, configPath, cfg.Path)
	assert.Equal(t, saved.DataDir, cfg.DataDir)
	assert.Equal(t, "json@example.com", cfg.Email)
	assert.Equal(t, "https://json.track.test", cfg.ServerURL)
	assert.Equal(t, "json-token", cfg.APIToken)
	assert.Equal(t, 90*time.Second, cfg.BackgroundSyncThreshold)

	// flags win over the file
	require.NoError(t, root.PersistentFlags().Set("server", "http://127.0.0.1:9999"))
	cfg, err = loadConfig(root)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9999", cfg.ServerURL)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte("{"), 0o600))

	root := newRootCmd()
	require.NoError(t, root.PersistentFlags().Set("config", configPath))

	_, err := loadConfig(root)
	assert.Error(t, err)
}

func TestSetupLogging_WritesFile(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Path = filepath.Join(cfg.DataDir, "config.json")
	require.NoError(t, cfg.Validate())

	restoreLogger(t)
	closeLog, err := setupLogging(cfg, os.Stderr)
	require.NoError(t, err)

	slog.Info("hello from the test")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(filepath.Join(cfg.DataDir, "logs", "trackd.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "line=1")
	assert.Contains(t, string(data), `msg="hello from the test"`)
}
