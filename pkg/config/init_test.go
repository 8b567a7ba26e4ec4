package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func withTempXDGConfigHome(t *testing.T, dir string) {
	t.Helper()
	old := os.Getenv("XDG_CONFIG_HOME")
	require.NoError(t, os.Setenv("XDG_CONFIG_HOME", dir))
	t.Cleanup(func() {
		if old != "" {
			_ = os.Setenv("XDG_CONFIG_HOME", old)
		} else {
			_ = os.Unsetenv("XDG_CONFIG_HOME")
		}
	})
}

func TestInitConfig_Success(t *testing.T) {
	withTempXDGConfigHome(t, t.TempDir())

	configPath, err := InitConfig(false)
	require.NoError(t, err)

	content, err := os.ReadFile(configPath)
	require.NoError(t, err)

	contentStr := string(content)
	for _, section := range []string{"# nexusd configuration file", "logging:", "state_store:", "admin:", "bdevs:", "nexuses:"} {
		assert.Contains(t, contentStr, section)
	}

	var cfg Config
	assert.NoError(t, yaml.Unmarshal(content, &cfg))
}

func TestInitConfig_AlreadyExists(t *testing.T) {
	withTempXDGConfigHome(t, t.TempDir())

	_, err := InitConfig(false)
	require.NoError(t, err)

	_, err = InitConfig(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestInitConfig_Force(t *testing.T) {
	withTempXDGConfigHome(t, t.TempDir())

	configPath, err := InitConfig(false)
	require.NoError(t, err)

	_, err = InitConfig(true)
	require.NoError(t, err)

	newInfo, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.NotZero(t, newInfo.Size())
}

func TestInitConfigToPath_Success(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "custom", "config.yaml")

	require.NoError(t, InitConfigToPath(configPath, false))

	content, err := os.ReadFile(configPath)
	require.NoError(t, err)

	var cfg Config
	assert.NoError(t, yaml.Unmarshal(content, &cfg))
}

func TestInitConfigToPath_AlreadyExists(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	require.NoError(t, InitConfigToPath(configPath, false))

	err := InitConfigToPath(configPath, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestInitConfigToPath_Force(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	require.NoError(t, InitConfigToPath(configPath, false))
	require.NoError(t, InitConfigToPath(configPath, true))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}

func TestGeneratedConfigIsLoadable(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	require.NoError(t, InitConfigToPath(configPath, false))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, 8080, cfg.Admin.Port)
	require.Len(t, cfg.Nexuses, 1)
	assert.Equal(t, "nexus0", cfg.Nexuses[0].Name)
}

func TestGeneratedConfigHasBdevsAndNexus(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	require.NoError(t, InitConfigToPath(configPath, false))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	require.Len(t, cfg.Bdevs, 2)
	assert.Equal(t, "child0", cfg.Bdevs[0].Name)
	require.Len(t, cfg.Nexuses[0].ChildURIs, 2)
}
