package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
}

func TestApplyDefaults_ShutdownTimeout(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestApplyDefaults_Admin(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, 8080, cfg.Admin.Port)
	assert.Equal(t, 10*time.Second, cfg.Admin.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Admin.WriteTimeout)
	assert.Equal(t, 60*time.Second, cfg.Admin.IdleTimeout)
}

func TestApplyDefaults_ErrorStore(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, 256, cfg.ErrorStore.Size)
	assert.Equal(t, "Fault", cfg.ErrorStore.Action)
	assert.Equal(t, 10, cfg.ErrorStore.MaxErrors)
	assert.Equal(t, "Fault", cfg.ErrorStore.TimeoutAction)
}

func TestApplyDefaults_Rebuild(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.EqualValues(t, 256, cfg.Rebuild.SegmentBlocks)
}

func TestApplyDefaults_NexusLabelMode(t *testing.T) {
	cfg := &Config{
		Nexuses: []NexusConfig{{Name: "n0", SizeBytes: 1024, ChildURIs: []string{"malloc:///c0"}}},
	}
	ApplyDefaults(cfg)

	assert.Equal(t, "update", cfg.Nexuses[0].LabelMode)
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "DEBUG",
			Format: "json",
			Output: "/var/log/nexusd.log",
		},
		ShutdownTimeout: 60 * time.Second,
		ErrorStore: ErrorStoreConfig{
			Size:      512,
			MaxErrors: 20,
		},
	}

	ApplyDefaults(cfg)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/var/log/nexusd.log", cfg.Logging.Output)
	assert.Equal(t, 60*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 512, cfg.ErrorStore.Size)
	assert.Equal(t, 20, cfg.ErrorStore.MaxErrors)
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()
	assert.NoError(t, Validate(cfg))
}

func TestGetDefaultConfig_HasRequiredFields(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.NotEmpty(t, cfg.Logging.Level)
	assert.NotZero(t, cfg.Admin.Port)
	assert.NotEmpty(t, cfg.StateStore.Path)
}
