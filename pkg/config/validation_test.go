package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	assert.NoError(t, Validate(cfg))
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oneof")
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	assert.Error(t, Validate(cfg))
}

func TestValidate_InvalidAdminPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Admin.Port = 70000 // Out of range

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max")
}

func TestValidate_MissingStateStorePath(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.StateStore.Path = ""

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, strings.ToLower(err.Error()), "path")
}

func TestValidate_NexusMissingChildren(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Nexuses = []NexusConfig{{Name: "n0", SizeBytes: 1024}}

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "child_uri")
}

func TestValidate_NexusInvalidLabelMode(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Nexuses = []NexusConfig{{
		Name:      "n0",
		SizeBytes: 1024,
		ChildURIs: []string{"malloc:///c0"},
		LabelMode: "bogus",
	}}

	assert.Error(t, Validate(cfg))
}

func TestValidate_TelemetryEnabledWithoutEndpoint(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = ""

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telemetry")
}

func TestValidate_TelemetrySampleRate(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = "localhost:4317"
	cfg.Telemetry.SampleRate = 1.5 // Out of range (should be 0.0-1.0)

	assert.Error(t, Validate(cfg))
}

func TestValidate_LogLevelNormalization(t *testing.T) {
	testCases := []string{"info", "INFO", "debug", "DEBUG", "warn", "WARN", "error", "ERROR"}

	for _, level := range testCases {
		cfg := GetDefaultConfig()
		cfg.Logging.Level = level

		assert.NoError(t, Validate(cfg), "level %q", level)
		// Validation must not normalize; level stays as-is.
		assert.Equal(t, level, cfg.Logging.Level)
	}

	// Normalization only happens in ApplyDefaults.
	cfg := &Config{Logging: LoggingConfig{Level: "info"}}
	ApplyDefaults(cfg)
	assert.Equal(t, "INFO", cfg.Logging.Level)
}
