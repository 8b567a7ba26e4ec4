// Package config loads and validates nexusd's configuration: base bdevs,
// nexus options, error-store policy, rebuild options, and the ambient
// logging/telemetry/metrics/state-store sections.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/nexusd/nexusd/internal/bytesize"
)

// Config is nexusd's top-level configuration.
//
// Configuration sources, highest precedence first:
//  1. CLI flags
//  2. Environment variables (NEXUSD_*)
//  3. Configuration file (YAML)
//  4. Default values
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics contains Prometheus metrics server configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Admin contains the admin HTTP surface configuration (healthz, metrics,
	// read-only status endpoints).
	Admin AdminConfig `mapstructure:"admin" yaml:"admin"`

	// StateStore configures the embedded KV store used to persist nexus and
	// rebuild topology across restarts.
	StateStore StateStoreConfig `mapstructure:"state_store" yaml:"state_store"`

	// Bdevs lists the base block devices available for children at startup,
	// addressed by the URI grammar (malloc/null/aio/bdev/loopback/nvmf).
	Bdevs []BdevConfig `mapstructure:"bdevs" yaml:"bdevs"`

	// Nexuses lists the nexuses to construct at startup.
	Nexuses []NexusConfig `mapstructure:"nexuses" yaml:"nexuses"`

	// ErrorStore configures the per-child I/O failure policy shared by every
	// nexus unless a nexus overrides it.
	ErrorStore ErrorStoreConfig `mapstructure:"error_store" yaml:"error_store"`

	// Rebuild configures the default rebuild job behavior.
	Rebuild RebuildConfig `mapstructure:"rebuild" yaml:"rebuild"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	Enabled    bool            `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string          `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool            `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64         `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
	Profiling  ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	Endpoint     string   `mapstructure:"endpoint" yaml:"endpoint"`
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// AdminConfig configures the read-only chi-routed admin HTTP surface.
type AdminConfig struct {
	Port         int           `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// StateStoreConfig configures the embedded Badger-backed state store.
type StateStoreConfig struct {
	// Path is the directory holding the state store's database files.
	Path string `mapstructure:"path" validate:"required" yaml:"path"`
}

// BdevConfig describes one base block device available at startup.
type BdevConfig struct {
	// Name is the local identifier other sections reference via bdev:// URIs.
	Name string `mapstructure:"name" validate:"required" yaml:"name"`

	// URI is the device's construction URI, per the child URI grammar
	// (malloc://, null://, aio://, nvmf://).
	URI string `mapstructure:"uri" validate:"required" yaml:"uri"`
}

// NexusConfig describes one nexus to construct at startup.
type NexusConfig struct {
	Name string `mapstructure:"name" validate:"required" yaml:"name"`

	// SizeBytes is the nexus's requested data capacity.
	SizeBytes uint64 `mapstructure:"size_bytes" validate:"required,gt=0" yaml:"size_bytes"`

	// ChildURIs lists the children's construction URIs.
	ChildURIs []string `mapstructure:"child_uris" validate:"required,min=1" yaml:"child_uris"`

	// LabelMode selects how on-disk labels are reconciled at construction:
	// validate, update, or create.
	LabelMode string `mapstructure:"label_mode" validate:"omitempty,oneof=validate update create" yaml:"label_mode"`

	// Implicit controls whether the nexus is published for I/O immediately
	// after construction, without a separate share step.
	Implicit bool `mapstructure:"implicit" yaml:"implicit"`
}

// ErrorStoreConfig mirrors errstore.Policy for configuration-file loading.
type ErrorStoreConfig struct {
	Enabled          bool          `mapstructure:"enable" yaml:"enable"`
	Size             int           `mapstructure:"size" validate:"omitempty,gt=0" yaml:"size"`
	Action           string        `mapstructure:"action" validate:"omitempty,oneof=Ignore Fault ignore fault" yaml:"action"`
	Retention        time.Duration `mapstructure:"retention_ns" yaml:"retention_ns"`
	MaxErrors        int           `mapstructure:"max_errors" validate:"omitempty,gt=0" yaml:"max_errors"`
	TimeoutAction    string        `mapstructure:"timeout_action" validate:"omitempty,oneof=Ignore Fault ignore fault" yaml:"timeout_action"`
	TimeoutMaxErrors int           `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// RebuildConfig configures default rebuild job behavior.
type RebuildConfig struct {
	// SegmentBlocks is the number of blocks copied per cooperative step.
	SegmentBlocks uint64 `mapstructure:"segment_blocks" validate:"omitempty,gt=0" yaml:"segment_blocks"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with user-friendly errors when the file is
// missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  nexusd init\n\n"+
				"Or specify a custom config file:\n"+
				"  nexusd <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  nexusd init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures viper's environment variable and config file search
// behavior.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("NEXUSD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if present. It returns
// (found, error); a missing file is not an error.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks composes the custom mapstructure decode hooks used when
// unmarshaling into Config.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize,
// accepting human-readable sizes like "1Gi" or "500MB".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings and numbers to time.Duration,
// accepting human-readable durations like "30s" or "5m".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory, preferring
// XDG_CONFIG_HOME, falling back to ~/.config, then ".".
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "nexusd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "nexusd")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory (exposed for init).
func GetConfigDir() string {
	return getConfigDir()
}
