package config

import (
	"strings"
	"time"
)

// ApplyDefaults fills in unspecified configuration fields with sensible
// defaults. Explicit values are always preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyAdminDefaults(&cfg.Admin)
	applyStateStoreDefaults(&cfg.StateStore)
	applyErrorStoreDefaults(&cfg.ErrorStore)
	applyRebuildDefaults(&cfg.Rebuild)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	for i := range cfg.Nexuses {
		if cfg.Nexuses[i].LabelMode == "" {
			cfg.Nexuses[i].LabelMode = "update"
		}
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyAdminDefaults(cfg *AdminConfig) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
}

func applyStateStoreDefaults(cfg *StateStoreConfig) {
	if cfg.Path == "" {
		cfg.Path = "/var/lib/nexusd/state"
	}
}

// applyErrorStoreDefaults fills in unset error-store settings so a freshly
// loaded config produces a usable Policy even with no config file. These
// values are this package's own; they differ from errstore.DefaultPolicy.
func applyErrorStoreDefaults(cfg *ErrorStoreConfig) {
	if cfg.Size == 0 {
		cfg.Size = 256
	}
	if cfg.Action == "" {
		cfg.Action = "Fault"
	}
	if cfg.Retention == 0 {
		cfg.Retention = 5 * time.Minute
	}
	if cfg.MaxErrors == 0 {
		cfg.MaxErrors = 10
	}
	if cfg.TimeoutAction == "" {
		cfg.TimeoutAction = "Fault"
	}
	if cfg.TimeoutMaxErrors == 0 {
		cfg.TimeoutMaxErrors = 3
	}
}

func applyRebuildDefaults(cfg *RebuildConfig) {
	if cfg.SegmentBlocks == 0 {
		cfg.SegmentBlocks = 256
	}
}

// GetDefaultConfig returns a Config with every default applied and no
// nexuses or bdevs configured. Useful for sample config generation, tests,
// and running with no config file at all.
func GetDefaultConfig() *Config {
	cfg := &Config{
		StateStore: StateStoreConfig{
			Path: "/var/lib/nexusd/state",
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
