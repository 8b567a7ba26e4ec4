package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks cfg against its struct tags and a handful of
// cross-field rules the tags can't express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}

	for _, n := range cfg.Nexuses {
		if len(n.ChildURIs) == 0 {
			return fmt.Errorf("nexus %q: at least one child_uri is required", n.Name)
		}
	}

	return nil
}
