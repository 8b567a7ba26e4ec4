package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = "# nexusd configuration file\n" +
	"# Generated by `nexusd init`. See https://pkg.go.dev/github.com/nexusd/nexusd/pkg/config\n" +
	"# for the full section reference.\n\n"

// InitConfig writes a default configuration file to the default location.
// It refuses to overwrite an existing file unless force is true, and
// returns the path written.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	return path, InitConfigToPath(path, force)
}

// InitConfigToPath writes a default configuration file to path. It refuses
// to overwrite an existing file unless force is true.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := GetDefaultConfig()
	cfg.Bdevs = []BdevConfig{
		{Name: "child0", URI: "malloc:///child0?size_mb=1024"},
		{Name: "child1", URI: "malloc:///child1?size_mb=1024"},
	}
	cfg.Nexuses = []NexusConfig{
		{
			Name:      "nexus0",
			SizeBytes: 1 << 30,
			ChildURIs: []string{"bdev:///child0", "bdev:///child1"},
			LabelMode: "create",
			Implicit:  true,
		},
	}

	return writeConfigFile(cfg, path)
}

func writeConfigFile(cfg *Config, path string) error {
	data, err := marshalWithHeader(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func marshalWithHeader(cfg *Config) ([]byte, error) {
	body, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	return append([]byte(configHeader), body...), nil
}
