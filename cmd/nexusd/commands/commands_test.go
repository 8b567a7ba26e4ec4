package commands

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexusd/nexusd/pkg/config"
)

// writeTestConfig builds a default configuration pointed at a temp state
// store with one two-child nexus, and writes it to disk so cobra commands
// can load it via --config.
func writeTestConfig(t *testing.T) string {
	t.Helper()

	cfg := config.GetDefaultConfig()
	cfg.StateStore.Path = t.TempDir()
	cfg.Nexuses = []config.NexusConfig{{
		Name:      "t0",
		SizeBytes: 16 * 1024 * 1024,
		ChildURIs: []string{
			"malloc:///cmdtest-c0?size_mb=32",
			"malloc:///cmdtest-c1?size_mb=32",
		},
		LabelMode: "create",
	}}

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.SaveConfig(cfg, path))
	return path
}

// runCmd executes the root command with the given args against the given
// config file, returning the error from Execute.
func runCmd(t *testing.T, configPath string, args ...string) error {
	t.Helper()
	root := GetRootCmd()
	root.SetArgs(append([]string{"--config", configPath}, args...))
	return root.Execute()
}
