// Package commands implements nexusd's cobra command tree: daemon lifecycle
// (start/stop/status), configuration bootstrap (init), and the in-process
// admin client (child, rebuild, label) that mutates a nexus's topology
// without a network control plane.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// cfgFile is the global --config flag value.
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "nexusd",
	Short: "nexusd - a replicated block-storage nexus engine",
	Long: `nexusd stripes and mirrors block I/O across N children, presenting
the union as one logical block device. It synchronizes on-disk GPT-style
labels across children, fans writes out to every healthy child, serves
reads from one with retry, and rebuilds a child that falls out of sync.

Use "nexusd [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/nexusd/config.yaml)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(childCmd)
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(labelCmd)
	rootCmd.AddCommand(completionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}

// Exit prints an error to stderr and exits with code 1.
func Exit(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
	os.Exit(1)
}
