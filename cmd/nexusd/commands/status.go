package commands

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nexusd/nexusd/internal/cli/output"
)

var (
	statusOutput  string
	statusPidFile string
	statusPort    int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Display the current status of the nexusd daemon.

Checks the PID file and the admin surface's /healthz endpoint.

Examples:
  # Check status (uses default settings)
  nexusd status

  # Check status with a custom admin port
  nexusd status --admin-port 9090

  # Output as JSON
  nexusd status --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/nexusd/nexusd.pid)")
	statusCmd.Flags().IntVar(&statusPort, "admin-port", 8080, "Admin HTTP surface port")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// daemonStatus reports whether the daemon appears to be running and healthy.
type daemonStatus struct {
	Running bool   `json:"running" yaml:"running"`
	PID     int    `json:"pid,omitempty" yaml:"pid,omitempty"`
	Healthy bool   `json:"healthy" yaml:"healthy"`
	Message string `json:"message" yaml:"message"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	status := daemonStatus{Message: "daemon is not running"}

	pidPath := statusPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	if pidData, err := os.ReadFile(pidPath); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(pidData))); err == nil {
			if process, err := os.FindProcess(pid); err == nil {
				if err := process.Signal(syscall.Signal(0)); err == nil {
					status.Running = true
					status.PID = pid
				}
			}
		}
	}

	healthURL := fmt.Sprintf("http://localhost:%d/healthz", statusPort)
	client := &http.Client{Timeout: 2 * time.Second}
	if resp, err := client.Get(healthURL); err == nil {
		defer func() { _ = resp.Body.Close() }()
		status.Running = true
		status.Healthy = resp.StatusCode == http.StatusOK
	}

	switch {
	case status.Running && status.Healthy:
		status.Message = "daemon is running and healthy"
	case status.Running:
		status.Message = "daemon process found but admin surface is unreachable"
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, status)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, status)
	default:
		printStatusTable(status)
	}

	return nil
}

func printStatusTable(status daemonStatus) {
	fmt.Println()
	fmt.Println("nexusd Status")
	fmt.Println("=============")
	fmt.Println()

	if status.Running {
		if status.Healthy {
			fmt.Printf("  Status:  \033[32m● Running\033[0m\n")
		} else {
			fmt.Printf("  Status:  \033[33m● Running (unhealthy)\033[0m\n")
		}
		if status.PID != 0 {
			fmt.Printf("  PID:     %d\n", status.PID)
		}
	} else {
		fmt.Printf("  Status:  \033[31m○ Stopped\033[0m\n")
	}

	fmt.Println()
	fmt.Printf("  %s\n", status.Message)
	fmt.Println()
}
