package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nexusd/nexusd/internal/cli/output"
	"github.com/nexusd/nexusd/pkg/engine"
	"github.com/nexusd/nexusd/pkg/rebuild"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Manage child rebuild jobs",
}

func init() {
	rebuildCmd.AddCommand(rebuildStartCmd)
	rebuildCmd.AddCommand(rebuildPauseCmd)
	rebuildCmd.AddCommand(rebuildStopCmd)
	rebuildCmd.AddCommand(rebuildListCmd)
}

var rebuildSegment uint64

var rebuildStartCmd = &cobra.Command{
	Use:   "start <nexus> <dest-child> <source-uri>",
	Short: "Start a rebuild copying source-uri into dest-child",
	Long: `Start a background rebuild job that copies source-uri block-by-block
into dest-child. The destination child's state is not checked before the
copy starts; on successful completion a Faulted destination transitions
back to Open.

Only one rebuild job may target a given destination at a time.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		nexusName, destChild, sourceURI := args[0], args[1], args[2]
		return withEngine(context.Background(), func(eng *engine.Engine) error {
			job, err := eng.StartRebuild(context.Background(), nexusName, destChild, sourceURI, rebuildSegment)
			if err != nil {
				return err
			}
			fmt.Printf("Started rebuild %s -> %s (state=%s)\n", job.SourceURI, job.DestURI, job.State())
			job.Wait()
			fmt.Printf("Rebuild finished: %s -> %s (state=%s)\n", job.SourceURI, job.DestURI, job.State())
			return nil
		})
	},
}

func init() {
	rebuildStartCmd.Flags().Uint64Var(&rebuildSegment, "segment", 256, "Blocks copied per rebuild step")
}

var rebuildPauseCmd = &cobra.Command{
	Use:   "pause <nexus> <dest-child>",
	Short: "Pause a running rebuild job",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		nexusName, destChild := args[0], args[1]
		return withEngine(context.Background(), func(eng *engine.Engine) error {
			job, err := findRebuildJob(eng, nexusName, destChild)
			if err != nil {
				return err
			}
			if err := job.Pause(); err != nil {
				return err
			}
			fmt.Printf("Paused rebuild for %s\n", destChild)
			return nil
		})
	},
}

var rebuildStopCmd = &cobra.Command{
	Use:   "stop <nexus> <dest-child>",
	Short: "Stop a rebuild job",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		nexusName, destChild := args[0], args[1]
		return withEngine(context.Background(), func(eng *engine.Engine) error {
			job, err := findRebuildJob(eng, nexusName, destChild)
			if err != nil {
				return err
			}
			job.Stop()
			fmt.Printf("Stopped rebuild for %s\n", destChild)
			return nil
		})
	},
}

var rebuildListOutput string

var rebuildListCmd = &cobra.Command{
	Use:   "list <nexus>",
	Short: "List rebuild jobs for a nexus",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		nexusName := args[0]
		format, err := output.ParseFormat(rebuildListOutput)
		if err != nil {
			return err
		}

		return withEngine(context.Background(), func(eng *engine.Engine) error {
			jobs, err := eng.RebuildsForNexus(nexusName)
			if err != nil {
				return err
			}

			switch format {
			case output.FormatJSON, output.FormatYAML:
				type row struct {
					Source string `json:"source_uri" yaml:"source_uri"`
					Dest   string `json:"dest_uri" yaml:"dest_uri"`
					State  string `json:"state" yaml:"state"`
					Copied uint64 `json:"copied" yaml:"copied"`
					Total  uint64 `json:"total" yaml:"total"`
				}
				rows := make([]row, 0, len(jobs))
				for _, j := range jobs {
					copied, total := j.Progress()
					rows = append(rows, row{Source: j.SourceURI, Dest: j.DestURI, State: string(j.State()), Copied: copied, Total: total})
				}
				if format == output.FormatJSON {
					return output.PrintJSON(cmd.OutOrStdout(), rows)
				}
				return output.PrintYAML(cmd.OutOrStdout(), rows)
			default:
				table := output.NewTableData("SOURCE", "DEST", "STATE", "PROGRESS")
				for _, j := range jobs {
					copied, total := j.Progress()
					table.AddRow(j.SourceURI, j.DestURI, string(j.State()), fmt.Sprintf("%d/%d", copied, total))
				}
				return output.PrintTable(cmd.OutOrStdout(), table)
			}
		})
	},
}

func init() {
	rebuildListCmd.Flags().StringVarP(&rebuildListOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

func findRebuildJob(eng *engine.Engine, nexusName, destChild string) (*rebuild.Job, error) {
	n, err := eng.Nexus(nexusName)
	if err != nil {
		return nil, err
	}
	jobs, err := eng.RebuildsForNexus(nexusName)
	if err != nil {
		return nil, err
	}
	for _, c := range n.Children() {
		if c.Name != destChild {
			continue
		}
		for _, j := range jobs {
			if j.DestURI == c.URI {
				return j, nil
			}
		}
	}
	return nil, fmt.Errorf("no rebuild job found for destination %q", destChild)
}
