package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nexusd/nexusd/internal/cli/output"
	"github.com/nexusd/nexusd/pkg/bdev"
	"github.com/nexusd/nexusd/pkg/label"
)

var labelCmd = &cobra.Command{
	Use:   "label",
	Short: "Inspect on-disk child labels",
}

func init() {
	labelCmd.AddCommand(labelShowCmd)
}

var labelShowOutput string

var labelShowCmd = &cobra.Command{
	Use:   "show <uri>",
	Short: "Probe and print the GPT-style label on a child device",
	Long: `Open the device named by uri and probe its GPT label (protective MBR,
primary and secondary headers, partition table). JSON and YAML output print
the probed label; table output prints only the URI and device geometry.

This does not go through a nexus or the engine's state store: it opens
the backend directly, so it also works on devices that are not
currently attached to any nexus.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uri := args[0]
		format, err := output.ParseFormat(labelShowOutput)
		if err != nil {
			return err
		}

		dev, err := bdev.NewFromURI(uri)
		if err != nil {
			return fmt.Errorf("failed to open device: %w", err)
		}

		ctx := context.Background()
		handle, err := dev.Open(ctx, 0)
		if err != nil {
			return fmt.Errorf("failed to open device handle: %w", err)
		}
		defer func() { _ = handle.Close(ctx) }()

		geom := dev.Geometry()
		l, err := label.Probe(ctx, handle, geom.BlockSize, geom.NumBlocks)
		if err != nil {
			return fmt.Errorf("failed to probe label: %w", err)
		}

		switch format {
		case output.FormatJSON:
			return output.PrintJSON(cmd.OutOrStdout(), l)
		case output.FormatYAML:
			return output.PrintYAML(cmd.OutOrStdout(), l)
		default:
			pairs := [][2]string{
				{"URI", uri},
				{"Block size", fmt.Sprintf("%d", geom.BlockSize)},
				{"Num blocks", fmt.Sprintf("%d", geom.NumBlocks)},
			}
			return output.SimpleTable(cmd.OutOrStdout(), pairs)
		}
	},
}

func init() {
	labelShowCmd.Flags().StringVarP(&labelShowOutput, "output", "o", "table", "Output format (table|json|yaml)")
}
