package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nexusd/nexusd/internal/cli/output"
	"github.com/nexusd/nexusd/pkg/child"
	"github.com/nexusd/nexusd/pkg/engine"
)

var childCmd = &cobra.Command{
	Use:   "child",
	Short: "Manage a nexus's children",
}

func init() {
	childCmd.AddCommand(childAddCmd)
	childCmd.AddCommand(childRemoveCmd)
	childCmd.AddCommand(childFaultCmd)
	childCmd.AddCommand(childOnlineCmd)
	childCmd.AddCommand(childOfflineCmd)
	childCmd.AddCommand(childListCmd)
}

var childAddCmd = &cobra.Command{
	Use:   "add <nexus> <child-name> <uri>",
	Short: "Add a child to a nexus",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		nexusName, childName, uri := args[0], args[1], args[2]
		return withEngine(context.Background(), func(eng *engine.Engine) error {
			c, err := eng.AddChild(context.Background(), nexusName, childName, uri)
			if err != nil {
				return err
			}
			fmt.Printf("Added child %q (%s) to nexus %q, state=%s\n", c.Name, c.URI, nexusName, c.State())
			return nil
		})
	},
}

var childRemoveCmd = &cobra.Command{
	Use:   "remove <nexus> <child-name>",
	Short: "Remove a child from a nexus",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		nexusName, childName := args[0], args[1]
		return withEngine(context.Background(), func(eng *engine.Engine) error {
			if err := eng.RemoveChild(context.Background(), nexusName, childName); err != nil {
				return err
			}
			fmt.Printf("Removed child %q from nexus %q\n", childName, nexusName)
			return nil
		})
	},
}

var childFaultReason string

var childFaultCmd = &cobra.Command{
	Use:   "fault <nexus> <child-name>",
	Short: "Mark a child Faulted",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		nexusName, childName := args[0], args[1]
		reason, err := parseFaultReason(childFaultReason)
		if err != nil {
			return err
		}
		return withEngine(context.Background(), func(eng *engine.Engine) error {
			if err := eng.FaultChild(context.Background(), nexusName, childName, reason); err != nil {
				return err
			}
			fmt.Printf("Faulted child %q on nexus %q (reason=%s)\n", childName, nexusName, reason)
			return nil
		})
	},
}

func init() {
	childFaultCmd.Flags().StringVar(&childFaultReason, "reason", string(child.ReasonIoError), "Fault reason (out_of_sync|io_error|rebuild_failed|timeout)")
}

func parseFaultReason(s string) (child.FaultReason, error) {
	switch child.FaultReason(s) {
	case child.ReasonOutOfSync, child.ReasonIoError, child.ReasonRebuildFailed, child.ReasonTimeout:
		return child.FaultReason(s), nil
	default:
		return "", fmt.Errorf("invalid fault reason %q", s)
	}
}

var childOnlineCmd = &cobra.Command{
	Use:   "online <nexus> <child-name>",
	Short: "Transition a child back to Open",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		nexusName, childName := args[0], args[1]
		return withEngine(context.Background(), func(eng *engine.Engine) error {
			if err := eng.OnlineChild(nexusName, childName); err != nil {
				return err
			}
			fmt.Printf("Onlined child %q on nexus %q\n", childName, nexusName)
			return nil
		})
	},
}

var childOfflineCmd = &cobra.Command{
	Use:   "offline <nexus> <child-name>",
	Short: "Transition a child to Closed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		nexusName, childName := args[0], args[1]
		return withEngine(context.Background(), func(eng *engine.Engine) error {
			if err := eng.OfflineChild(context.Background(), nexusName, childName); err != nil {
				return err
			}
			fmt.Printf("Offlined child %q on nexus %q\n", childName, nexusName)
			return nil
		})
	},
}

var childListOutput string

var childListCmd = &cobra.Command{
	Use:   "list <nexus>",
	Short: "List a nexus's children",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		nexusName := args[0]
		format, err := output.ParseFormat(childListOutput)
		if err != nil {
			return err
		}

		return withEngine(context.Background(), func(eng *engine.Engine) error {
			n, err := eng.Nexus(nexusName)
			if err != nil {
				return err
			}

			switch format {
			case output.FormatJSON, output.FormatYAML:
				type row struct {
					Name   string            `json:"name" yaml:"name"`
					URI    string            `json:"uri" yaml:"uri"`
					State  child.State       `json:"state" yaml:"state"`
					Reason child.FaultReason `json:"fault_reason,omitempty" yaml:"fault_reason,omitempty"`
				}
				rows := make([]row, 0, len(n.Children()))
				for _, c := range n.Children() {
					rows = append(rows, row{Name: c.Name, URI: c.URI, State: c.State(), Reason: c.FaultReason()})
				}
				if format == output.FormatJSON {
					return output.PrintJSON(cmd.OutOrStdout(), rows)
				}
				return output.PrintYAML(cmd.OutOrStdout(), rows)
			default:
				table := output.NewTableData("NAME", "URI", "STATE", "REASON")
				for _, c := range n.Children() {
					table.AddRow(c.Name, c.URI, string(c.State()), string(c.FaultReason()))
				}
				return output.PrintTable(cmd.OutOrStdout(), table)
			}
		})
	},
}

func init() {
	childListCmd.Flags().StringVarP(&childListOutput, "output", "o", "table", "Output format (table|json|yaml)")
}
